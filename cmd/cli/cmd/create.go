package cmd

import (
	"formplane/pkg/api"

	"github.com/spf13/cobra"
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a form and provision its container",
	Long: `Submit a form. The entity is stored as pending and its container is created in the
background; use "formctl status <id> --watch" to follow it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		attrs, err := attributesFromFlags(cmd)
		if err != nil {
			return err
		}

		ent, err := newClient().CreateEntity(api.CreateEntityRequest{Attributes: attrs})
		if err != nil {
			return err
		}

		cmd.Printf("✅ Entity %s accepted\n", ent.ID)
		printEntity(cmd.OutOrStdout(), ent)
		return nil
	},
}

// attributesFromFlags reads the form fields shared by create and update.
func attributesFromFlags(cmd *cobra.Command) (api.Attributes, error) {
	var attrs api.Attributes
	var err error
	if attrs.Name, err = cmd.Flags().GetString("name"); err != nil {
		return attrs, err
	}
	if attrs.Email, err = cmd.Flags().GetString("email"); err != nil {
		return attrs, err
	}
	if attrs.Age, err = cmd.Flags().GetInt("age"); err != nil {
		return attrs, err
	}
	if attrs.Gender, err = cmd.Flags().GetString("gender"); err != nil {
		return attrs, err
	}
	if attrs.Address, err = cmd.Flags().GetString("address"); err != nil {
		return attrs, err
	}
	return attrs, nil
}

func addAttributeFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("name", "n", "", "Submitter name; also the container name")
	cmd.Flags().StringP("email", "e", "", "Submitter email")
	cmd.Flags().Int("age", 0, "Submitter age (18 or older)")
	cmd.Flags().String("gender", "", "Submitter gender")
	cmd.Flags().String("address", "", "Submitter address")
}

func init() {
	rootCmd.AddCommand(createCmd)
	addAttributeFlags(createCmd)
	createCmd.MarkFlagRequired("name")
	createCmd.MarkFlagRequired("email")
}
