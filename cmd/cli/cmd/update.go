package cmd

import (
	"formplane/pkg/api"

	"github.com/spf13/cobra"
)

var updateCmd = &cobra.Command{
	Use:   "update [entity_id]",
	Short: "Change the attributes of an entity",
	Long: `Change the attributes of an entity. A new name renames its container.

Unset flags keep their current values. Without --revision the current revision
is fetched first, so a concurrent change between the two calls is reported as
a conflict rather than overwritten.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		client := newClient()

		current, err := client.GetEntity(id)
		if err != nil {
			return err
		}

		attrs := current.Attributes
		flags, err := attributesFromFlags(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("name") {
			attrs.Name = flags.Name
		}
		if cmd.Flags().Changed("email") {
			attrs.Email = flags.Email
		}
		if cmd.Flags().Changed("age") {
			attrs.Age = flags.Age
		}
		if cmd.Flags().Changed("gender") {
			attrs.Gender = flags.Gender
		}
		if cmd.Flags().Changed("address") {
			attrs.Address = flags.Address
		}

		revision, _ := cmd.Flags().GetInt64("revision")
		if revision == 0 {
			revision = current.Revision
		}

		ent, err := client.UpdateEntity(id, api.UpdateEntityRequest{
			Attributes:       attrs,
			ExpectedRevision: revision,
		})
		if err != nil {
			return err
		}

		cmd.Printf("✅ Entity %s updated to revision %d\n", ent.ID, ent.Revision)
		printEntity(cmd.OutOrStdout(), ent)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	addAttributeFlags(updateCmd)
	updateCmd.Flags().Int64("revision", 0, "Expected revision (default: the current one)")
}
