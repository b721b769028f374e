package cmd

import (
	"formplane/pkg/api"

	"github.com/spf13/cobra"
)

var deleteCmd = &cobra.Command{
	Use:     "delete [entity_id]",
	Aliases: []string{"rm"},
	Short:   "Remove an entity and its container",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ent, err := newClient().DeleteEntity(args[0])
		if err != nil {
			return err
		}

		if ent.State == api.StateRemoved {
			cmd.Printf("Entity %s is already removed.\n", ent.ID)
			return nil
		}
		cmd.Printf("🗑  Entity %s is being removed (%s)\n", ent.ID, colorizeState(ent.State))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
