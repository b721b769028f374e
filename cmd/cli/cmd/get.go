package cmd

import (
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get [entity_id]",
	Short: "Show one entity",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ent, err := newClient().GetEntity(args[0])
		if err != nil {
			return err
		}
		printEntity(cmd.OutOrStdout(), ent)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(getCmd)
}
