package cmd

import (
	"github.com/spf13/cobra"
)

var retryCmd = &cobra.Command{
	Use:   "retry [entity_id]",
	Short: "Re-drive a failed entity",
	Long:  `Move a failed entity back to pending so the reconciler provisions it again.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ent, err := newClient().RetryEntity(args[0])
		if err != nil {
			return err
		}

		cmd.Printf("✅ Entity %s re-queued (%s)\n", ent.ID, colorizeState(ent.State))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(retryCmd)
}
