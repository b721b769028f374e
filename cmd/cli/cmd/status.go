package cmd

import (
	"errors"
	"time"

	"formplane/pkg/api"

	"github.com/spf13/cobra"
)

var errWatchTimeout = errors.New("entity did not settle before the watch timeout")

var statusCmd = &cobra.Command{
	Use:   "status [entity_id]",
	Short: "Get the reconciliation status of an entity",
	Long: `Retrieve the lifecycle state of an entity (pending, provisioning, ready, updating,
stopping, removed, failed), its container and the latest reconciliation job.

With --watch the status is polled until the entity settles.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		client := newClient()

		watch, _ := cmd.Flags().GetBool("watch")
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		status, err := client.GetStatus(id)
		if err != nil {
			return err
		}
		if !watch {
			printStatus(cmd, status)
			return nil
		}

		deadline := time.Now().Add(timeout)
		lastState := ""
		for {
			if status.State != lastState {
				cmd.Printf("%s  %s\n", time.Now().Format("15:04:05"), colorizeState(status.State))
				lastState = status.State
			}
			if settled(status.State, status.Deleting) && (status.Job == nil || jobFinished(status.Job)) {
				break
			}
			if time.Now().After(deadline) {
				printStatus(cmd, status)
				return errWatchTimeout
			}

			time.Sleep(interval)
			status, err = client.GetStatus(id)
			if err != nil {
				return err
			}
		}

		printStatus(cmd, status)
		return nil
	},
}

func jobFinished(job *api.JobStatusResponse) bool {
	switch job.Phase {
	case "succeeded", "failed", "abandoned":
		return true
	}
	return false
}

func printStatus(cmd *cobra.Command, s *api.EntityStatusResponse) {
	cmd.Printf("%s Entity %s\n", stateIcon(s.State), s.ID)
	cmd.Println("──────────────────────────────")
	cmd.Printf("State:       %s\n", colorizeState(s.State))
	cmd.Printf("Revision:    %d\n", s.Revision)
	cmd.Printf("Container:   %s (%s)\n", deref(s.ContainerName), shortID(deref(s.ContainerRef)))
	if s.Deleting {
		cmd.Println("Deleting:    yes")
	}
	if s.LastError != nil {
		cmd.Printf("Last Error:  %s\n", *s.LastError)
	}
	if s.Job != nil {
		cmd.Printf("Job:         %s → %s, %d attempt(s), revision %d\n",
			s.Job.Phase, s.Job.Target, s.Job.Attempts, s.Job.Revision)
		if s.Job.LastError != "" {
			cmd.Printf("Job Error:   %s\n", s.Job.LastError)
		}
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolP("watch", "w", false, "Poll until the entity settles")
	statusCmd.Flags().Duration("interval", time.Second, "Polling interval for --watch")
	statusCmd.Flags().Duration("timeout", 5*time.Minute, "Give up watching after this long")
}
