package cmd

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List submitted entities",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		entities, err := newClient().ListEntities()
		if err != nil {
			return err
		}

		if len(entities) == 0 {
			cmd.Println("No entities found.")
			return nil
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"ID", "NAME", "EMAIL", "STATE", "CONTAINER", "REV", "ERROR"})
		for _, e := range entities {
			errMsg := ""
			if e.LastError != nil {
				errMsg = truncate(*e.LastError, 50)
			}
			t.AppendRow(table.Row{
				e.ID,
				e.Attributes.Name,
				e.Attributes.Email,
				colorizeState(e.State),
				deref(e.ContainerName),
				e.Revision,
				errMsg,
			})
		}
		t.AppendFooter(table.Row{text.FgHiBlue.Sprint("Total"), len(entities)})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
