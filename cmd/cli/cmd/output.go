package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"formplane/pkg/api"
)

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	return t
}

func stateIcon(state string) string {
	switch state {
	case api.StateReady:
		return text.FgGreen.Sprint("✓")
	case api.StateFailed:
		return text.FgRed.Sprint("✗")
	case api.StateRemoved:
		return text.FgHiBlack.Sprint("⊘")
	case api.StateProvisioning, api.StateUpdating, api.StateStopping:
		return text.FgYellow.Sprint("⏳")
	case api.StatePending:
		return text.FgCyan.Sprint("◯")
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case api.StateReady:
		return icon + " " + text.FgGreen.Sprint(state)
	case api.StateFailed:
		return icon + " " + text.FgRed.Sprint(state)
	case api.StateProvisioning, api.StateUpdating, api.StateStopping:
		return icon + " " + text.FgYellow.Sprint(state)
	case api.StatePending:
		return icon + " " + text.FgCyan.Sprint(state)
	default:
		return icon + " " + state
	}
}

// settled reports whether the reconciler has nothing left to do for state.
func settled(state string, deleting bool) bool {
	switch state {
	case api.StateRemoved, api.StateFailed:
		return true
	case api.StateReady:
		return !deleting
	}
	return false
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func formatTimeWithRelative(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s", t.Format("Mon, 02 Jan 2006 15:04:05 MST"),
		text.Faint.Sprintf("(%s ago)", relativeTime(*t)))
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	} else {
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
}

// printEntity renders a single entity as a key/value table.
func printEntity(out io.Writer, e *api.EntityResponse) {
	t := newTable(out)
	t.AppendHeader(table.Row{text.FgHiCyan.Sprint("FIELD"), text.FgHiCyan.Sprint("VALUE")})
	t.AppendRows([]table.Row{
		{"ID", e.ID},
		{"State", colorizeState(e.State)},
		{"Revision", e.Revision},
		{"Name", e.Attributes.Name},
		{"Email", e.Attributes.Email},
	})
	if e.Attributes.Age > 0 {
		t.AppendRow(table.Row{"Age", e.Attributes.Age})
	}
	if e.Attributes.Gender != "" {
		t.AppendRow(table.Row{"Gender", e.Attributes.Gender})
	}
	if e.Attributes.Address != "" {
		t.AppendRow(table.Row{"Address", e.Attributes.Address})
	}
	t.AppendRows([]table.Row{
		{"Container", deref(e.ContainerName)},
		{"Container ID", shortID(deref(e.ContainerRef))},
	})
	if e.Deleting {
		t.AppendRow(table.Row{"Deleting", "yes"})
	}
	if e.LastError != nil {
		t.AppendRow(table.Row{"Last Error", text.FgRed.Sprint(*e.LastError)})
	}
	if e.CreatedAt != nil {
		t.AppendRow(table.Row{"Created", formatTimeWithRelative(e.CreatedAt)})
	}
	t.Render()
}
