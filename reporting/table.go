package reporting

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// TableFormatter formats result trees as console tables
type TableFormatter struct {
	title      string
	showGroups bool
	colored    bool
}

// NewTableFormatter creates a table formatter. Group rows are included when
// showGroups is set; colored selects the colored go-pretty styles.
func NewTableFormatter(title string, showGroups, colored bool) *TableFormatter {
	return &TableFormatter{
		title:      title,
		showGroups: showGroups,
		colored:    colored,
	}
}

// Format renders tree as a table
func (f *TableFormatter) Format(tree *Tree) string {
	var buf bytes.Buffer
	f.Write(&buf, tree)
	return buf.String()
}

// Write renders tree as a table to w
func (f *TableFormatter) Write(w io.Writer, tree *Tree) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", f.title, formatDuration(tree.Duration)))

	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Attempts", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Attempts", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	tree.Walk(func(n *Node) bool {
		if n.Kind == NodeKindGroup && !f.showGroups {
			return true
		}
		f.appendNode(t, tree, n)
		return true
	})

	if tree.Err != nil {
		t.AppendRow(table.Row{"Suite", "-", "-", "-", "-", "-", "-", "-", getResultString(types.TestStatusFail), KeyErrorMessage(tree.Err)})
	}

	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(tree.Duration),
		"",
		tree.Stats.Total,
		tree.Stats.Passed,
		tree.Stats.Failed,
		tree.Stats.Skipped,
		getResultString(tree.Status),
		"",
	})

	switch {
	case !f.colored:
		t.SetStyle(table.StyleLight)
	case tree.Status == types.TestStatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	t.Render()
}

func (f *TableFormatter) appendNode(t table.Writer, tree *Tree, n *Node) {
	name := n.Path
	if f.showGroups {
		name = tree.Prefix(n) + n.Name
	}

	duration, attempts := "-", "-"
	if n.Kind == NodeKindTest {
		attempts = fmt.Sprintf("%d", n.Attempts)
		if n.Status == types.TestStatusPass {
			duration = formatDuration(n.Elapsed)
		}
	}

	tests := any(n.Stats.Total)
	if n.Kind == NodeKindGroup {
		tests = "-"
	}

	t.AppendRow(table.Row{
		string(n.Kind),
		name,
		duration,
		attempts,
		tests,
		n.Stats.Passed,
		n.Stats.Failed,
		n.Stats.Skipped,
		getResultString(n.Status),
		KeyErrorMessage(n.Err),
	})
}

// getResultString returns a string representing the test result
func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}

// formatDuration formats a duration to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
