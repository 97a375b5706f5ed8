package reporting

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/ethereum-optimism/infra/op-testkit/types"
)

// SummaryFileName is the name of the summary written for every run
const SummaryFileName = "summary.log"

// TextFormatter formats result trees as plain text
type TextFormatter struct {
	includeDetails bool
}

// NewTextFormatter creates a text formatter. With includeDetails the full
// error of every failed test is written below it.
func NewTextFormatter(includeDetails bool) *TextFormatter {
	return &TextFormatter{includeDetails: includeDetails}
}

// Format renders tree as plain text
func (f *TextFormatter) Format(tree *Tree) string {
	var buf bytes.Buffer

	buf.WriteString("Test Results Summary\n")
	buf.WriteString(strings.Repeat("=", 50) + "\n\n")

	fmt.Fprintf(&buf, "Run ID: %s\n", tree.RunID)
	fmt.Fprintf(&buf, "Duration: %s\n", formatDuration(tree.Duration))
	fmt.Fprintf(&buf, "Total Tests: %d\n", tree.Stats.Total)
	fmt.Fprintf(&buf, "Passed: %d\n", tree.Stats.Passed)
	fmt.Fprintf(&buf, "Failed: %d\n", tree.Stats.Failed)
	fmt.Fprintf(&buf, "Skipped: %d\n", tree.Stats.Skipped)
	fmt.Fprintf(&buf, "Status: %s\n", strings.ToUpper(string(tree.Status)))
	if tree.Err != nil {
		fmt.Fprintf(&buf, "Error: %s\n", tree.Err)
	}
	buf.WriteString("\n")

	buf.WriteString("Test Hierarchy:\n")
	buf.WriteString(strings.Repeat("-", 30) + "\n")
	tree.Walk(func(n *Node) bool {
		f.writeNode(&buf, tree, n)
		return true
	})

	if len(tree.Failed) > 0 {
		buf.WriteString("\nFailed Tests:\n")
		buf.WriteString(strings.Repeat("-", 20) + "\n")
		for _, n := range tree.Failed {
			fmt.Fprintf(&buf, "- %s", n.Path)
			if n.Err != nil {
				fmt.Fprintf(&buf, " (%s)", KeyErrorMessage(n.Err))
			}
			buf.WriteString("\n")
		}
	}

	return stripansi.Strip(buf.String())
}

func (f *TextFormatter) writeNode(buf *bytes.Buffer, tree *Tree, n *Node) {
	prefix := tree.Prefix(n)
	line := fmt.Sprintf("%s%s %s", prefix, getStatusChar(n.Status), n.Name)

	switch n.Kind {
	case NodeKindTest:
		if n.Status == types.TestStatusPass {
			line += fmt.Sprintf(" (%s)", formatDuration(n.Elapsed))
		}
		if n.Attempts > 1 {
			line += fmt.Sprintf(" [%d attempts]", n.Attempts)
		}
	case NodeKindGroup:
		line += fmt.Sprintf(" [%d tests, %d passed, %d failed, %d skipped]",
			n.Stats.Total, n.Stats.Passed, n.Stats.Failed, n.Stats.Skipped)
	}
	buf.WriteString(line + "\n")

	if f.includeDetails && n.Kind == NodeKindTest && n.Err != nil {
		indent := strings.Repeat(" ", len([]rune(prefix))+2)
		for _, l := range strings.Split(n.Err.Error(), "\n") {
			fmt.Fprintf(buf, "%s%s\n", indent, l)
		}
	}
}

// getStatusChar returns a character representing the test status
func getStatusChar(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓"
	case types.TestStatusFail:
		return "✗"
	case types.TestStatusSkip:
		return "⊝"
	default:
		return "?"
	}
}

// TextSummarySink persists the text summary of each run under its own directory
type TextSummarySink struct {
	formatter *TextFormatter
	baseDir   string
}

// NewTextSummarySink creates a sink writing below baseDir
func NewTextSummarySink(baseDir string, includeDetails bool) *TextSummarySink {
	return &TextSummarySink{
		formatter: NewTextFormatter(includeDetails),
		baseDir:   baseDir,
	}
}

// Dir returns the directory the summary of runID is written to
func (s *TextSummarySink) Dir(runID string) string {
	return filepath.Join(s.baseDir, "testrun-"+runID)
}

// Write stores the summary of result and returns the path of the file
func (s *TextSummarySink) Write(result types.SuiteResult) (string, error) {
	outputDir := s.Dir(result.RunID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}

	content := s.formatter.Format(BuildTree(result))
	summaryFile := filepath.Join(outputDir, SummaryFileName)
	if err := os.WriteFile(summaryFile, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write summary file: %w", err)
	}
	return summaryFile, nil
}
