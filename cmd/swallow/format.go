package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
)

// formatSummaryText formats CLISummary as readable text.
func formatSummaryText(w io.Writer, sum CLISummary) {
	fmt.Fprintln(w, "Corpus Summary")
	fmt.Fprintln(w, "==============")
	fmt.Fprintf(w, "Packages: %d\n", sum.PackageCount)
	fmt.Fprintf(w, "Files: %d\n", sum.FileCount)
	fmt.Fprintf(w, "Lines: %d\n", sum.TotalLines)
	fmt.Fprintf(w, "Findings: %d (%d in test code)\n", sum.TotalFindings, sum.InTest)
	fmt.Fprintln(w)

	if len(sum.ByKind) > 0 {
		fmt.Fprintln(w, "By Kind:")
		for _, kind := range sortedKeys(sum.ByKind) {
			fmt.Fprintf(w, "  %s: %d\n", kind, sum.ByKind[kind])
		}
		fmt.Fprintln(w)
	}

	if len(sum.ByVerdict) > 0 {
		fmt.Fprintln(w, "By Verdict:")
		for _, verdict := range sortedKeys(sum.ByVerdict) {
			fmt.Fprintf(w, "  %s: %d\n", verdict, sum.ByVerdict[verdict])
		}
		fmt.Fprintln(w)
	}

	if sum.LastRun != nil {
		fmt.Fprintf(w, "Last run: %s (%d scanned, %d skipped, %d parse errors)\n",
			sum.LastRun.StartedAt,
			sum.LastRun.FilesScanned,
			sum.LastRun.FilesSkipped,
			sum.LastRun.ParseErrors,
		)
	}
}

// formatPackagesText formats CLIPackageStats results as aligned columns.
func formatPackagesText(w io.Writer, stats []CLIPackageStats) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PACKAGE\tFILES\tLINES\tFINDINGS\tRETURN\tBREAK\tCONTINUE")
	for _, ps := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\n",
			ps.Name, ps.Files, ps.Lines, ps.Findings,
			ps.ByKind["return"], ps.ByKind["break"], ps.ByKind["continue"])
	}
	tw.Flush()
}

// formatFindingsText formats CLIFinding results as aligned columns.
func formatFindingsText(w io.Writer, findings []CLIFinding) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tLOCATION\tVERDICT\tTEST\tCONTEXT")
	for _, f := range findings {
		test := ""
		if f.InTest {
			test = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s:%d:%d\t%s\t%s\t%s\n",
			f.ID, f.Kind, f.Path, f.Line, f.Col, f.Verdict, test, f.Context)
	}
	tw.Flush()
}

// formatClassifyText formats a single classified finding.
func formatClassifyText(w io.Writer, f CLIFinding) {
	fmt.Fprintf(w, "Finding %d (%s at line %d) classified as %s\n", f.ID, f.Kind, f.Line, f.Verdict)
	if f.Note != "" {
		fmt.Fprintf(w, "Note: %s\n", f.Note)
	}
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type. It writes to os.Stdout.
func outputResultText(result CLIResult) error {
	w := io.Writer(os.Stdout)

	switch v := result.Results.(type) {
	case CLISummary:
		formatSummaryText(w, v)
	case []CLIPackageStats:
		formatPackagesText(w, v)
	case []CLIFinding:
		formatFindingsText(w, v)
	case CLIFinding:
		formatClassifyText(w, v)
	case nil:
		// No output for nil results.
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}

	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIPackageStats:
		return len(r)
	case []CLIFinding:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
