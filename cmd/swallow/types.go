package main

import "github.com/jward/swallow"

// CLIResult is the top-level JSON envelope for all report commands.
type CLIResult struct {
	Command    string `json:"command"`
	Results    any    `json:"results"`
	TotalCount *int   `json:"total_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CLISummary is a JSON-friendly corpus summary.
type CLISummary struct {
	TotalFindings int            `json:"total_findings"`
	ByKind        map[string]int `json:"by_kind"`
	ByVerdict     map[string]int `json:"by_verdict"`
	InTest        int            `json:"in_test"`
	TotalLines    int64          `json:"total_lines"`
	FileCount     int            `json:"file_count"`
	PackageCount  int            `json:"package_count"`
	LastRun       *CLIRun        `json:"last_run,omitempty"`
}

// CLIRun is a JSON-friendly run record.
type CLIRun struct {
	UUID         string `json:"uuid"`
	StartedAt    string `json:"started_at"`
	FinishedAt   string `json:"finished_at,omitempty"`
	FilesScanned int    `json:"files_scanned"`
	FilesSkipped int    `json:"files_skipped"`
	Lines        int64  `json:"lines"`
	ParseErrors  int    `json:"parse_errors"`
	Findings     int    `json:"findings"`
}

// CLIPackageStats is a JSON-friendly per-package breakdown entry.
type CLIPackageStats struct {
	Name     string         `json:"name"`
	Files    int            `json:"files"`
	Lines    int64          `json:"lines"`
	Findings int            `json:"findings"`
	ByKind   map[string]int `json:"by_kind"`
}

// CLIFinding is a JSON-friendly finding.
type CLIFinding struct {
	ID      int64  `json:"id"`
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Context string `json:"context,omitempty"`
	Package string `json:"package,omitempty"`
	InTest  bool   `json:"in_test"`
	Verdict string `json:"verdict"`
	Note    string `json:"note,omitempty"`
}

func toCLIRun(r *swallow.Run) *CLIRun {
	if r == nil {
		return nil
	}
	out := &CLIRun{
		UUID:         r.UUID,
		StartedAt:    r.StartedAt.Format("2006-01-02T15:04:05Z07:00"),
		FilesScanned: r.FilesScanned,
		FilesSkipped: r.FilesSkipped,
		Lines:        r.Lines,
		ParseErrors:  r.ParseErrors,
		Findings:     r.Findings,
	}
	if r.FinishedAt != nil {
		out.FinishedAt = r.FinishedAt.Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

func toCLISummary(sum *swallow.Summary) CLISummary {
	return CLISummary{
		TotalFindings: sum.TotalFindings,
		ByKind:        sum.ByKind,
		ByVerdict:     sum.ByVerdict,
		InTest:        sum.InTest,
		TotalLines:    sum.TotalLines,
		FileCount:     sum.FileCount,
		PackageCount:  sum.PackageCount,
		LastRun:       toCLIRun(sum.LastRun),
	}
}

func toCLIPackageStats(stats []swallow.PackageStats) []CLIPackageStats {
	out := make([]CLIPackageStats, 0, len(stats))
	for _, ps := range stats {
		out = append(out, CLIPackageStats{
			Name:     ps.Name,
			Files:    ps.Files,
			Lines:    ps.Lines,
			Findings: ps.Findings,
			ByKind:   ps.ByKind,
		})
	}
	return out
}

func toCLIFindings(details []swallow.FindingDetail) []CLIFinding {
	out := make([]CLIFinding, 0, len(details))
	for _, d := range details {
		out = append(out, CLIFinding{
			ID:      d.ID,
			Kind:    d.Kind,
			Path:    d.Path,
			Line:    d.Line,
			Col:     d.Col,
			Context: d.Context,
			Package: d.PackageName,
			InTest:  d.InTest,
			Verdict: d.Verdict,
			Note:    d.Note,
		})
	}
	return out
}
