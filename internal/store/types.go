package store

import "time"

// Statement kinds recorded for findings.
const (
	KindReturn   = "return"
	KindBreak    = "break"
	KindContinue = "continue"
)

// Triage verdicts. Every finding starts unclassified; the classify command
// moves it into one of the other three buckets.
const (
	VerdictUnclassified     = "unclassified"
	VerdictIncorrect        = "incorrect"
	VerdictPlausiblyCorrect = "plausibly_correct"
	VerdictCorrectInTests   = "correct_in_tests"
)

// ValidVerdict reports whether v is one of the known verdict values.
func ValidVerdict(v string) bool {
	switch v {
	case VerdictUnclassified, VerdictIncorrect, VerdictPlausiblyCorrect, VerdictCorrectInTests:
		return true
	}
	return false
}

// Run is one scan pass over the corpus.
type Run struct {
	ID           int64
	UUID         string
	StartedAt    time.Time
	FinishedAt   *time.Time
	FilesScanned int
	FilesSkipped int
	Lines        int64
	ParseErrors  int
	Findings     int
}

// Package is a fetched corpus member (one PyPI sdist).
type Package struct {
	ID          int64
	Name        string
	Version     string
	SourceURL   string
	ArchivePath string
	FetchedAt   time.Time
}

// File is a scanned source unit. Path is either a plain filesystem path or
// an archive member reference of the form "dist.tar.gz!pkg/module.py".
type File struct {
	ID        int64
	Path      string
	PackageID *int64
	Hash      string
	LineCount int
	ScannedAt time.Time
}

// Finding is one return/break/continue statement sitting directly inside a
// finally clause.
type Finding struct {
	ID      int64
	FileID  int64
	Kind    string
	Line    int
	Col     int
	Context string
	InTest  bool
	Verdict string
	Note    string
}
