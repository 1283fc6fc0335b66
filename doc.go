// Package swallow scans a corpus of Python source for return, break, and
// continue statements placed directly inside finally clauses. Each occurrence
// silently discards any exception in flight, so the findings, their triage
// verdicts, and corpus statistics are persisted to a SQLite database for
// reporting.
package swallow
