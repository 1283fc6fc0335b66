package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch inserts all buffered data from a ScanBatch into SQLite within
// a single transaction. Fake (negative) IDs are remapped to real (positive,
// AUTOINCREMENT) IDs, and finding FileIDs are rewritten using the mapping.
//
// Insert order respects FK dependencies: files first, then findings.
func (s *Store) CommitBatch(batch *ScanBatch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	fakeToReal := make(map[int64]int64)

	for _, f := range batch.Files {
		realID, err := insertFileTx(tx, &f)
		if err != nil {
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		}
		fakeToReal[f.ID] = realID
	}

	for _, fd := range batch.Findings {
		if fd.FileID < 0 {
			realID, ok := fakeToReal[fd.FileID]
			if !ok {
				return fmt.Errorf("commit batch: finding at line %d has file_id=%d not in fakeToReal map (have %d files)", fd.Line, fd.FileID, len(batch.Files))
			}
			fd.FileID = realID
		}
		if _, err := insertFindingTx(tx, &fd); err != nil {
			return fmt.Errorf("commit batch: finding %s:%d: %w", fd.Kind, fd.Line, err)
		}
	}

	return tx.Commit()
}

// --- Transaction-scoped insert helpers ---
// These mirror the Store insert methods but accept *sql.Tx instead of using s.db.

func insertFileTx(tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO files (path, package_id, hash, line_count, scanned_at) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.PackageID, f.Hash, f.LineCount, f.ScannedAt,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertFindingTx(tx *sql.Tx, fd *Finding) (int64, error) {
	if fd.Verdict == "" {
		fd.Verdict = VerdictUnclassified
	}
	res, err := tx.Exec(
		`INSERT INTO findings (file_id, kind, line, col, context, in_test, verdict, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fd.FileID, fd.Kind, fd.Line, fd.Col, fd.Context, fd.InTest, fd.Verdict, fd.Note,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}
