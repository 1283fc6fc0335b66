package store

import (
	"database/sql"
	"fmt"
	"time"
)

// --- Run operations ---

func (s *Store) InsertRun(r *Run) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (uuid, started_at) VALUES (?, ?)",
		r.UUID, r.StartedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	r.ID = id
	return id, nil
}

// FinishRun stores the final counters and finish timestamp for a run.
func (s *Store) FinishRun(r *Run) error {
	now := time.Now()
	r.FinishedAt = &now
	_, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, files_scanned = ?, files_skipped = ?,
			lines = ?, parse_errors = ?, findings = ?
		 WHERE id = ?`,
		r.FinishedAt, r.FilesScanned, r.FilesSkipped,
		r.Lines, r.ParseErrors, r.Findings, r.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

const runCols = "id, uuid, started_at, finished_at, files_scanned, files_skipped, lines, parse_errors, findings"

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	err := scanner.Scan(
		&r.ID, &r.UUID, &r.StartedAt, &r.FinishedAt,
		&r.FilesScanned, &r.FilesSkipped, &r.Lines, &r.ParseErrors, &r.Findings,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// LatestRun returns the most recently started run, or nil if none exist.
func (s *Store) LatestRun() (*Run, error) {
	row := s.db.QueryRow("SELECT " + runCols + " FROM runs ORDER BY started_at DESC, id DESC LIMIT 1")
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// --- Package operations ---

func (s *Store) InsertPackage(p *Package) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO packages (name, version, source_url, archive_path, fetched_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			version = excluded.version,
			source_url = excluded.source_url,
			archive_path = excluded.archive_path,
			fetched_at = excluded.fetched_at`,
		p.Name, p.Version, p.SourceURL, p.ArchivePath, p.FetchedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert package: %w", err)
	}
	// LastInsertId is unreliable after an upsert that updated; look the row up.
	if _, err := res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	got, err := s.PackageByName(p.Name)
	if err != nil {
		return 0, err
	}
	p.ID = got.ID
	return got.ID, nil
}

const packageCols = "id, name, version, source_url, archive_path, fetched_at"

func scanPackage(scanner interface{ Scan(...any) error }) (*Package, error) {
	p := &Package{}
	err := scanner.Scan(&p.ID, &p.Name, &p.Version, &p.SourceURL, &p.ArchivePath, &p.FetchedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) PackageByName(name string) (*Package, error) {
	row := s.db.QueryRow("SELECT "+packageCols+" FROM packages WHERE name = ?", name)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("package by name: %w", err)
	}
	return p, nil
}

// PackageByArchivePath finds the package whose fetched sdist lives at path.
func (s *Store) PackageByArchivePath(path string) (*Package, error) {
	row := s.db.QueryRow("SELECT "+packageCols+" FROM packages WHERE archive_path = ?", path)
	p, err := scanPackage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("package by archive path: %w", err)
	}
	return p, nil
}

func (s *Store) Packages() ([]*Package, error) {
	rows, err := s.db.Query("SELECT " + packageCols + " FROM packages ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()
	var pkgs []*Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		pkgs = append(pkgs, p)
	}
	return pkgs, rows.Err()
}

// --- File operations ---

func (s *Store) InsertFile(f *File) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO files (path, package_id, hash, line_count, scanned_at) VALUES (?, ?, ?, ?, ?)",
		f.Path, f.PackageID, f.Hash, f.LineCount, f.ScannedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert file: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

const fileCols = "id, path, package_id, hash, line_count, scanned_at"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	err := scanner.Scan(&f.ID, &f.Path, &f.PackageID, &f.Hash, &f.LineCount, &f.ScannedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) FileByPath(path string) (*File, error) {
	row := s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path)
	f, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

func (s *Store) FilesByPackage(packageID int64) ([]*File, error) {
	rows, err := s.db.Query("SELECT "+fileCols+" FROM files WHERE package_id = ? ORDER BY path", packageID)
	if err != nil {
		return nil, fmt.Errorf("files by package: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Finding operations ---

func (s *Store) InsertFinding(f *Finding) (int64, error) {
	if f.Verdict == "" {
		f.Verdict = VerdictUnclassified
	}
	res, err := s.db.Exec(
		`INSERT INTO findings (file_id, kind, line, col, context, in_test, verdict, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.FileID, f.Kind, f.Line, f.Col, f.Context, f.InTest, f.Verdict, f.Note,
	)
	if err != nil {
		return 0, fmt.Errorf("insert finding: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	return id, nil
}

const findingCols = "id, file_id, kind, line, col, context, in_test, verdict, note"

func scanFinding(scanner interface{ Scan(...any) error }) (*Finding, error) {
	f := &Finding{}
	err := scanner.Scan(&f.ID, &f.FileID, &f.Kind, &f.Line, &f.Col, &f.Context, &f.InTest, &f.Verdict, &f.Note)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) FindingByID(id int64) (*Finding, error) {
	row := s.db.QueryRow("SELECT "+findingCols+" FROM findings WHERE id = ?", id)
	f, err := scanFinding(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding by id: %w", err)
	}
	return f, nil
}

func (s *Store) FindingsByFile(fileID int64) ([]*Finding, error) {
	rows, err := s.db.Query("SELECT "+findingCols+" FROM findings WHERE file_id = ? ORDER BY line, col", fileID)
	if err != nil {
		return nil, fmt.Errorf("findings by file: %w", err)
	}
	defer rows.Close()
	var findings []*Finding
	for rows.Next() {
		f, err := scanFinding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		findings = append(findings, f)
	}
	return findings, rows.Err()
}

// SetVerdict records a triage verdict for a finding. Returns an error for
// unknown verdict values or missing findings.
func (s *Store) SetVerdict(findingID int64, verdict, note string) error {
	if !ValidVerdict(verdict) {
		return fmt.Errorf("invalid verdict %q", verdict)
	}
	res, err := s.db.Exec(
		"UPDATE findings SET verdict = ?, note = ? WHERE id = ?",
		verdict, note, findingID,
	)
	if err != nil {
		return fmt.Errorf("set verdict: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finding %d not found", findingID)
	}
	return nil
}
