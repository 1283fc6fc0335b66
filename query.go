package swallow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/swallow/internal/store"
)

// ReportBuilder aggregates the scan database into the statistics the
// research report quotes: corpus size, finding counts by statement kind,
// and triage verdict breakdowns.
type ReportBuilder struct {
	store *store.Store
}

// NewReportBuilder wraps an existing Store.
func NewReportBuilder(s *store.Store) *ReportBuilder {
	return &ReportBuilder{store: s}
}

// Summary is the corpus-wide aggregate.
type Summary struct {
	TotalFindings int
	ByKind        map[string]int
	ByVerdict     map[string]int
	InTest        int
	TotalLines    int64
	FileCount     int
	PackageCount  int
	LastRun       *store.Run
}

// PackageStats is the per-package finding breakdown. Files not linked to a
// fetched package are grouped under the name "(unpackaged)".
type PackageStats struct {
	Name     string
	Files    int
	Lines    int64
	Findings int
	ByKind   map[string]int
}

// FindingDetail joins a finding with its file path and package name.
type FindingDetail struct {
	store.Finding
	Path        string
	PackageName string
}

// FindingFilter narrows and paginates finding listings. Zero values mean
// "no filter"; a Limit of zero means no limit.
type FindingFilter struct {
	Kind    string
	Verdict string
	Package string
	Limit   int
	Offset  int
}

// Summary computes the corpus-wide aggregate.
func (r *ReportBuilder) Summary() (*Summary, error) {
	sum := &Summary{
		ByKind:    make(map[string]int),
		ByVerdict: make(map[string]int),
	}

	db := r.store.DB()

	rows, err := db.Query("SELECT kind, COUNT(*) FROM findings GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("summary: by kind: %w", err)
	}
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("summary: scan kind: %w", err)
		}
		sum.ByKind[kind] = n
		sum.TotalFindings += n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: kind rows: %w", err)
	}

	rows, err = db.Query("SELECT verdict, COUNT(*) FROM findings GROUP BY verdict")
	if err != nil {
		return nil, fmt.Errorf("summary: by verdict: %w", err)
	}
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("summary: scan verdict: %w", err)
		}
		sum.ByVerdict[verdict] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: verdict rows: %w", err)
	}

	if err := db.QueryRow("SELECT COUNT(*) FROM findings WHERE in_test").Scan(&sum.InTest); err != nil {
		return nil, fmt.Errorf("summary: in test: %w", err)
	}
	if err := db.QueryRow("SELECT COALESCE(SUM(line_count), 0), COUNT(*) FROM files").Scan(&sum.TotalLines, &sum.FileCount); err != nil {
		return nil, fmt.Errorf("summary: files: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM packages").Scan(&sum.PackageCount); err != nil {
		return nil, fmt.Errorf("summary: packages: %w", err)
	}

	lastRun, err := r.store.LatestRun()
	if err != nil {
		return nil, fmt.Errorf("summary: latest run: %w", err)
	}
	sum.LastRun = lastRun

	return sum, nil
}

// PackageBreakdown returns per-package statistics ordered by finding count,
// most findings first, with ties broken by name. File and line totals come
// from the files table alone so finding multiplicity cannot inflate them.
func (r *ReportBuilder) PackageBreakdown() ([]PackageStats, error) {
	rows, err := r.store.DB().Query(`
		SELECT COALESCE(p.name, '(unpackaged)') AS pkg,
		       COUNT(*),
		       COALESCE(SUM(f.line_count), 0)
		FROM files f
		LEFT JOIN packages p ON p.id = f.package_id
		GROUP BY pkg`)
	if err != nil {
		return nil, fmt.Errorf("package breakdown: %w", err)
	}
	defer rows.Close()

	var stats []PackageStats
	for rows.Next() {
		ps := PackageStats{ByKind: make(map[string]int)}
		if err := rows.Scan(&ps.Name, &ps.Files, &ps.Lines); err != nil {
			return nil, fmt.Errorf("package breakdown: scan: %w", err)
		}
		stats = append(stats, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("package breakdown: rows: %w", err)
	}

	// Kind breakdown in a second pass, keyed by package name.
	byName := make(map[string]*PackageStats, len(stats))
	for i := range stats {
		byName[stats[i].Name] = &stats[i]
	}
	kindRows, err := r.store.DB().Query(`
		SELECT COALESCE(p.name, '(unpackaged)') AS pkg, fd.kind, COUNT(*)
		FROM findings fd
		JOIN files f ON f.id = fd.file_id
		LEFT JOIN packages p ON p.id = f.package_id
		GROUP BY pkg, fd.kind`)
	if err != nil {
		return nil, fmt.Errorf("package breakdown: kinds: %w", err)
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var pkg, kind string
		var n int
		if err := kindRows.Scan(&pkg, &kind, &n); err != nil {
			return nil, fmt.Errorf("package breakdown: scan kind: %w", err)
		}
		if ps, ok := byName[pkg]; ok {
			ps.ByKind[kind] = n
			ps.Findings += n
		}
	}
	if err := kindRows.Err(); err != nil {
		return nil, fmt.Errorf("package breakdown: kind rows: %w", err)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Findings != stats[j].Findings {
			return stats[i].Findings > stats[j].Findings
		}
		return stats[i].Name < stats[j].Name
	})
	return stats, nil
}

// Findings lists findings matching the filter, ordered by file path and
// line. The second return value is the total match count before pagination.
func (r *ReportBuilder) Findings(filter FindingFilter) ([]FindingDetail, int, error) {
	var conds []string
	var args []any
	if filter.Kind != "" {
		conds = append(conds, "fd.kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Verdict != "" {
		conds = append(conds, "fd.verdict = ?")
		args = append(args, filter.Verdict)
	}
	if filter.Package != "" {
		conds = append(conds, "p.name = ?")
		args = append(args, filter.Package)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	from := `
		FROM findings fd
		JOIN files f ON f.id = fd.file_id
		LEFT JOIN packages p ON p.id = f.package_id`

	var total int
	if err := r.store.DB().QueryRow("SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("findings: count: %w", err)
	}

	query := `
		SELECT fd.id, fd.file_id, fd.kind, fd.line, fd.col, fd.context,
		       fd.in_test, fd.verdict, fd.note, f.path, COALESCE(p.name, '')` +
		from + where + " ORDER BY f.path, fd.line, fd.col"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.store.DB().Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("findings: query: %w", err)
	}
	defer rows.Close()

	var details []FindingDetail
	for rows.Next() {
		var d FindingDetail
		if err := rows.Scan(
			&d.ID, &d.FileID, &d.Kind, &d.Line, &d.Col, &d.Context,
			&d.InTest, &d.Verdict, &d.Note, &d.Path, &d.PackageName,
		); err != nil {
			return nil, 0, fmt.Errorf("findings: scan: %w", err)
		}
		details = append(details, d)
	}
	return details, total, rows.Err()
}
