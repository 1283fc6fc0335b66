package swallow

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jward/swallow/internal/scanner"
	"github.com/jward/swallow/internal/store"
)

// Engine orchestrates the swallow pipeline: target discovery, change
// detection, parsing and finding extraction, and report access.
type Engine struct {
	store  *store.Store
	logger *zap.Logger

	// useParallel enables the worker-pool scan pipeline.
	useParallel bool
	workers     int

	// includeTests controls whether test-looking source units are scanned.
	includeTests bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithParallel controls parallel scanning. When true (default), ScanPaths
// uses a worker pool for parsing, with the main goroutine committing batches
// to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithWorkers sets the worker count for the parallel pipeline.
// Zero means one worker per CPU.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		e.workers = n
	}
}

// WithIncludeTests controls whether units that look like test code
// (tests directories, test_ modules, conftest files) are scanned. When
// true (default), they are scanned and their findings carry the in-test
// flag; when false, they are skipped entirely.
func WithIncludeTests(include bool) Option {
	return func(e *Engine) {
		e.includeTests = include
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("swallow: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("swallow: migrate: %w", err)
	}

	e := &Engine{
		store:        s,
		logger:       zap.NewNop(),
		useParallel:  true,
		includeTests: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Report returns a new ReportBuilder wrapping the Store.
func (e *Engine) Report() *ReportBuilder {
	return &ReportBuilder{store: e.store}
}

// scanTarget is one unit of scan work: a single .py file or a whole sdist
// archive scanned member-by-member.
type scanTarget struct {
	path      string
	archive   bool
	packageID *int64
}

// scanResult carries one target's buffered output back to the committer.
type scanResult struct {
	target scanTarget
	batch  *store.ScanBatch

	// staleFileIDs are previously indexed files whose hash changed; their
	// old rows are deleted before the batch commits.
	staleFileIDs []int64

	scanned     int
	skipped     int
	parseErrors int
	lines       int64
	findings    int
}

// ScanPaths scans the given paths (files, directories, or sdist tarballs)
// and records everything as one run. When WithParallel is enabled, uses a
// worker pool for parsing with serial SQLite commits. Otherwise falls back
// to the serial path.
//
// For each source unit:
// 1. Skip unchanged units (same content hash)
// 2. Parse with tree-sitter; syntax-error units count as parse errors
// 3. Record the file row and its findings
//
// Errors on individual targets are collected; processing continues.
func (e *Engine) ScanPaths(ctx context.Context, paths []string) (*store.Run, error) {
	targets, err := e.expandTargets(paths)
	if err != nil {
		return nil, err
	}

	run := &store.Run{UUID: uuid.NewString(), StartedAt: time.Now()}
	if _, err := e.store.InsertRun(run); err != nil {
		return nil, fmt.Errorf("begin run: %w", err)
	}

	var scanErr error
	if e.useParallel {
		scanErr = e.scanParallel(ctx, targets, run)
	} else {
		scanErr = e.scanSerial(ctx, targets, run)
	}

	if err := e.store.FinishRun(run); err != nil {
		if scanErr != nil {
			return run, scanErr
		}
		return run, fmt.Errorf("finish run: %w", err)
	}
	return run, scanErr
}

func (e *Engine) scanSerial(ctx context.Context, targets []scanTarget, run *store.Run) error {
	sc := scanner.New()
	var errs []error
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := e.scanOne(ctx, sc, target)
		if err != nil {
			errs = append(errs, fmt.Errorf("scan %s: %w", target.path, err))
			continue
		}
		if err := e.commitResult(res, run); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", target.path, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("scanning had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}

// commitResult deletes stale file rows, commits the batch, and folds the
// result's counters into the run.
func (e *Engine) commitResult(res *scanResult, run *store.Run) error {
	for _, fid := range res.staleFileIDs {
		if err := e.store.DeleteFileData(fid); err != nil {
			return fmt.Errorf("delete old data: %w", err)
		}
	}
	if err := e.store.CommitBatch(res.batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	run.FilesScanned += res.scanned
	run.FilesSkipped += res.skipped
	run.ParseErrors += res.parseErrors
	run.Lines += res.lines
	run.Findings += res.findings
	return nil
}

// scanOne processes a single target into a buffered result. Safe to call
// from worker goroutines as long as each goroutine owns its Scanner.
func (e *Engine) scanOne(ctx context.Context, sc *scanner.Scanner, target scanTarget) (*scanResult, error) {
	res := &scanResult{
		target: target,
		batch:  store.NewScanBatch(e.store),
	}
	if target.archive {
		if err := e.scanArchive(ctx, sc, target, res); err != nil {
			return nil, err
		}
		return res, nil
	}

	content, err := os.ReadFile(target.path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if err := e.scanUnit(ctx, sc, target.path, target.packageID, content, res); err != nil {
		return nil, err
	}
	return res, nil
}

// scanUnit hash-checks and scans one source unit (a file or archive member),
// buffering the file row and findings into res.
func (e *Engine) scanUnit(ctx context.Context, sc *scanner.Scanner, path string, packageID *int64, content []byte, res *scanResult) error {
	inTest := scanner.IsTestPath(path)
	if inTest && !e.includeTests {
		res.skipped++
		return nil
	}

	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := res.batch.FileByPath(path)
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		res.skipped++
		return nil
	}
	if existing != nil {
		res.staleFileIDs = append(res.staleFileIDs, existing.ID)
	}

	fr, err := sc.ScanSource(ctx, path, content)
	if err != nil {
		return err
	}

	f := &store.File{
		Path:      path,
		PackageID: packageID,
		Hash:      hash,
		ScannedAt: time.Now(),
	}
	if fr.ParseError {
		// Unparsable units contribute no lines and no findings, but the row
		// (with its hash) is kept so the unit is not rescanned every run.
		res.parseErrors++
		res.scanned++
		res.batch.AddFile(f)
		e.logger.Debug("syntax errors, skipping", zap.String("path", path))
		return nil
	}

	f.LineCount = fr.Lines
	fileID := res.batch.AddFile(f)

	for _, fd := range fr.Findings {
		res.batch.AddFinding(&store.Finding{
			FileID:  fileID,
			Kind:    fd.Kind,
			Line:    fd.Line,
			Col:     fd.Col,
			Context: fd.Context,
			InTest:  inTest,
		})
	}

	res.scanned++
	res.lines += int64(fr.Lines)
	res.findings += len(fr.Findings)
	return nil
}

// scanArchive scans every .py member of a gzip-compressed tarball without
// extracting it to disk. Member paths are recorded as "archive!member".
func (e *Engine) scanArchive(ctx context.Context, sc *scanner.Scanner, target scanTarget, res *scanResult) error {
	f, err := os.Open(target.path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || !strings.HasSuffix(hdr.Name, ".py") {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			e.logger.Warn("archive member unreadable",
				zap.String("archive", target.path),
				zap.String("member", hdr.Name),
				zap.Error(err))
			continue
		}
		memberPath := target.path + "!" + hdr.Name
		if err := e.scanUnit(ctx, sc, memberPath, target.packageID, content, res); err != nil {
			return fmt.Errorf("member %s: %w", hdr.Name, err)
		}
	}
}

// skipDirs lists directories excluded from directory walks.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// isArchivePath reports whether path names a gzip-compressed tarball.
func isArchivePath(path string) bool {
	return strings.HasSuffix(path, ".tar.gz") || strings.HasSuffix(path, ".tgz")
}

// expandTargets resolves the given paths into scan targets. Directories are
// walked for .py files and sdist tarballs, skipping hidden directories and
// the usual junk dirs. Archives are linked to their package record when the
// archive path matches a fetched sdist.
func (e *Engine) expandTargets(paths []string) ([]scanTarget, error) {
	var targets []scanTarget

	// Overlapping inputs (a file plus its parent directory, or the same path
	// twice) must yield one target, or two workers would commit the same
	// file row.
	seen := make(map[string]bool)

	add := func(path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true
		t := scanTarget{path: path, archive: isArchivePath(path)}
		if t.archive {
			pkg, err := e.store.PackageByArchivePath(path)
			if err != nil {
				return err
			}
			if pkg != nil {
				t.packageID = &pkg.ID
			}
		}
		targets = append(targets, t)
		return nil
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot open %s: %w", abs, err)
		}

		if !info.IsDir() {
			if strings.HasSuffix(abs, ".py") || isArchivePath(abs) {
				if err := add(abs); err != nil {
					return nil, err
				}
				continue
			}
			return nil, fmt.Errorf("unsupported target %s: not a .py file or tarball", abs)
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != abs && (strings.HasPrefix(name, ".") || skipDirs[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".py") || isArchivePath(path) {
				return add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk directory: %w", err)
		}
	}
	return targets, nil
}
