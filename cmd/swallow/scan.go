package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jward/swallow"
	"github.com/jward/swallow/internal/config"
	"github.com/spf13/cobra"
)

var (
	flagForce     bool
	flagSerial    bool
	flagWorkers   int
	flagSkipTests bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path...]",
	Short: "Scan Python sources for control flow inside finally blocks",
	Long:  "Parses .py files and sdist tarballs with tree-sitter and records every return, break, and continue whose nearest enclosing scope boundary is a finally clause. With no arguments the configured corpus directory is scanned.",
	RunE:  runScan,
}

func init() {
	scanCmd.Flags().BoolVar(&flagForce, "force", false, "delete database and rescan from scratch")
	scanCmd.Flags().BoolVar(&flagSerial, "serial", false, "disable the parallel pipeline")
	scanCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel workers (0 = one per CPU)")
	scanCmd.Flags().BoolVar(&flagSkipTests, "skip-tests", false, "skip test files and test directories")
}

func runScan(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot, cfg)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}

	// Handle --force: delete the DB file entirely.
	if flagForce {
		if err := os.Remove(dbPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing database for --force: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", dbPath)
	}

	targets, err := resolveScanTargets(args, repoRoot, cfg)
	if err != nil {
		return err
	}

	opts := []swallow.Option{
		swallow.WithLogger(logger),
		swallow.WithParallel(!flagSerial && !cfg.Scan.Serial),
		swallow.WithIncludeTests(!flagSkipTests && !cfg.Scan.SkipTests),
	}
	workers := flagWorkers
	if workers == 0 {
		workers = cfg.Scan.Workers
	}
	if workers > 0 {
		opts = append(opts, swallow.WithWorkers(workers))
	}

	engine, err := swallow.New(dbPath, opts...)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}
	defer engine.Close()

	run, err := engine.ScanPaths(context.Background(), targets)
	if err != nil {
		return fmt.Errorf("scanning: %w", err)
	}

	// Print timing summary to stderr.
	fmt.Fprintf(os.Stderr, "Scanned %d file(s), %d line(s) in %s (%d skipped, %d parse errors, %d findings)\n",
		run.FilesScanned,
		run.Lines,
		time.Since(start).Round(time.Millisecond),
		run.FilesSkipped,
		run.ParseErrors,
		run.Findings,
	)
	fmt.Fprintf(os.Stderr, "Database: %s\n", dbPath)

	return nil
}

// resolveScanTargets turns positional args into absolute paths, falling back
// to the configured corpus directory when no args are given.
func resolveScanTargets(args []string, repoRoot string, cfg *config.Config) ([]string, error) {
	if len(args) == 0 {
		dir := resolveCorpusDir(repoRoot, cfg)
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return nil, fmt.Errorf("corpus directory not found: %s (run 'swallow fetch' first or pass a path)", dir)
		}
		return []string{dir}, nil
	}

	targets := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", arg, err)
		}
		targets = append(targets, abs)
	}
	return targets, nil
}
