package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jward/swallow/internal/fetch"
	"github.com/jward/swallow/internal/store"
	"github.com/spf13/cobra"
)

var flagConcurrency int

var fetchCmd = &cobra.Command{
	Use:   "fetch [count]",
	Short: "Download the top PyPI package sdists into the corpus directory",
	Long:  "Fetches the top-packages index, resolves each project's sdist URL, and downloads the tarballs into the corpus directory. Already-downloaded archives are kept. Each package is recorded in the database so scans can attribute findings.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runFetch,
}

func init() {
	fetchCmd.Flags().IntVar(&flagConcurrency, "concurrency", 0, "concurrent downloads (0 = config value)")
}

func runFetch(cmd *cobra.Command, args []string) error {
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

	count := cfg.Fetch.Count
	if len(args) > 0 {
		count, err = strconv.Atoi(args[0])
		if err != nil || count <= 0 {
			return fmt.Errorf("invalid count %q: must be a positive integer", args[0])
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	dbPath := resolveDBPath(repoRoot, cfg)
	corpusDir := resolveCorpusDir(repoRoot, cfg)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
	}
	s, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()
	// fetch may be the first command run against a fresh database.
	if err := s.Migrate(); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	opts := []fetch.Option{fetch.WithLogger(logger)}
	if cfg.Fetch.IndexURL != "" {
		opts = append(opts, fetch.WithIndexURL(cfg.Fetch.IndexURL))
	}
	if cfg.Fetch.PyPIURL != "" {
		opts = append(opts, fetch.WithPyPIURL(cfg.Fetch.PyPIURL))
	}
	concurrency := flagConcurrency
	if concurrency == 0 {
		concurrency = cfg.Fetch.Concurrency
	}
	if concurrency > 0 {
		opts = append(opts, fetch.WithConcurrency(concurrency))
	}

	fetcher := fetch.New(s, corpusDir, opts...)
	res, err := fetcher.FetchTop(context.Background(), count)
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Fetched %d package(s) in %s (%d already present, %d failed)\n",
		len(res.Fetched),
		time.Since(start).Round(time.Millisecond),
		res.Skipped,
		len(res.Failed),
	)
	for _, failure := range res.Failed {
		fmt.Fprintf(os.Stderr, "  failed: %s\n", failure)
	}
	fmt.Fprintf(os.Stderr, "Corpus: %s\n", corpusDir)

	return nil
}
