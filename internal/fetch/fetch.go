// Package fetch downloads the corpus: the sdist tarballs of the most
// downloaded PyPI packages, resolved via the top-packages index and the
// PyPI JSON API.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jward/swallow/internal/store"
)

// Default endpoints. Both are overridable for tests and mirrors.
const (
	DefaultIndexURL = "https://hugovk.github.io/top-pypi-packages/top-pypi-packages-30-days.min.json"
	DefaultPyPIURL  = "https://pypi.org"
)

// Fetcher downloads sdists into a corpus directory and records them in the
// packages table.
type Fetcher struct {
	store       *store.Store
	dir         string
	client      *http.Client
	indexURL    string
	pypiURL     string
	concurrency int
	logger      *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets the structured logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// WithIndexURL overrides the top-packages index endpoint.
func WithIndexURL(url string) Option {
	return func(f *Fetcher) { f.indexURL = url }
}

// WithPyPIURL overrides the PyPI base URL.
func WithPyPIURL(url string) Option {
	return func(f *Fetcher) { f.pypiURL = strings.TrimRight(url, "/") }
}

// WithConcurrency sets the number of simultaneous downloads.
func WithConcurrency(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.concurrency = n
		}
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) { f.client = client }
}

// New creates a Fetcher that downloads into dir.
func New(s *store.Store, dir string, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:       s,
		dir:         dir,
		client:      &http.Client{Timeout: 5 * time.Minute},
		indexURL:    DefaultIndexURL,
		pypiURL:     DefaultPyPIURL,
		concurrency: 8,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Result summarizes one fetch pass.
type Result struct {
	Fetched []*store.Package // resolved and recorded, including already-present sdists
	Skipped int              // how many of Fetched were already present on disk
	Failed  []string         // "name: reason" for per-package failures
}

// FetchTop downloads the sdists of the top n packages. Per-package failures
// (no sdist, HTTP errors) are logged and collected in the Result; only
// index-level failures are fatal.
func (f *Fetcher) FetchTop(ctx context.Context, n int) (*Result, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating corpus dir: %w", err)
	}

	projects, err := f.topProjects(ctx, n)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	var mu sync.Mutex

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.concurrency)
	for _, name := range projects {
		name := name
		eg.Go(func() error {
			pkg, skipped, err := f.fetchOne(egCtx, name)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				f.logger.Warn("fetch failed", zap.String("package", name), zap.Error(err))
				res.Failed = append(res.Failed, fmt.Sprintf("%s: %s", name, err))
			case skipped:
				res.Skipped++
				res.Fetched = append(res.Fetched, pkg)
			default:
				f.logger.Info("fetched sdist",
					zap.String("package", pkg.Name),
					zap.String("version", pkg.Version))
				res.Fetched = append(res.Fetched, pkg)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Record packages serially; SQLite wants one writer.
	for _, pkg := range res.Fetched {
		if _, err := f.store.InsertPackage(pkg); err != nil {
			return nil, fmt.Errorf("record package %s: %w", pkg.Name, err)
		}
	}
	return res, nil
}

// topProjects fetches the top-packages index and returns the first n
// project names.
func (f *Fetcher) topProjects(ctx context.Context, n int) ([]string, error) {
	var index struct {
		Rows []struct {
			Project string `json:"project"`
		} `json:"rows"`
	}
	if err := f.getJSON(ctx, f.indexURL, &index); err != nil {
		return nil, fmt.Errorf("fetch package index: %w", err)
	}
	if len(index.Rows) == 0 {
		return nil, fmt.Errorf("package index %s is empty", f.indexURL)
	}

	var projects []string
	for _, row := range index.Rows {
		if len(projects) == n {
			break
		}
		projects = append(projects, row.Project)
	}
	return projects, nil
}

// fetchOne resolves and downloads one package's sdist. Returns skipped=true
// when the archive is already on disk.
func (f *Fetcher) fetchOne(ctx context.Context, name string) (*store.Package, bool, error) {
	var release struct {
		Info struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"info"`
		URLs []struct {
			PackageType string `json:"packagetype"`
			URL         string `json:"url"`
			Filename    string `json:"filename"`
		} `json:"urls"`
	}
	if err := f.getJSON(ctx, f.pypiURL+"/pypi/"+name+"/json", &release); err != nil {
		return nil, false, err
	}

	var sdistURL, filename string
	for _, u := range release.URLs {
		if u.PackageType == "sdist" && strings.HasSuffix(u.Filename, ".tar.gz") {
			sdistURL, filename = u.URL, u.Filename
			break
		}
	}
	if sdistURL == "" {
		return nil, false, fmt.Errorf("no .tar.gz sdist for %s %s", release.Info.Name, release.Info.Version)
	}

	dest := filepath.Join(f.dir, filename)
	pkg := &store.Package{
		Name:        release.Info.Name,
		Version:     release.Info.Version,
		SourceURL:   sdistURL,
		ArchivePath: dest,
		FetchedAt:   time.Now(),
	}

	if _, err := os.Stat(dest); err == nil {
		return pkg, true, nil
	}

	if err := f.download(ctx, sdistURL, dest); err != nil {
		return nil, false, err
	}
	return pkg, false, nil
}

// download streams url into dest via a temp file so partial downloads never
// land at the final path.
func (f *Fetcher) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(f.dir, ".download-*")
	if err != nil {
		return fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		tmp.Close()
		return fmt.Errorf("write sdist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("move sdist into place: %w", err)
	}
	return nil
}

// getJSON fetches url and decodes the response body into v.
func (f *Fetcher) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
