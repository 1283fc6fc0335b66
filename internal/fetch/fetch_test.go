package fetch

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/swallow/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.NewStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// newTestServer serves a top-packages index, per-package release metadata,
// and sdist bodies for the given project names. Projects in noSdist get
// wheel-only releases.
func newTestServer(t *testing.T, projects []string, noSdist map[string]bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/top.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rows":[`)
		for i, p := range projects {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"project":%q,"download_count":%d}`, p, 1000-i)
		}
		fmt.Fprint(w, `]}`)
	})

	mux.HandleFunc("/pypi/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/pypi/") : len(r.URL.Path)-len("/json")]
		if noSdist[name] {
			fmt.Fprintf(w, `{"info":{"name":%q,"version":"1.0.0"},"urls":[
				{"packagetype":"bdist_wheel","url":"http://unused","filename":"%s-1.0.0-py3-none-any.whl"}]}`,
				name, name)
			return
		}
		fmt.Fprintf(w, `{"info":{"name":%q,"version":"1.0.0"},"urls":[
			{"packagetype":"bdist_wheel","url":"http://unused","filename":"%s-1.0.0-py3-none-any.whl"},
			{"packagetype":"sdist","url":"http://%s/sdist/%s-1.0.0.tar.gz","filename":"%s-1.0.0.tar.gz"}]}`,
			name, name, r.Host, name, name)
	})

	mux.HandleFunc("/sdist/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "tarball-bytes-for-%s", filepath.Base(r.URL.Path))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestFetcher(t *testing.T, s *store.Store, srv *httptest.Server) (*Fetcher, string) {
	t.Helper()
	dir := t.TempDir()
	f := New(s, dir,
		WithIndexURL(srv.URL+"/top.json"),
		WithPyPIURL(srv.URL),
		WithConcurrency(2),
	)
	return f, dir
}

func TestFetchTop_DownloadsAndRecords(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srv := newTestServer(t, []string{"boto3", "urllib3", "requests"}, nil)
	f, dir := newTestFetcher(t, s, srv)

	res, err := f.FetchTop(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, res.Fetched, 2)
	assert.Zero(t, res.Skipped)
	assert.Empty(t, res.Failed)

	// Top-2 cut honors index order.
	assert.FileExists(t, filepath.Join(dir, "boto3-1.0.0.tar.gz"))
	assert.FileExists(t, filepath.Join(dir, "urllib3-1.0.0.tar.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "requests-1.0.0.tar.gz"))

	pkg, err := s.PackageByName("boto3")
	require.NoError(t, err)
	require.NotNil(t, pkg)
	assert.Equal(t, "1.0.0", pkg.Version)
	assert.Equal(t, filepath.Join(dir, "boto3-1.0.0.tar.gz"), pkg.ArchivePath)

	byPath, err := s.PackageByArchivePath(pkg.ArchivePath)
	require.NoError(t, err)
	require.NotNil(t, byPath)
}

func TestFetchTop_SkipsExistingArchives(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srv := newTestServer(t, []string{"boto3"}, nil)
	f, dir := newTestFetcher(t, s, srv)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "boto3-1.0.0.tar.gz"), []byte("cached"), 0o644))

	res, err := f.FetchTop(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	require.Len(t, res.Fetched, 1)

	// Cached bytes are untouched, but the package is still recorded.
	data, err := os.ReadFile(filepath.Join(dir, "boto3-1.0.0.tar.gz"))
	require.NoError(t, err)
	assert.Equal(t, "cached", string(data))

	pkg, err := s.PackageByName("boto3")
	require.NoError(t, err)
	require.NotNil(t, pkg)
}

func TestFetchTop_WheelOnlyPackageIsCollectedNotFatal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srv := newTestServer(t, []string{"boto3", "wheelonly"}, map[string]bool{"wheelonly": true})
	f, _ := newTestFetcher(t, s, srv)

	res, err := f.FetchTop(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, res.Fetched, 1)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0], "wheelonly")
	assert.Contains(t, res.Failed[0], "no .tar.gz sdist")
}

func TestFetchTop_IndexFailureIsFatal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	f := New(s, t.TempDir(), WithIndexURL(srv.URL+"/top.json"), WithPyPIURL(srv.URL))
	_, err := f.FetchTop(context.Background(), 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch package index")
}

func TestFetchTop_CountLargerThanIndex(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	srv := newTestServer(t, []string{"boto3"}, nil)
	f, _ := newTestFetcher(t, s, srv)

	res, err := f.FetchTop(context.Background(), 50)
	require.NoError(t, err)
	assert.Len(t, res.Fetched, 1)
}
