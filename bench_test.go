package swallow

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/swallow/internal/scanner"
)

// benchPySource is a realistic Python file with try/finally in several
// shapes for exercising the full scan pipeline. Three statements are
// directly inside finally clauses.
const benchPySource = `import os
import shutil
import tempfile


class Workspace:
    def __init__(self, root):
        self.root = root
        self.tmp = None

    def setup(self):
        self.tmp = tempfile.mkdtemp(dir=self.root)
        return self.tmp

    def teardown(self):
        try:
            shutil.rmtree(self.tmp)
        finally:
            self.tmp = None
            return True


def copy_all(sources, dest):
    copied = []
    for src in sources:
        handle = open(src, "rb")
        try:
            data = handle.read()
        finally:
            handle.close()
            continue
        copied.append((src, data))
    return copied


def first_readable(paths):
    while paths:
        path = paths.pop()
        try:
            with open(path) as f:
                return f.read()
        except OSError:
            pass
        finally:
            break
    return None


def safe_size(path):
    try:
        return os.path.getsize(path)
    except OSError:
        return 0
    finally:
        pass


def checked(path):
    try:
        handle = open(path)
    except OSError:
        return None
    else:
        try:
            return handle.read()
        finally:
            handle.close()
`

// setupBenchEngine creates an Engine and a Python source file, returning the
// engine and file path. Caller must close the engine.
func setupBenchEngine(b *testing.B) (*Engine, string) {
	b.Helper()
	dir := b.TempDir()
	dbPath := filepath.Join(dir, "bench.db")

	e, err := New(dbPath)
	if err != nil {
		b.Fatal(err)
	}

	srcPath := filepath.Join(dir, "bench.py")
	if err := os.WriteFile(srcPath, []byte(benchPySource), 0644); err != nil {
		e.Close()
		b.Fatal(err)
	}

	return e, srcPath
}

// BenchmarkScanSource measures the parse-and-walk cost for a realistic
// Python file, without any database involvement.
func BenchmarkScanSource(b *testing.B) {
	sc := scanner.New()
	ctx := context.Background()
	content := []byte(benchPySource)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		res, err := sc.ScanSource(ctx, "bench.py", content)
		if err != nil {
			b.Fatal(err)
		}
		if len(res.Findings) != 3 {
			b.Fatalf("expected 3 findings, got %d", len(res.Findings))
		}
	}
}

// BenchmarkScanPaths measures a full scan cycle including hashing, change
// detection, and the SQLite commit.
func BenchmarkScanPaths(b *testing.B) {
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e, srcPath := setupBenchEngine(b)
		b.StartTimer()

		if _, err := e.ScanPaths(ctx, []string{srcPath}); err != nil {
			e.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		e.Close()
		b.StartTimer()
	}
}

// BenchmarkScanPaths_Unchanged measures the rescan path where every file is
// skipped by the content hash check.
func BenchmarkScanPaths_Unchanged(b *testing.B) {
	e, srcPath := setupBenchEngine(b)
	defer e.Close()
	ctx := context.Background()

	// Prime the database so rescans skip.
	if _, err := e.ScanPaths(ctx, []string{srcPath}); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.ScanPaths(ctx, []string{srcPath}); err != nil {
			b.Fatal(err)
		}
	}
}
