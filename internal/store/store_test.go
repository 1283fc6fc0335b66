package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// insertTestFile is a helper that inserts a file and returns it with ID set.
func insertTestFile(t *testing.T, s *Store, path string) *File {
	t.Helper()
	f := &File{Path: path, Hash: "abc123", LineCount: 10, ScannedAt: time.Now().Truncate(time.Second)}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)
	return f
}

func insertTestFinding(t *testing.T, s *Store, fileID int64, kind string, line int) *Finding {
	t.Helper()
	fd := &Finding{FileID: fileID, Kind: kind, Line: line, Col: 8, Context: kind}
	id, err := s.InsertFinding(fd)
	require.NoError(t, err)
	require.Positive(t, id)
	return fd
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{"runs", "packages", "files", "findings", "metadata"}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// Running migrate again should not error.
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// File operations
// =============================================================================

func TestFile_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	f := &File{Path: "/corpus/pkg/main.py", Hash: "sha256abc", LineCount: 42, ScannedAt: now}
	id, err := s.InsertFile(f)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.FileByPath("/corpus/pkg/main.py")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, "/corpus/pkg/main.py", got.Path)
	assert.Equal(t, "sha256abc", got.Hash)
	assert.Equal(t, 42, got.LineCount)
	assert.Nil(t, got.PackageID)
}

func TestFile_ByPathNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.FileByPath("/nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFile_PathUnique(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/corpus/a.py")
	_, err := s.InsertFile(&File{Path: "/corpus/a.py", ScannedAt: time.Now()})
	require.Error(t, err)
}

func TestFile_ArchiveMemberPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	insertTestFile(t, s, "/corpus/requests-2.32.0.tar.gz!requests-2.32.0/src/requests/api.py")

	got, err := s.FileByPath("/corpus/requests-2.32.0.tar.gz!requests-2.32.0/src/requests/api.py")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestDeleteFileData_RemovesFindings(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/corpus/a.py")
	insertTestFinding(t, s, f.ID, KindReturn, 5)
	insertTestFinding(t, s, f.ID, KindBreak, 9)

	require.NoError(t, s.DeleteFileData(f.ID))

	got, err := s.FileByPath("/corpus/a.py")
	require.NoError(t, err)
	assert.Nil(t, got)

	findings, err := s.FindingsByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, findings)
}

// =============================================================================
// Finding operations
// =============================================================================

func TestFinding_DefaultVerdict(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/corpus/a.py")
	fd := insertTestFinding(t, s, f.ID, KindContinue, 12)

	got, err := s.FindingByID(fd.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, VerdictUnclassified, got.Verdict)
	assert.Equal(t, KindContinue, got.Kind)
	assert.Equal(t, 12, got.Line)
	assert.False(t, got.InTest)
}

func TestFinding_ByFileOrdering(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/corpus/a.py")
	insertTestFinding(t, s, f.ID, KindBreak, 20)
	insertTestFinding(t, s, f.ID, KindReturn, 3)

	findings, err := s.FindingsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, findings, 2)
	assert.Equal(t, 3, findings[0].Line)
	assert.Equal(t, 20, findings[1].Line)
}

func TestSetVerdict(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/corpus/a.py")
	fd := insertTestFinding(t, s, f.ID, KindReturn, 5)

	require.NoError(t, s.SetVerdict(fd.ID, VerdictIncorrect, "swallows KeyboardInterrupt"))

	got, err := s.FindingByID(fd.ID)
	require.NoError(t, err)
	assert.Equal(t, VerdictIncorrect, got.Verdict)
	assert.Equal(t, "swallows KeyboardInterrupt", got.Note)
}

func TestSetVerdict_InvalidVerdict(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f := insertTestFile(t, s, "/corpus/a.py")
	fd := insertTestFinding(t, s, f.ID, KindReturn, 5)

	err := s.SetVerdict(fd.ID, "fine-probably", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid verdict")
}

func TestSetVerdict_MissingFinding(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	err := s.SetVerdict(999, VerdictIncorrect, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

// =============================================================================
// Package operations
// =============================================================================

func TestPackage_InsertAndRetrieve(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	now := time.Now().Truncate(time.Second)
	p := &Package{
		Name: "requests", Version: "2.32.0",
		SourceURL:   "https://files.pythonhosted.org/requests-2.32.0.tar.gz",
		ArchivePath: "/corpus/requests-2.32.0.tar.gz",
		FetchedAt:   now,
	}
	id, err := s.InsertPackage(p)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := s.PackageByName("requests")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2.32.0", got.Version)

	byPath, err := s.PackageByArchivePath("/corpus/requests-2.32.0.tar.gz")
	require.NoError(t, err)
	require.NotNil(t, byPath)
	assert.Equal(t, id, byPath.ID)
}

func TestPackage_UpsertKeepsID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	first, err := s.InsertPackage(&Package{Name: "urllib3", Version: "2.0.0", FetchedAt: time.Now()})
	require.NoError(t, err)

	second, err := s.InsertPackage(&Package{Name: "urllib3", Version: "2.2.1", FetchedAt: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	got, err := s.PackageByName("urllib3")
	require.NoError(t, err)
	assert.Equal(t, "2.2.1", got.Version)
}

func TestPackages_SortedByName(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.InsertPackage(&Package{Name: "urllib3", Version: "2.2.1", FetchedAt: time.Now()})
	require.NoError(t, err)
	_, err = s.InsertPackage(&Package{Name: "boto3", Version: "1.34.0", FetchedAt: time.Now()})
	require.NoError(t, err)

	pkgs, err := s.Packages()
	require.NoError(t, err)
	require.Len(t, pkgs, 2)
	assert.Equal(t, "boto3", pkgs[0].Name)
	assert.Equal(t, "urllib3", pkgs[1].Name)
}

// =============================================================================
// Run operations
// =============================================================================

func TestRun_Lifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	r := &Run{UUID: uuid.NewString(), StartedAt: time.Now().Truncate(time.Second)}
	id, err := s.InsertRun(r)
	require.NoError(t, err)
	require.Positive(t, id)

	r.FilesScanned = 100
	r.FilesSkipped = 7
	r.Lines = 120964221
	r.ParseErrors = 3
	r.Findings = 203
	require.NoError(t, s.FinishRun(r))

	got, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, r.UUID, got.UUID)
	assert.Equal(t, 100, got.FilesScanned)
	assert.Equal(t, int64(120964221), got.Lines)
	assert.Equal(t, 203, got.Findings)
	require.NotNil(t, got.FinishedAt)
}

func TestLatestRun_Empty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	got, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// Metadata
// =============================================================================

func TestMetadata_SetAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Equal(t, "", got)

	require.NoError(t, s.SetMetadata("index_url", "https://example.test/top.json"))
	require.NoError(t, s.SetMetadata("index_url", "https://example.test/top2.json"))

	got, err = s.GetMetadata("index_url")
	require.NoError(t, err)
	assert.Equal(t, "https://example.test/top2.json", got)
}
