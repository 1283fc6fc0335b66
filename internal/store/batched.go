package store

import "sync"

// ScanBatch buffers scan results in memory using fake (negative) file IDs
// until CommitBatch writes them to SQLite in one transaction. Workers in the
// parallel pipeline each own a batch, so SQLite sees a single writer.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
// Read queries (FileByPath) are passed through to the underlying Store,
// which is safe for concurrent reads.
type ScanBatch struct {
	store *Store // for read passthrough
	mu    sync.Mutex

	// Buffered scan data.
	Files    []File
	Findings []Finding

	nextFakeID int64 // starts at -1, decrements
}

// NewScanBatch creates a ScanBatch backed by the given Store for read queries.
func NewScanBatch(s *Store) *ScanBatch {
	return &ScanBatch{
		store:      s,
		nextFakeID: -1,
	}
}

func (b *ScanBatch) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// AddFile buffers a file record and returns its fake ID for use as the
// FileID of findings added to the same batch.
func (b *ScanBatch) AddFile(f *File) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	f.ID = fakeID
	b.Files = append(b.Files, *f)
	return fakeID
}

// AddFinding buffers a finding. FileID may be a fake ID from AddFile or a
// real ID of an already-committed file.
func (b *ScanBatch) AddFinding(f *Finding) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	fakeID := b.allocFakeID()
	f.ID = fakeID
	b.Findings = append(b.Findings, *f)
	return fakeID
}

// FileByPath passes through to the underlying Store so workers can
// hash-check archive members discovered mid-scan.
func (b *ScanBatch) FileByPath(path string) (*File, error) {
	return b.store.FileByPath(path)
}
