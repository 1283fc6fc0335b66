package swallow

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/jward/swallow/internal/scanner"
	"github.com/jward/swallow/internal/store"
)

// scanParallel scans targets using a three-phase pipeline:
//
//	Phase A (serial):   targets were expanded by the caller.
//	Phase B (parallel): parse and scan via worker pool (each with own Scanner).
//	Phase C (serial):   delete stale rows, commit batches to SQLite.
func (e *Engine) scanParallel(ctx context.Context, targets []scanTarget, run *store.Run) error {
	if len(targets) == 0 {
		return nil
	}

	numWorkers := e.workers
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers > len(targets) {
		numWorkers = len(targets)
	}

	workCh := make(chan scanTarget, len(targets))
	for _, target := range targets {
		workCh <- target
	}
	close(workCh)

	type outcome struct {
		res *scanResult
		err error
	}
	resultCh := make(chan outcome, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Each worker owns a Scanner: tree-sitter parsers are not
			// goroutine-safe. The per-target ScanBatch handles write isolation.
			sc := scanner.New()
			for target := range workCh {
				res, err := e.scanOne(ctx, sc, target)
				if err != nil {
					err = fmt.Errorf("scan %s: %w", target.path, err)
				}
				resultCh <- outcome{res: res, err: err}
			}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var errs []error
	for out := range resultCh {
		if out.err != nil {
			errs = append(errs, out.err)
			continue
		}
		if err := e.commitResult(out.res, run); err != nil {
			errs = append(errs, fmt.Errorf("commit %s: %w", out.res.target.path, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("parallel scanning had %d error(s): %w", len(errs), errs[0])
	}
	return nil
}
