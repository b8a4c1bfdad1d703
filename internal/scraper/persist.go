package scraper

import (
	"context"
	"fmt"
	"log"
	"time"

	"dlhub/pkg/models"
)

// maxChunkSize is the hard upper bound on one commit batch.
const maxChunkSize = 500

// CommitOptions tunes CommitWorks. Zero values mean: maxChunkSize chunks,
// no delay, stop on first failed chunk.
type CommitOptions struct {
	ChunkSize         int
	ChunkDelay        time.Duration
	ContinueOnFailure bool
}

// CommitResult reports per-item outcomes. Errors holds one entry per failed
// item or chunk; callers decide whether any of it is fatal.
type CommitResult struct {
	Succeeded int
	Failed    int
	Errors    []error
}

// CommitWorks writes works to the store in bounded chunks. Items that
// cannot be prepared (empty id) are recorded and skipped without aborting
// their chunk; a failed chunk fails all its items and, unless
// ContinueOnFailure is set, halts the remaining chunks.
func CommitWorks(ctx context.Context, store Store, works []models.Work, opts CommitOptions) CommitResult {
	var res CommitResult

	size := opts.ChunkSize
	if size <= 0 || size > maxChunkSize {
		size = maxChunkSize
	}

	for start := 0; start < len(works); start += size {
		end := start + size
		if end > len(works) {
			end = len(works)
		}

		chunk := make([]models.Work, 0, end-start)
		for _, w := range works[start:end] {
			if w.ID == "" {
				res.Failed++
				res.Errors = append(res.Errors, fmt.Errorf("work with empty id skipped (title %q)", w.Title))
				continue
			}
			chunk = append(chunk, w)
		}

		// a chunk emptied by preparation failures still issues its commit
		if err := store.SaveWorks(ctx, chunk); err != nil {
			res.Failed += len(chunk)
			res.Errors = append(res.Errors, fmt.Errorf("commit chunk of %d: %w", len(chunk), err))
			log.Printf("[persist] WARN chunk failed (%d works): %v", len(chunk), err)
			if !opts.ContinueOnFailure {
				return res
			}
		} else {
			res.Succeeded += len(chunk)
		}

		if opts.ChunkDelay > 0 && end < len(works) {
			select {
			case <-ctx.Done():
				res.Errors = append(res.Errors, ctx.Err())
				return res
			case <-time.After(opts.ChunkDelay):
			}
		}
	}

	return res
}
