package orchestrator

import (
	"context"
	"time"

	"github.com/photodedupe/photodedupe/internal/grouper"
)

// progressInterval is how often a Progress checkpoint is emitted during
// streaming, absent a count-based trigger (§4.6: every ~250 items or 1s).
const (
	progressEveryItems = 250
	progressInterval   = 1 * time.Second
)

// indexer is the single-writer stage: it reads hashedItems off queueH,
// adds each to the SimilarityIndex, accumulates the FileInput list the
// Grouper needs for its final pass, and - if a Store is configured -
// flushes hashed files to durable storage in batches as it goes, so a
// crash loses at most one partial batch of already-hashed work (§5, §8).
// Returns the collected inputs and how many were processed.
func (o *Orchestrator) indexer(ctx context.Context, queueH <-chan hashedItem, events chan<- Event, metrics *Metrics) ([]grouper.FileInput, int) {
	var files []grouper.FileInput
	var pending []grouper.FileInput
	lastProgress := time.Now()
	lastFlush := time.Now()
	processed := 0

	flush := func() {
		if o.cfg.Store == nil || len(pending) == 0 {
			pending = pending[:0]
			lastFlush = time.Now()
			return
		}
		for _, f := range pending {
			if err := persistOne(o.cfg.Store, f); err != nil {
				if err := persistOne(o.cfg.Store, f); err != nil { // one retry, §7
					o.errCount.Add(1)
					events <- Event{Kind: EventError, At: time.Now(), Path: f.Record.Path, Err: err}
				}
			}
		}
		pending = pending[:0]
		lastFlush = time.Now()
	}

	for item := range queueH {
		if ctx.Err() != nil {
			// drain the rest without indexing so hasher goroutines don't
			// block trying to send into a queue nobody reads anymore.
			continue
		}

		o.index.Add(item.input.Record.ID, item.input.ContentHash, item.input.Perceptual)
		files = append(files, item.input)
		pending = append(pending, item.input)
		processed++

		events <- Event{Kind: EventItem, At: time.Now(), Record: item.input.Record}

		if len(pending) >= persistBatchSize || time.Since(lastFlush) >= persistBatchInterval {
			flush()
		}

		if processed%progressEveryItems == 0 || time.Since(lastProgress) >= progressInterval {
			events <- Event{Kind: EventProgress, At: time.Now(), Processed: processed}
			lastProgress = time.Now()
		}
	}
	flush() // final partial batch

	metrics.Errors = int(o.errCount.Load())
	return files, processed
}
