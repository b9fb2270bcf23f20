// Package orchestrator implements the ScanOrchestrator (C6): it drives
// Walker -> HashingService -> SimilarityIndex -> Grouper as a bounded,
// cancellable pipeline and emits lifecycle events for the SessionStore to
// observe (§4.6).
//
// # Concurrency model
//
// The same three-role split the teacher's verifier uses - worker pool,
// single collector, orchestrating goroutines that close channels once
// their upstream is drained - reappears here with the stages renamed to
// match the spec's pipeline:
//
//	Walker ──(queue_w cap=1024)──▶ Hasher pool (N workers) ──(queue_h cap=512)──▶ Indexer (single writer) ──▶ Grouper (terminal)
//
// The walker's own output channel (internal/walker.Walker.Run) doubles as
// queue_w; queue_h is created here. N is clamp(NumCPU, 1, 2*NumCPU) unless
// Config.Workers overrides it.
package orchestrator

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/grouper"
	"github.com/photodedupe/photodedupe/internal/hashing"
	"github.com/photodedupe/photodedupe/internal/similarity"
	"github.com/photodedupe/photodedupe/internal/types"
	"github.com/photodedupe/photodedupe/internal/walker"
)

// AlreadyIndexed identifies a (path, size, mtime) triple the caller
// already has signatures for; the orchestrator skips re-hashing it
// (§4.6: resume semantics).
type AlreadyIndexed struct {
	Size    int64
	ModTime time.Time
}

// Config configures one orchestrator run.
type Config struct {
	Roots       []string
	Workers     int // 0 = clamp(NumCPU, 1, 2*NumCPU)
	MaxDepth    int
	NearRadius  int
	ExactOnly   bool

	// Resume filters out observations matching an already-indexed triple.
	Resume         bool
	AlreadyIndexed map[string]AlreadyIndexed

	// Store, if non-nil, receives each hashed file incrementally as the
	// indexer consumes it, batched per persistBatchSize/persistBatchInterval
	// (§5, §8: resume safety - a crash must not lose already-hashed work).
	Store Persister
}

// Outcome is delivered exactly once, after the EventFinished event, on
// the channel returned by Run.
type Outcome struct {
	Groups    []types.DuplicateGroup
	Files     []grouper.FileInput
	Metrics   Metrics
	Cancelled bool
}

// Orchestrator runs one scan. Designed for single-use: create with New,
// call Run once.
type Orchestrator struct {
	cfg      Config
	hashSvc  *hashing.Service
	index    *similarity.Index
	errCount atomic.Int64
}

// New creates an Orchestrator over cfg, with a fresh SimilarityIndex.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		hashSvc: hashing.New(),
		index:   similarity.New(),
	}
}

// hashedItem is what a hasher worker hands to the indexer (queue_h).
type hashedItem struct {
	input grouper.FileInput
	obs   walker.FileObservation
}

// Run starts the pipeline and returns an event stream plus a one-shot
// outcome channel. The event channel closes after EventFinished; the
// outcome channel receives exactly one value and then closes.
func (o *Orchestrator) Run(ctx context.Context) (<-chan Event, <-chan Outcome) {
	events := make(chan Event, 256)
	outcome := make(chan Outcome, 1)

	go o.run(ctx, events, outcome)

	return events, outcome
}

func (o *Orchestrator) run(ctx context.Context, events chan<- Event, outcome chan<- Outcome) {
	defer close(events)
	defer close(outcome)

	startedAt := time.Now()
	for _, root := range o.cfg.Roots {
		events <- Event{Kind: EventStarted, At: time.Now(), RootURL: root}
	}

	w := walker.New(o.cfg.Roots, walker.WithMaxDepth(o.cfg.MaxDepth))
	obsCh, skipCh := w.Run(ctx)

	queueH := make(chan hashedItem, 512)

	var metrics Metrics
	metrics.StartedAt = startedAt

	var hashersWg sync.WaitGroup
	workers := o.workerCount()
	for i := 0; i < workers; i++ {
		hashersWg.Add(1)
		go o.hashWorker(ctx, &hashersWg, obsCh, queueH, events, &metrics)
	}

	// drain walker skips directly into events; joined before Finished is
	// emitted so a late Skipped can never race the close(events) below.
	var skipWg sync.WaitGroup
	skipWg.Add(1)
	go func() {
		defer skipWg.Done()
		for s := range skipCh {
			events <- Event{Kind: EventSkipped, At: time.Now(), Path: s.Path, Reason: string(s.Reason)}
		}
	}()

	go func() {
		hashersWg.Wait()
		close(queueH)
	}()

	files, collected := o.indexer(ctx, queueH, events, &metrics)
	skipWg.Wait()

	cancelled := ctx.Err() != nil

	var groups []types.DuplicateGroup
	if !cancelled {
		cfg := grouper.DefaultConfig()
		cfg.ExactOnly = o.cfg.ExactOnly
		if o.cfg.NearRadius > 0 {
			cfg.NearRadius = o.cfg.NearRadius
		}
		groups = grouper.New(cfg).Run(o.index, files)
	}

	metrics.DuplicatesFlagged = countDuplicateFiles(groups)
	metrics.BytesReclaimable = bytesReclaimable(groups, files)
	metrics.CompletedAt = time.Now()
	metrics.ItemsProcessed = collected

	events <- Event{Kind: EventFinished, At: time.Now(), Metrics: metrics}
	outcome <- Outcome{Groups: groups, Files: files, Metrics: metrics, Cancelled: cancelled}
}

// workerCount resolves N per §4.6: clamp(cpu_count, 1, 2*cpu_count).
func (o *Orchestrator) workerCount() int {
	cpu := runtime.NumCPU()
	if cpu < 1 {
		cpu = 1
	}

	n := o.cfg.Workers
	if n <= 0 {
		n = cpu
	}
	if n > 2*cpu {
		n = 2 * cpu
	}
	if n < 1 {
		n = 1
	}
	return n
}

func countDuplicateFiles(groups []types.DuplicateGroup) int {
	total := 0
	for _, g := range groups {
		total += len(g.FileIDs)
	}
	return total
}

// bytesReclaimable estimates space recoverable by keeping only the
// representative of each group.
func bytesReclaimable(groups []types.DuplicateGroup, files []grouper.FileInput) int64 {
	sizeByID := make(map[uuid.UUID]int64, len(files))
	for _, f := range files {
		sizeByID[f.Record.ID] = f.Record.Size
	}

	var total int64
	for _, g := range groups {
		for _, id := range g.FileIDs {
			if id == g.Representative {
				continue
			}
			total += sizeByID[id]
		}
	}
	return total
}
