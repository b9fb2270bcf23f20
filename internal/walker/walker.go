// Package walker streams media file observations from root directories.
//
// # Architecture Overview
//
// The walker uses the same concurrent fan-out/fan-in architecture the
// teacher's scanner package uses for plain file enumeration, adapted to
// stream results through a bounded channel instead of collecting them into
// a slice - the ScanOrchestrator (§4.6) needs backpressure, not a batch.
//
// # Concurrency Model
//
//  1. WALKER GOROUTINES (fan-out)
//     - One goroutine spawned per directory discovered
//     - Concurrency limited by a semaphore (sem, Walker.workers slots)
//     - Each walker: acquires semaphore -> lists directory -> releases
//       semaphore -> spawns child walkers
//
//  2. MAIN GOROUTINE (orchestrator)
//     - Initializes channels and spawns initial walkers
//     - Waits for all walkers, then closes the observation and skip
//       channels so downstream readers (range loops) terminate
//
// # Contract (§4.1)
//
//   - Follows no symlinks by default; cycles are impossible.
//   - Emits each path at most once per scan.
//   - Surfaces directory I/O errors (a root or directory that cannot be
//     resolved, opened or read) as non-fatal Skipped events. A file whose
//     stat fails after its directory was listed is dropped without a
//     Skipped event.
//   - Honors ctx cancellation at observation boundaries; a cancelled walk
//     leaves subtrees it never reached re-enumerable on resume, since it
//     simply never emitted them.
package walker

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/photodedupe/photodedupe/internal/types"
)

// Walker discovers media files matching filter criteria using parallel
// directory traversal. Designed for single-use: create with New(), call
// Run() once.
type Walker struct {
	roots         []string
	photoExts     map[string]struct{}
	videoExts     map[string]struct{}
	maxDepth      int // 0 = unlimited
	workers       int
	obsBufferSize int
}

// Option configures a Walker at construction time.
type Option func(*Walker)

// WithExtensions overrides the default photo/video extension filters.
func WithExtensions(photo, video []string) Option {
	return func(w *Walker) {
		w.photoExts = toSet(photo)
		w.videoExts = toSet(video)
	}
}

// WithMaxDepth bounds recursion depth below each root; 0 means unlimited.
func WithMaxDepth(depth int) Option {
	return func(w *Walker) { w.maxDepth = depth }
}

// WithWorkers bounds concurrent directory reads.
func WithWorkers(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.workers = n
		}
	}
}

// New creates a Walker over the given root paths.
func New(roots []string, opts ...Option) *Walker {
	w := &Walker{
		roots:         roots,
		photoExts:     toSet(DefaultPhotoExtensions),
		videoExts:     toSet(DefaultVideoExtensions),
		workers:       8,
		obsBufferSize: 1024,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run starts the walk and returns two channels: observations (buffered,
// cap=1024 per §4.6) and skips (non-fatal per-path problems). Both close
// once every directory has been visited or ctx is cancelled.
func (w *Walker) Run(ctx context.Context) (<-chan FileObservation, <-chan Skipped) {
	obsCh := make(chan FileObservation, w.obsBufferSize)
	skipCh := make(chan Skipped, 256)

	go func() {
		defer close(obsCh)
		defer close(skipCh)

		var wg sync.WaitGroup
		sem := types.NewSemaphore(w.workers)

		for _, root := range w.roots {
			abs, err := filepath.Abs(root)
			if err != nil {
				skipCh <- Skipped{Path: root, Reason: SkippedIOError, Err: err}
				continue
			}
			w.walk(ctx, &wg, sem, abs, 0, obsCh, skipCh)
		}
		wg.Wait()
	}()

	return obsCh, skipCh
}

// walk spawns a goroutine to process one directory and recursively spawn
// children, exactly as the teacher's scanner.walkDirectory does.
func (w *Walker) walk(
	ctx context.Context,
	wg *sync.WaitGroup,
	sem types.Semaphore,
	dir string,
	depth int,
	obsCh chan<- FileObservation,
	skipCh chan<- Skipped,
) {
	wg.Add(1)
	go func() {
		defer wg.Done()

		if ctx.Err() != nil {
			return
		}

		sem.Acquire()
		entries, subdirs, err := w.listDirectory(dir)
		sem.Release()
		if err != nil {
			select {
			case skipCh <- Skipped{Path: dir, Reason: SkippedIOError, Err: err}:
			case <-ctx.Done():
			}
			return
		}

		for _, obs := range entries {
			select {
			case obsCh <- obs: // suspension point: blocks if downstream is saturated
			case <-ctx.Done():
				return
			}
		}

		if w.maxDepth > 0 && depth+1 >= w.maxDepth {
			for _, sub := range subdirs {
				select {
				case skipCh <- Skipped{Path: sub, Reason: SkippedMaxDepth}:
				case <-ctx.Done():
					return
				}
			}
			return
		}

		for _, sub := range subdirs {
			w.walk(ctx, wg, sem, sub, depth+1, obsCh, skipCh)
		}
	}()
}

// listDirectory reads a single directory, returning matched media
// observations and subdirectories to recurse into. Symlinks and other
// non-regular entries are silently skipped (§4.1: no symlinks followed).
func (w *Walker) listDirectory(dirPath string) (obs []FileObservation, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, readErr := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if readErr != nil && readErr != io.EOF {
				return obs, subdirs, readErr
			}
			break
		}

		for _, entry := range entries {
			full := filepath.Join(dirPath, entry.Name())

			if entry.IsDir() {
				subdirs = append(subdirs, full)
				continue
			}
			if !entry.Type().IsRegular() {
				continue // symlinks, devices, sockets: never followed
			}

			media, ok := w.classify(entry.Name())
			if !ok {
				continue
			}

			info, statErr := entry.Info()
			if statErr != nil {
				continue // race with deletion/permission change: silently skip
			}

			obs = append(obs, newObservation(full, media, info))
		}
	}

	return obs, subdirs, nil
}

// classify reports the MediaType implied by a file's extension, or
// ok=false if it matches neither filter.
func (w *Walker) classify(name string) (types.MediaType, bool) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if ext == "" {
		return "", false
	}
	if _, ok := w.photoExts[ext]; ok {
		return types.MediaPhoto, true
	}
	if _, ok := w.videoExts[ext]; ok {
		return types.MediaVideo, true
	}
	return "", false
}

func toSet(exts []string) map[string]struct{} {
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		set[strings.ToLower(e)] = struct{}{}
	}
	return set
}
