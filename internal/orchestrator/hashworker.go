package orchestrator

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/grouper"
	"github.com/photodedupe/photodedupe/internal/hashing"
	"github.com/photodedupe/photodedupe/internal/types"
	"github.com/photodedupe/photodedupe/internal/walker"
)

// retryBackoff is the transient-I/O retry schedule (§7): 100ms, 400ms,
// 1.6s, then surface as Skipped.
var retryBackoff = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// hashWorker is one member of the fixed-size hasher pool. It pulls
// observations off obsCh until the channel closes or ctx is cancelled,
// computes every signature the media type needs, and forwards a
// hashedItem to queueH.
func (o *Orchestrator) hashWorker(
	ctx context.Context,
	wg *sync.WaitGroup,
	obsCh <-chan walker.FileObservation,
	queueH chan<- hashedItem,
	events chan<- Event,
	metrics *Metrics,
) {
	defer wg.Done()

	for obs := range obsCh {
		if ctx.Err() != nil {
			return
		}

		if o.skipAlreadyIndexed(obs) {
			continue
		}

		item, skip := o.hashObservation(ctx, obs, events, metrics)
		if skip {
			continue
		}

		select {
		case queueH <- item:
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) skipAlreadyIndexed(obs walker.FileObservation) bool {
	if !o.cfg.Resume || o.cfg.AlreadyIndexed == nil {
		return false
	}
	prior, ok := o.cfg.AlreadyIndexed[obs.Path]
	return ok && prior.Size == obs.Size && prior.ModTime.Equal(obs.ModTime)
}

// hashObservation computes the content hash and the media-type-specific
// signature for one file, retrying transient I/O errors and surfacing
// decode failures as a single-attempt Skipped event (§7).
func (o *Orchestrator) hashObservation(ctx context.Context, obs walker.FileObservation, events chan<- Event, metrics *Metrics) (hashedItem, bool) {
	contentHash, err := withRetry(ctx, func() (types.ContentHash, error) {
		return o.hashSvc.ContentHash(ctx, obs.Path)
	})
	if err != nil {
		o.emitSkip(events, metrics, obs.Path, err)
		return hashedItem{}, true
	}

	record := types.FileRecord{
		ID:         deriveFileID(obs.Path),
		Path:       obs.Path,
		MediaType:  obs.MediaType,
		Size:       obs.Size,
		ModifiedAt: obs.ModTime,
		CreatedAt:  obs.CTime,
	}

	input := grouper.FileInput{Record: record, ContentHash: &contentHash}

	switch obs.MediaType {
	case types.MediaPhoto:
		hashes, width, height, err := o.hashImage(ctx, obs.Path)
		if err != nil {
			o.emitSkip(events, metrics, obs.Path, err)
			return hashedItem{}, true
		}
		input.Record.Width, input.Record.Height = width, height
		input.Perceptual = hashes
	case types.MediaVideo:
		sig, err := withRetry(ctx, func() (types.VideoSignature, error) {
			return o.hashSvc.VideoSignature(ctx, obs.Path)
		})
		if err != nil {
			o.emitSkip(events, metrics, obs.Path, err)
			return hashedItem{}, true
		}
		input.VideoSig = &sig
	}

	return hashedItem{input: input, obs: obs}, false
}

func (o *Orchestrator) hashImage(ctx context.Context, path string) ([]types.PerceptualHash, int, int, error) {
	hashes, err := withRetry(ctx, func() ([]types.PerceptualHash, error) {
		return o.hashSvc.ImageHashes(ctx, path)
	})
	if err != nil {
		return nil, 0, 0, err
	}
	width, height := 0, 0
	if len(hashes) > 0 {
		width, height = hashes[0].Width, hashes[0].Height
	}
	return hashes, width, height, nil
}

// withRetry retries a transient I/O error up to len(retryBackoff) times.
// DecodeFailedError is never retried: decode failures are single-attempt
// per §7.
func withRetry[T any](ctx context.Context, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	attempts := append([]time.Duration{0}, retryBackoff...)
	for _, delay := range attempts {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		result, err := op()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var decodeErr *hashing.DecodeFailedError
		if errors.As(err, &decodeErr) || errors.Is(err, hashing.ErrCancelled) {
			return zero, err // not transient: surface immediately
		}
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}

func (o *Orchestrator) emitSkip(events chan<- Event, metrics *Metrics, path string, err error) {
	reason := "io_error"
	var decodeErr *hashing.DecodeFailedError
	if errors.As(err, &decodeErr) {
		if errors.Is(decodeErr.Cause, hashing.ErrDecodeTimeout) {
			reason = "decode_timeout"
		} else {
			reason = "decode_failed"
		}
	} else if os.IsPermission(err) {
		reason = "permission_denied"
	}

	o.errCount.Add(1)
	events <- Event{Kind: EventSkipped, At: time.Now(), Path: path, Reason: reason, Err: err}
}

// deriveFileID derives a stable UUID from an absolute path (§3: "id...
// stable across scans by absolute path"), so re-scanning the same file
// never mints a second identity for it before Persistence has a chance to
// look one up by path.
func deriveFileID(path string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path))
}
