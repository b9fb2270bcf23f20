package orchestrator

import (
	"time"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/grouper"
	"github.com/photodedupe/photodedupe/internal/types"
)

// Persister is the subset of internal/store.Store the indexer needs to
// checkpoint a hashed file's record and signatures. Accepting the
// interface rather than *store.Store keeps this package independent of
// the persistence layer's concrete type and lets tests run without a
// store.
type Persister interface {
	UpsertFileRecord(rec types.FileRecord) error
	UpsertContentHash(id uuid.UUID, hash types.ContentHash) error
	UpsertPerceptualHash(id uuid.UUID, hash types.PerceptualHash) error
	UpsertVideoSignature(id uuid.UUID, sig types.VideoSignature) error
}

// persistBatchSize/persistBatchInterval bound how long a hashed file can
// sit unpersisted in memory (§5: "batched to amortize cost, batch size 64
// or 250ms timeout") - the amortization the spec asks for, not an excuse
// to delay durability past a crash.
const (
	persistBatchSize     = 64
	persistBatchInterval = 250 * time.Millisecond
)

// persistOne writes a single FileInput's record and every signature it
// carries. Persistence write failure gets one retry per §7; the caller
// decides what a second failure means for the session.
func persistOne(p Persister, f grouper.FileInput) error {
	if err := p.UpsertFileRecord(f.Record); err != nil {
		return err
	}
	if f.ContentHash != nil {
		if err := p.UpsertContentHash(f.Record.ID, *f.ContentHash); err != nil {
			return err
		}
	}
	for _, h := range f.Perceptual {
		if err := p.UpsertPerceptualHash(f.Record.ID, h); err != nil {
			return err
		}
	}
	if f.VideoSig != nil {
		if err := p.UpsertVideoSignature(f.Record.ID, *f.VideoSig); err != nil {
			return err
		}
	}
	return nil
}
