package grouper

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/similarity"
	"github.com/photodedupe/photodedupe/internal/types"
)

func newPhoto(path string, size int64, hash uint64, width, height int, createdAt time.Time) FileInput {
	ch := contentHashOf(path)
	return FileInput{
		Record: types.FileRecord{
			ID:        uuid.New(),
			Path:      path,
			MediaType: types.MediaPhoto,
			Size:      size,
			CreatedAt: createdAt,
			Width:     width,
			Height:    height,
		},
		ContentHash: &ch,
		Perceptual: []types.PerceptualHash{
			{Algorithm: types.AlgoDHash, Hash: hash},
			{Algorithm: types.AlgoPHash, Hash: hash},
		},
	}
}

func contentHashOf(seed string) types.ContentHash {
	var h types.ContentHash
	copy(h[:], seed)
	return h
}

func buildIndex(files []FileInput) *similarity.Index {
	idx := similarity.New()
	for _, f := range files {
		idx.Add(f.Record.ID, f.ContentHash, f.Perceptual)
	}
	return idx
}

func TestExactDuplicatesGroupAtFullConfidence(t *testing.T) {
	now := time.Now()
	a := newPhoto("/a.jpg", 1<<20, 0, 100, 100, now)
	b := newPhoto("/b.jpg", 1<<20, 0, 100, 100, now)
	same := contentHashOf("identical-bytes")
	a.ContentHash, b.ContentHash = &same, &same
	a.Perceptual, b.Perceptual = nil, nil // exact pass doesn't need perceptual hashes

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	g := groups[0]
	if g.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", g.Confidence)
	}
	if len(g.FileIDs) != 2 {
		t.Fatalf("expected 2 members, got %d", len(g.FileIDs))
	}
	wantRep := a.Record.ID
	if a.Record.Path > b.Record.Path {
		wantRep = b.Record.ID
	}
	if g.Representative != wantRep {
		t.Fatalf("expected lexicographically-smallest-path representative")
	}
}

func TestNearDuplicatePhotosGroupAboveFloor(t *testing.T) {
	now := time.Now()
	a := newPhoto("/a.jpg", 1<<20, 0b1010, 512, 512, now)
	b := newPhoto("/b.jpg", 1<<20, 0b1011, 512, 512, now.Add(time.Hour)) // distance 1

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 1 {
		t.Fatalf("expected 1 near-duplicate group, got %d", len(groups))
	}
	if groups[0].Confidence < 0.90 {
		t.Fatalf("expected high confidence for distance-1 match, got %v", groups[0].Confidence)
	}
	if groups[0].Representative != a.Record.ID {
		t.Fatalf("expected earliest created_at as representative")
	}
}

func TestDissimilarPhotosDoNotGroup(t *testing.T) {
	now := time.Now()
	a := newPhoto("/a.jpg", 1<<20, 0x0000000000000000, 100, 100, now)
	b := newPhoto("/b.jpg", 1<<20, 0xFFFFFFFFFFFFFFFF, 100, 100, now)

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 0 {
		t.Fatalf("expected no groups for maximally distant hashes, got %d", len(groups))
	}
}

func TestSizeRatioRejectsEdge(t *testing.T) {
	now := time.Now()
	a := newPhoto("/a.jpg", 100, 0b1010, 100, 100, now)
	b := newPhoto("/b.jpg", 1000, 0b1011, 100, 100, now) // ratio 0.1 < 0.25

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 0 {
		t.Fatalf("expected size-ratio gate to reject the group, got %d", len(groups))
	}
}

func TestExactOnlySkipsNearPass(t *testing.T) {
	now := time.Now()
	a := newPhoto("/a.jpg", 1<<20, 0b1010, 512, 512, now)
	b := newPhoto("/b.jpg", 1<<20, 0b1011, 512, 512, now)

	files := []FileInput{a, b}
	idx := buildIndex(files)

	cfg := DefaultConfig()
	cfg.ExactOnly = true
	groups := New(cfg).Run(idx, files)
	if len(groups) != 0 {
		t.Fatalf("expected exact_only to skip near-duplicates, got %d", len(groups))
	}
}

func TestVideoDurationMismatchRejectsEdge(t *testing.T) {
	now := time.Now()
	frames := []uint64{1, 2, 3, 4, 5}

	a := FileInput{
		Record:   types.FileRecord{ID: uuid.New(), Path: "/short.mp4", MediaType: types.MediaVideo, Size: 100, CreatedAt: now},
		VideoSig: &types.VideoSignature{DurationSec: 10, FrameHashes: frames},
	}
	aHash := contentHashOf("a")
	a.ContentHash = &aHash

	b := FileInput{
		Record:   types.FileRecord{ID: uuid.New(), Path: "/long.mp4", MediaType: types.MediaVideo, Size: 100, CreatedAt: now},
		VideoSig: &types.VideoSignature{DurationSec: 60, FrameHashes: frames},
	}
	bHash := contentHashOf("b")
	b.ContentHash = &bHash

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 0 {
		t.Fatalf("expected duration-ratio mismatch to reject the group, got %d", len(groups))
	}
}

func TestVideoNearDuplicateGroups(t *testing.T) {
	now := time.Now()
	framesA := []uint64{0b1010, 0b0101, 0b1111, 0b0000, 0b1100}
	framesB := []uint64{0b1010, 0b0101, 0b1111, 0b0000, 0b1101} // 1 bit off in last frame

	a := FileInput{
		Record:   types.FileRecord{ID: uuid.New(), Path: "/a.mp4", MediaType: types.MediaVideo, Size: 100, CreatedAt: now},
		VideoSig: &types.VideoSignature{DurationSec: 30, FrameHashes: framesA},
	}
	aHash := contentHashOf("a")
	a.ContentHash = &aHash

	b := FileInput{
		Record:   types.FileRecord{ID: uuid.New(), Path: "/b.mp4", MediaType: types.MediaVideo, Size: 100, CreatedAt: now},
		VideoSig: &types.VideoSignature{DurationSec: 31, FrameHashes: framesB},
	}
	bHash := contentHashOf("b")
	b.ContentHash = &bHash

	files := []FileInput{a, b}
	idx := buildIndex(files)

	groups := New(DefaultConfig()).Run(idx, files)
	if len(groups) != 1 {
		t.Fatalf("expected 1 near-duplicate video group, got %d", len(groups))
	}
}

func TestConfidenceFloorFiltersWeakGroups(t *testing.T) {
	now := time.Now()
	// Distance 10 -> confidence 1 - 10/64 = 0.84375, below the 0.85 default
	// floor. Widen the radius so the match still reaches the floor check
	// instead of being excluded earlier by the radius cutoff itself.
	a := newPhoto("/a.jpg", 1<<20, 0b0000000000, 512, 512, now)
	b := newPhoto("/b.jpg", 1<<20, 0b1111111111, 512, 512, now)

	files := []FileInput{a, b}
	idx := buildIndex(files)

	cfg := DefaultConfig()
	cfg.NearRadius = 20
	groups := New(cfg).Run(idx, files)
	if len(groups) != 0 {
		t.Fatalf("expected confidence floor to filter a 0.84 match, got %d", len(groups))
	}
}
