// Package grouper fuses exact and near-duplicate evidence into
// confidence-scored duplicate groups (§4.5).
//
// # Overview
//
// The grouper runs two passes over the files a scan produced:
//
//  1. Exact pass - files sharing a content hash form a group at confidence
//     1.0, same as the teacher's screener groups hardlinks by inode: no
//     I/O, metadata (here, the hash already on record) is enough.
//  2. Near pass - an undirected graph is built over everything the exact
//     pass left ungrouped, with an edge between two files whenever their
//     perceptual signatures are close enough and their sizes are
//     comparable. Connected components of size ≥2 become candidate
//     groups, scored conservatively by the weakest edge inside them.
//
// Photo similarity is queried through the SimilarityIndex's BK-trees.
// Video similarity compares sampled frame hashes pairwise directly,
// mirroring the teacher's verifier, which also walks small candidate sets
// directly rather than through an index built for single-hash lookups.
package grouper

import (
	"sort"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/similarity"
	"github.com/photodedupe/photodedupe/internal/types"
)

// Config tunes the grouper's near-pass behavior (§4.5).
type Config struct {
	ExactOnly       bool
	NearRadius      int
	ConfidenceFloor float64
}

// DefaultConfig returns the spec's §4.5 defaults.
func DefaultConfig() Config {
	return Config{
		ExactOnly:       false,
		NearRadius:      5,
		ConfidenceFloor: 0.85,
	}
}

// sizeRatioMin/Max bound the size (or, for videos, duration) ratio allowed
// on a near-pass edge (§4.5 step 2).
const (
	sizeRatioMin = 0.25
	sizeRatioMax = 4.0
)

// FileInput is everything the grouper needs about one scanned file: its
// record plus whichever signatures the hashing stage computed for it.
type FileInput struct {
	Record      types.FileRecord
	ContentHash *types.ContentHash
	Perceptual  []types.PerceptualHash // photos: dHash + pHash
	VideoSig    *types.VideoSignature  // videos only
}

// Grouper fuses SimilarityIndex evidence into DuplicateGroups. Designed
// for single-use: create with New, call Run once per scan.
type Grouper struct {
	cfg Config
}

// New creates a Grouper with the given configuration.
func New(cfg Config) *Grouper {
	return &Grouper{cfg: cfg}
}

// edge is one near-pass adjacency between two not-yet-exactly-grouped
// files.
type edge struct {
	a, b       uuid.UUID
	confidence float64
}

// Run executes the exact and (unless ExactOnly) near passes over files and
// returns every surviving DuplicateGroup, confidence-filtered and with a
// deterministic representative chosen per §3.
func (g *Grouper) Run(idx *similarity.Index, files []FileInput) []types.DuplicateGroup {
	byID := make(map[uuid.UUID]FileInput, len(files))
	for _, f := range files {
		byID[f.Record.ID] = f
	}

	uf := newUnionFind()
	for id := range byID {
		uf.add(id)
	}

	edgeConfidence := make(map[[2]uuid.UUID]float64)
	addEdge := func(a, b uuid.UUID, conf float64) {
		uf.union(a, b)
		key := edgeKey(a, b)
		if existing, ok := edgeConfidence[key]; !ok || conf < existing {
			edgeConfidence[key] = conf
		}
	}

	exactGrouped := g.exactPass(files, addEdge)

	if !g.cfg.ExactOnly {
		g.nearPassPhotos(idx, files, exactGrouped, addEdge)
		g.nearPassVideos(files, exactGrouped, addEdge)
	}

	return g.buildGroups(uf, byID, edgeConfidence)
}

// exactPass groups files by identical content hash at confidence 1.0 and
// reports which file ids it consumed, so the near pass skips them.
func (g *Grouper) exactPass(files []FileInput, addEdge func(a, b uuid.UUID, conf float64)) map[uuid.UUID]bool {
	byHash := make(map[types.ContentHash][]uuid.UUID)
	for _, f := range files {
		if f.ContentHash == nil || f.ContentHash.IsZero() {
			continue
		}
		byHash[*f.ContentHash] = append(byHash[*f.ContentHash], f.Record.ID)
	}

	grouped := make(map[uuid.UUID]bool)
	for _, ids := range byHash {
		if len(ids) < 2 {
			continue
		}
		for i := 1; i < len(ids); i++ {
			addEdge(ids[0], ids[i], 1.0)
		}
		for _, id := range ids {
			grouped[id] = true
		}
	}
	return grouped
}

// nearPassPhotos queries the SimilarityIndex for each ungrouped photo's
// dHash and pHash, forming an edge when a returned match also passes the
// size-ratio gate (§4.5 step 2).
func (g *Grouper) nearPassPhotos(idx *similarity.Index, files []FileInput, exactGrouped map[uuid.UUID]bool, addEdge func(a, b uuid.UUID, conf float64)) {
	radius := g.cfg.NearRadius
	if radius <= 0 {
		radius = 5
	}

	byID := make(map[uuid.UUID]FileInput, len(files))
	for _, f := range files {
		byID[f.Record.ID] = f
	}

	for _, f := range files {
		if f.Record.MediaType != types.MediaPhoto || exactGrouped[f.Record.ID] {
			continue
		}
		id := f.Record.ID

		best := make(map[uuid.UUID]int) // candidate -> best (min) distance across algorithms
		for _, ph := range f.Perceptual {
			id := id
			matches := idx.QueryNear(ph.Hash, ph.Algorithm, radius, &id)
			for _, m := range matches {
				other, ok := byID[m.FileID]
				if !ok || other.Record.MediaType != types.MediaPhoto || exactGrouped[m.FileID] {
					continue
				}
				if cur, seen := best[m.FileID]; !seen || m.Distance < cur {
					best[m.FileID] = m.Distance
				}
			}
		}

		for otherID, dist := range best {
			if !sizeRatioOK(f.Record.Size, byID[otherID].Record.Size) {
				continue
			}
			addEdge(id, otherID, 1.0-float64(dist)/64.0)
		}
	}
}

// nearPassVideos compares sampled frame hashes pairwise between ungrouped
// videos. Frame counts may differ across signatures computed with
// different configuration; only the overlapping prefix is compared.
func (g *Grouper) nearPassVideos(files []FileInput, exactGrouped map[uuid.UUID]bool, addEdge func(a, b uuid.UUID, conf float64)) {
	radius := g.cfg.NearRadius
	if radius <= 0 {
		radius = 5
	}

	var videos []FileInput
	for _, f := range files {
		if f.Record.MediaType == types.MediaVideo && !exactGrouped[f.Record.ID] && f.VideoSig != nil {
			videos = append(videos, f)
		}
	}

	for i := 0; i < len(videos); i++ {
		for j := i + 1; j < len(videos); j++ {
			a, b := videos[i], videos[j]
			if !sizeRatioOK(int64(a.VideoSig.DurationSec*1000), int64(b.VideoSig.DurationSec*1000)) {
				continue
			}

			dist, ok := meanFrameDistance(a.VideoSig.FrameHashes, b.VideoSig.FrameHashes)
			if !ok || dist > float64(radius) {
				continue
			}
			addEdge(a.Record.ID, b.Record.ID, 1.0-dist/64.0)
		}
	}
}

// meanFrameDistance averages Hamming distance across the overlapping
// prefix of two frame-hash sequences.
func meanFrameDistance(a, b []uint64) (float64, bool) {
	n := min(len(a), len(b))
	if n == 0 {
		return 0, false
	}
	total := 0
	for i := 0; i < n; i++ {
		total += hammingDistance(a[i], b[i])
	}
	return float64(total) / float64(n), true
}

// sizeRatioOK reports whether min/max of two positive magnitudes falls
// within [sizeRatioMin, sizeRatioMax] (§4.5 step 2).
func sizeRatioOK(a, b int64) bool {
	if a <= 0 || b <= 0 {
		return false
	}
	lo, hi := float64(a), float64(b)
	if lo > hi {
		lo, hi = hi, lo
	}
	ratio := lo / hi
	return ratio >= sizeRatioMin && ratio <= sizeRatioMax
}

// buildGroups extracts connected components of size ≥2 from the
// union-find, scores each by its weakest edge, filters by the confidence
// floor, and picks a deterministic representative.
func (g *Grouper) buildGroups(uf *unionFind, byID map[uuid.UUID]FileInput, edgeConfidence map[[2]uuid.UUID]float64) []types.DuplicateGroup {
	components := uf.components()

	floor := g.cfg.ConfidenceFloor
	if floor <= 0 {
		floor = 0.85
	}

	var groups []types.DuplicateGroup
	for _, members := range components {
		if len(members) < 2 {
			continue
		}

		confidence := minComponentConfidence(members, edgeConfidence)
		if confidence < floor {
			continue
		}

		groups = append(groups, types.DuplicateGroup{
			FileIDs:        members,
			Representative: pickRepresentative(members, byID),
			Confidence:     confidence,
		})
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Representative.String() < groups[j].Representative.String()
	})

	return groups
}

// minComponentConfidence returns the lowest confidence among edges whose
// both endpoints lie in members - a conservative estimate for the whole
// component (§4.5 step 3). exactPass records its edges at 1.0, so an
// all-exact component scores 1.0; a component with no recorded edge at all
// also defaults to 1.0.
func minComponentConfidence(members []uuid.UUID, edgeConfidence map[[2]uuid.UUID]float64) float64 {
	inComponent := make(map[uuid.UUID]bool, len(members))
	for _, id := range members {
		inComponent[id] = true
	}

	min := 1.0
	found := false
	for key, conf := range edgeConfidence {
		if inComponent[key[0]] && inComponent[key[1]] {
			found = true
			if conf < min {
				min = conf
			}
		}
	}
	if !found {
		return 1.0
	}
	return min
}

// pickRepresentative selects per §3: largest dimensions, then earliest
// created_at, then lexicographically smallest path.
func pickRepresentative(members []uuid.UUID, byID map[uuid.UUID]FileInput) uuid.UUID {
	best := members[0]
	for _, id := range members[1:] {
		if isBetterRepresentative(byID[id].Record, byID[best].Record) {
			best = id
		}
	}
	return best
}

func isBetterRepresentative(candidate, current types.FileRecord) bool {
	candArea := candidate.Width * candidate.Height
	curArea := current.Width * current.Height
	if candArea != curArea {
		return candArea > curArea
	}
	if !candidate.CreatedAt.Equal(current.CreatedAt) {
		return candidate.CreatedAt.Before(current.CreatedAt)
	}
	return candidate.Path < current.Path
}

func edgeKey(a, b uuid.UUID) [2]uuid.UUID {
	if a.String() < b.String() {
		return [2]uuid.UUID{a, b}
	}
	return [2]uuid.UUID{b, a}
}
