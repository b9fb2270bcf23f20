// Package similarity provides the facade the rest of the scan pipeline uses
// to find exact and near-duplicate files: an exact-match map over content
// hashes, and one BK-tree (or linear fallback) per perceptual algorithm.
//
// # Why a facade
//
// Callers never see a raw bktree.Tree or a raw slice. Index owns the
// decision of when to promote an algorithm partition from a linear scan to
// a BK-tree, when to tombstone a removed file, and when to compact away
// tombstones - none of that is the Grouper's or the ScanOrchestrator's
// concern.
//
// # Linear fallback
//
// A BK-tree pays for its pruning with pointer-chasing overhead that isn't
// worth it below a few hundred entries. Partitions stay a flat slice,
// scanned linearly, until they reach treePromotionThreshold entries; at
// that point the partition is rebuilt as a BK-tree. Results are identical
// either way - the fallback exists purely for small-scan latency.
package similarity

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/bktree"
	"github.com/photodedupe/photodedupe/internal/types"
)

// hammingDistance returns the number of differing bits between a and b,
// mirroring bktree's internal metric for the linear-fallback search path.
func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// treePromotionThreshold is the entry count at which a partition switches
// from linear scan to a BK-tree (spec default: 1000 per algorithm).
const treePromotionThreshold = 1000

// tombstoneCompactionRatio triggers a rebuild once tombstoned entries reach
// this fraction of a partition's total entries.
const tombstoneCompactionRatio = 0.10

// defaultNearRadius is used by QueryNear callers that don't override it.
const defaultNearRadius = 5

// Index is the thread-safe similarity facade described by the package doc.
// It is safe for concurrent Add/Remove/Query calls from multiple goroutines;
// callers still serialize writes through a single index writer per the
// ScanOrchestrator's concurrency model (§5), but Index itself does not
// assume that.
type Index struct {
	mu    sync.RWMutex
	exact map[types.ContentHash]map[uuid.UUID]struct{}

	partitions map[types.HashAlgorithm]*partition
}

// partition holds one algorithm's entries, in either linear or BK-tree mode.
type partition struct {
	mu         sync.Mutex
	entries    []bktree.Entry // authoritative list; source of truth for rebuilds
	tombstoned map[uuid.UUID]struct{}
	tree       *bktree.Tree // non-nil once promoted
}

// New creates an empty similarity index.
func New() *Index {
	return &Index{
		exact:      make(map[types.ContentHash]map[uuid.UUID]struct{}),
		partitions: make(map[types.HashAlgorithm]*partition),
	}
}

func (ix *Index) partitionFor(algo types.HashAlgorithm) *partition {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	p, ok := ix.partitions[algo]
	if !ok {
		p = &partition{tombstoned: make(map[uuid.UUID]struct{})}
		ix.partitions[algo] = p
	}
	return p
}

// Add inserts a file's signatures into every relevant structure. A nil
// contentHash or empty perceptual slice is fine - not every file has both.
func (ix *Index) Add(fileID uuid.UUID, contentHash *types.ContentHash, perceptual []types.PerceptualHash) {
	if contentHash != nil {
		ix.mu.Lock()
		set, ok := ix.exact[*contentHash]
		if !ok {
			set = make(map[uuid.UUID]struct{})
			ix.exact[*contentHash] = set
		}
		set[fileID] = struct{}{}
		ix.mu.Unlock()
	}

	for _, ph := range perceptual {
		p := ix.partitionFor(ph.Algorithm)
		p.add(bktree.Entry{FileID: fileID, Hash: ph.Hash})
	}
}

// Remove tombstones a file id everywhere it appears. Searches filter
// tombstones immediately; the underlying storage is only rebuilt once a
// partition crosses tombstoneCompactionRatio.
func (ix *Index) Remove(fileID uuid.UUID) {
	ix.mu.Lock()
	for hash, set := range ix.exact {
		delete(set, fileID)
		if len(set) == 0 {
			delete(ix.exact, hash)
		}
	}
	partitions := make([]*partition, 0, len(ix.partitions))
	for _, p := range ix.partitions {
		partitions = append(partitions, p)
	}
	ix.mu.Unlock()

	for _, p := range partitions {
		p.remove(fileID)
	}
}

// QueryExact returns every file id sharing the given content hash.
func (ix *Index) QueryExact(hash types.ContentHash) []uuid.UUID {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	set := ix.exact[hash]
	out := make([]uuid.UUID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// QueryNear returns files whose hash of the given algorithm is within
// radius Hamming distance of hash, sorted ascending by distance. radius <=
// 0 uses defaultNearRadius.
func (ix *Index) QueryNear(hash uint64, algo types.HashAlgorithm, radius int, exclude *uuid.UUID) []types.Match {
	if radius <= 0 {
		radius = defaultNearRadius
	}

	ix.mu.RLock()
	p, ok := ix.partitions[algo]
	ix.mu.RUnlock()
	if !ok {
		return nil
	}

	return p.search(hash, radius, exclude)
}

// Stats reports per-algorithm counts and a rough mean pairwise distance
// sampled from each partition, useful for sanity-checking a scan.
type Stats struct {
	CountByAlgorithm           map[types.HashAlgorithm]int
	MeanPairwiseDistanceSample map[types.HashAlgorithm]float64
}

// Stats computes a snapshot of the index's current size and distance
// distribution. The pairwise sample is capped to keep this cheap on large
// indexes; it exists for diagnostics, not for grouping decisions.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	partitions := make(map[types.HashAlgorithm]*partition, len(ix.partitions))
	for algo, p := range ix.partitions {
		partitions[algo] = p
	}
	ix.mu.RUnlock()

	st := Stats{
		CountByAlgorithm:           make(map[types.HashAlgorithm]int),
		MeanPairwiseDistanceSample: make(map[types.HashAlgorithm]float64),
	}
	for algo, p := range partitions {
		count, mean := p.stats()
		st.CountByAlgorithm[algo] = count
		st.MeanPairwiseDistanceSample[algo] = mean
	}
	return st
}

func (p *partition) add(e bktree.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = append(p.entries, e)
	if p.tree != nil {
		p.tree.Insert(e)
	} else if len(p.entries) >= treePromotionThreshold {
		p.promoteLocked()
	}
}

// promoteLocked rebuilds the partition as a BK-tree from its current
// entries. Caller must hold p.mu.
func (p *partition) promoteLocked() {
	tree := bktree.New()
	for _, e := range p.entries {
		if _, dead := p.tombstoned[e.FileID]; dead {
			continue
		}
		tree.Insert(e)
	}
	p.tree = tree
}

func (p *partition) remove(fileID uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, already := p.tombstoned[fileID]; already {
		return
	}
	p.tombstoned[fileID] = struct{}{}

	if len(p.entries) == 0 {
		return
	}
	if float64(len(p.tombstoned))/float64(len(p.entries)) >= tombstoneCompactionRatio {
		p.compactLocked()
	}
}

// compactLocked drops tombstoned entries and, if the partition is in
// BK-tree mode, rebuilds the tree. Caller must hold p.mu.
func (p *partition) compactLocked() {
	live := p.entries[:0:0]
	for _, e := range p.entries {
		if _, dead := p.tombstoned[e.FileID]; !dead {
			live = append(live, e)
		}
	}
	p.entries = live
	p.tombstoned = make(map[uuid.UUID]struct{})

	if p.tree != nil {
		p.tree = nil
		if len(p.entries) >= treePromotionThreshold {
			p.promoteLocked()
		}
	}
}

func (p *partition) search(query uint64, radius int, exclude *uuid.UUID) []types.Match {
	p.mu.Lock()
	defer p.mu.Unlock()
	tree := p.tree
	entries := p.entries
	tombstoned := p.tombstoned

	var raw []bktree.Match
	if tree != nil {
		raw = tree.Search(query, radius, exclude)
	} else {
		for _, e := range entries {
			if exclude != nil && e.FileID == *exclude {
				continue
			}
			if d := hammingDistance(e.Hash, query); d <= radius {
				raw = append(raw, bktree.Match{Entry: e, Distance: d})
			}
		}
		sort.Slice(raw, func(i, j int) bool {
			if raw[i].Distance != raw[j].Distance {
				return raw[i].Distance < raw[j].Distance
			}
			return raw[i].Entry.FileID.String() < raw[j].Entry.FileID.String()
		})
	}

	out := make([]types.Match, 0, len(raw))
	for _, m := range raw {
		if _, dead := tombstoned[m.Entry.FileID]; dead {
			continue
		}
		out = append(out, types.Match{FileID: m.Entry.FileID, Distance: m.Distance})
	}
	return out
}

func (p *partition) stats() (count int, meanDistance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	live := make([]bktree.Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if _, dead := p.tombstoned[e.FileID]; !dead {
			live = append(live, e)
		}
	}
	count = len(live)

	const sampleCap = 200
	n := len(live)
	if n > sampleCap {
		n = sampleCap
	}
	if n < 2 {
		return count, 0
	}

	var total, pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			total += hammingDistance(live[i].Hash, live[j].Hash)
			pairs++
		}
	}
	if pairs == 0 {
		return count, 0
	}
	return count, float64(total) / float64(pairs)
}
