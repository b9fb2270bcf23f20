package grouper

import (
	"math/bits"

	"github.com/google/uuid"
)

// unionFind is a disjoint-set over file ids, used to extract connected
// components from the near-pass adjacency graph (§4.5 step 3).
type unionFind struct {
	parent map[uuid.UUID]uuid.UUID
	rank   map[uuid.UUID]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[uuid.UUID]uuid.UUID),
		rank:   make(map[uuid.UUID]int),
	}
}

func (u *unionFind) add(id uuid.UUID) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
	}
}

func (u *unionFind) find(id uuid.UUID) uuid.UUID {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		u.parent[id], id = root, u.parent[id]
	}
	return root
}

func (u *unionFind) union(a, b uuid.UUID) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}

// components groups every added id by its root, returning only the
// grouping. Neither the order of the components nor the order of members
// within a component is defined (both follow map iteration).
func (u *unionFind) components() [][]uuid.UUID {
	byRoot := make(map[uuid.UUID][]uuid.UUID)
	for id := range u.parent {
		root := u.find(id)
		byRoot[root] = append(byRoot[root], id)
	}
	out := make([][]uuid.UUID, 0, len(byRoot))
	for _, members := range byRoot {
		out = append(out, members)
	}
	return out
}

// hammingDistance counts differing bits between two 64-bit hashes.
func hammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}
