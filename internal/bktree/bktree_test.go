package bktree

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
)

// =============================================================================
// Section 1: Hamming metric properties
// =============================================================================

func TestHammingMetricProperties(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 200; i++ {
		a, b, c := r.Uint64(), r.Uint64(), r.Uint64()

		if hamming(a, a) != 0 {
			t.Fatalf("hamming(a,a) = %d, want 0", hamming(a, a))
		}
		if hamming(a, b) != hamming(b, a) {
			t.Fatalf("hamming not symmetric: %d != %d", hamming(a, b), hamming(b, a))
		}
		if hamming(a, c) > hamming(a, b)+hamming(b, c) {
			t.Fatalf("triangle inequality violated: hamming(a,c)=%d > %d+%d",
				hamming(a, c), hamming(a, b), hamming(b, c))
		}
	}
}

// =============================================================================
// Section 2: Insert / Search basics
// =============================================================================

func TestSearchFindsExactMatch(t *testing.T) {
	tree := New()
	id := uuid.New()
	tree.Insert(Entry{FileID: id, Hash: 0b1010})

	matches := tree.Search(0b1010, 0, nil)
	if len(matches) != 1 || matches[0].Entry.FileID != id {
		t.Fatalf("expected exact match, got %+v", matches)
	}
}

func TestSearchExcludesFile(t *testing.T) {
	tree := New()
	id := uuid.New()
	tree.Insert(Entry{FileID: id, Hash: 0b1010})

	matches := tree.Search(0b1010, 0, &id)
	if len(matches) != 0 {
		t.Fatalf("expected exclusion to drop the match, got %+v", matches)
	}
}

func TestSearchEmptyTree(t *testing.T) {
	tree := New()
	if matches := tree.Search(0, 64, nil); matches != nil {
		t.Fatalf("expected nil matches on empty tree, got %+v", matches)
	}
}

func TestSearchSortedAscendingByDistance(t *testing.T) {
	tree := New()
	tree.Insert(Entry{FileID: uuid.New(), Hash: 0b0000})
	tree.Insert(Entry{FileID: uuid.New(), Hash: 0b0001}) // distance 1
	tree.Insert(Entry{FileID: uuid.New(), Hash: 0b0011}) // distance 2
	tree.Insert(Entry{FileID: uuid.New(), Hash: 0b0111}) // distance 3

	matches := tree.Search(0, 3, nil)
	for i := 1; i < len(matches); i++ {
		if matches[i].Distance < matches[i-1].Distance {
			t.Fatalf("matches not sorted ascending: %+v", matches)
		}
	}
}

// =============================================================================
// Section 3: BK-tree completeness vs linear scan
// =============================================================================

func linearSearch(entries []Entry, query uint64, r int) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int)
	for _, e := range entries {
		d := hamming(e.Hash, query)
		if d <= r {
			out[e.FileID] = d
		}
	}
	return out
}

func TestBKTreeCompletenessMatchesLinearScan(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	tree := New()
	var entries []Entry

	for i := 0; i < 500; i++ {
		e := Entry{FileID: uuid.New(), Hash: r.Uint64()}
		tree.Insert(e)
		entries = append(entries, e)
	}

	for q := 0; q < 20; q++ {
		query := r.Uint64()
		radius := r.Intn(10)

		want := linearSearch(entries, query, radius)
		got := tree.Search(query, radius, nil)

		if len(got) != len(want) {
			t.Fatalf("radius %d: got %d matches, want %d", radius, len(got), len(want))
		}
		for _, m := range got {
			wantDist, ok := want[m.Entry.FileID]
			if !ok {
				t.Fatalf("bk-tree returned unexpected entry %v", m.Entry.FileID)
			}
			if wantDist != m.Distance {
				t.Fatalf("distance mismatch for %v: got %d, want %d", m.Entry.FileID, m.Distance, wantDist)
			}
		}
	}
}
