// Package types provides the shared domain model used across the
// photodedupe codebase: scanned file records, content and perceptual
// hashes, video signatures, and the duplicate groups produced by the
// grouping stage.
package types

import (
	"time"

	"github.com/google/uuid"
)

// MediaType classifies a FileRecord as a photo or a video.
type MediaType string

const (
	MediaPhoto MediaType = "photo"
	MediaVideo MediaType = "video"
)

// FileRecord holds metadata for a scanned media file. Its ID is stable
// across scans for a given absolute path; the record is mutated (and its
// signatures invalidated) only when Size or ModifiedAt change.
type FileRecord struct {
	ID         uuid.UUID
	Path       string
	MediaType  MediaType
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
	Width      int // 0 if unknown
	Height     int // 0 if unknown
}

// HasDimensions reports whether width/height were recovered during hashing.
func (f *FileRecord) HasDimensions() bool {
	return f.Width > 0 && f.Height > 0
}

// ContentHash is a 256-bit cryptographic digest over the full bytes of a
// file. Two files with equal ContentHash are byte-identical.
type ContentHash [32]byte

// IsZero reports whether the digest was never computed.
func (h ContentHash) IsZero() bool {
	return h == ContentHash{}
}

// HashAlgorithm identifies a perceptual hashing scheme. Hamming distance is
// only meaningful between hashes of the same algorithm.
type HashAlgorithm string

const (
	AlgoDHash HashAlgorithm = "dhash"
	AlgoPHash HashAlgorithm = "phash"
)

// Algorithms lists every perceptual algorithm computed for photos.
var Algorithms = []HashAlgorithm{AlgoDHash, AlgoPHash}

// PerceptualHash is a short fingerprint where small perceptual changes in
// the source image produce small Hamming distances between hashes.
type PerceptualHash struct {
	Algorithm  HashAlgorithm
	Hash       uint64
	Width      int
	Height     int
	ComputedAt time.Time
}

// VideoSignature is a duration plus k dHash fingerprints sampled evenly
// across the playable range of the video.
type VideoSignature struct {
	DurationSec float64
	FrameHashes []uint64
}

// Match is one hit returned by a near-neighbor query: the matched file and
// its Hamming distance from the query hash.
type Match struct {
	FileID   uuid.UUID
	Distance int
}

// DuplicateGroup is a set of files the Grouper considers duplicates or
// near-duplicates of one another, together with a deterministically chosen
// representative and a confidence score in [0, 1].
type DuplicateGroup struct {
	FileIDs        []uuid.UUID
	Representative uuid.UUID
	Confidence     float64
}
