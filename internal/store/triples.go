package store

import (
	bolt "go.etcd.io/bbolt"
)

// FileTriple is the (path, size, mtime) identity a resumed scan uses to
// decide which observations it can skip re-hashing (§4.6, §4.7).
type FileTriple struct {
	Size    int64
	ModTime int64 // UnixNano, matching fileRow.ModifiedAt precision
}

// AllFileTriples returns every persisted file's (size, mtime), keyed by
// path, for the resume path to hand to the orchestrator.
func (s *Store) AllFileTriples() (map[string]FileTriple, error) {
	out := make(map[string]FileTriple)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(path, raw []byte) error {
			row, ok := decodeFileRow(raw)
			if !ok {
				return nil
			}
			out[string(path)] = FileTriple{Size: row.Size, ModTime: row.ModifiedAt.UnixNano()}
			return nil
		})
	})
	return out, err
}
