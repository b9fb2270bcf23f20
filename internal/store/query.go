package store

import (
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/types"
)

// QueryBySizeRange returns every FileRecord whose Size falls in [min, max],
// using the size-ordered index so the scan is a bounded cursor range
// rather than a full-table walk.
func (s *Store) QueryBySizeRange(min, max int64) ([]types.FileRecord, error) {
	var out []types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		cursor := tx.Bucket(bucketBySize).Cursor()

		lo := sizeKey(min, uuid.Nil)
		for k, path := cursor.Seek(lo); k != nil; k, path = cursor.Next() {
			size := int64(beUint64(k[:8]))
			if size > max {
				break
			}
			if row, ok := decodeFileRow(files.Get(path)); ok {
				out = append(out, row.toRecord())
			}
		}
		return nil
	})
	return out, err
}

// QueryByDimensions returns every FileRecord with width ≥ minWidth and
// height ≥ minHeight. No secondary index exists for dimensions, so this
// is a full scan over the files bucket.
func (s *Store) QueryByDimensions(minWidth, minHeight int) ([]types.FileRecord, error) {
	var out []types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, raw []byte) error {
			row, ok := decodeFileRow(raw)
			if ok && row.Width >= minWidth && row.Height >= minHeight {
				out = append(out, row.toRecord())
			}
			return nil
		})
	})
	return out, err
}

// QueryByCaptureDateRange returns every FileRecord whose CreatedAt falls in
// [start, end].
func (s *Store) QueryByCaptureDateRange(start, end time.Time) ([]types.FileRecord, error) {
	var out []types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(_, raw []byte) error {
			row, ok := decodeFileRow(raw)
			if ok && !row.CreatedAt.Before(start) && !row.CreatedAt.After(end) {
				out = append(out, row.toRecord())
			}
			return nil
		})
	})
	return out, err
}

// QueryVideosByDuration returns every video FileRecord whose
// VideoSignature.DurationSec falls in [minSec, maxSec].
func (s *Store) QueryVideosByDuration(minSec, maxSec float64) ([]types.FileRecord, error) {
	var out []types.FileRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		byID := tx.Bucket(bucketFilesByID)

		return tx.Bucket(bucketVideoSig).ForEach(func(idBytes, raw []byte) error {
			var sig types.VideoSignature
			if err := json.Unmarshal(raw, &sig); err != nil {
				return nil
			}
			if sig.DurationSec < minSec || sig.DurationSec > maxSec {
				return nil
			}
			path := byID.Get(idBytes)
			if path == nil {
				return nil
			}
			if row, ok := decodeFileRow(files.Get(path)); ok {
				out = append(out, row.toRecord())
			}
			return nil
		})
	})
	return out, err
}

func decodeFileRow(raw []byte) (fileRow, bool) {
	if raw == nil {
		return fileRow{}, false
	}
	var row fileRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return fileRow{}, false
	}
	return row, true
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}
