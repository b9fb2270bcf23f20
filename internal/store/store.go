// Package store provides the durable Persistence layer (C8): a single
// embedded BoltDB database holding file records, their signatures, and
// session checkpoints.
//
// # Grounding
//
// The teacher's cache package opens a BoltDB file, keeps one bucket, and
// swaps it atomically on Close because it is a throwaway verification
// cache. Persistence here has the opposite lifetime - it must survive
// across scans - so Store keeps a single long-lived database and several
// buckets, but borrows the teacher's conventions: fixed-width binary keys
// built with encoding/binary, transactions via bolt.Update/View, and
// 0o600 permissions.
package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"github.com/google/uuid"

	"github.com/photodedupe/photodedupe/internal/types"
)

var (
	bucketFiles        = []byte("files")          // path -> json(fileRow)
	bucketFilesByID    = []byte("files_by_id")     // id(16) -> path
	bucketBySize       = []byte("files_by_size")   // size(8 BE) + id(16) -> path
	bucketContentHash  = []byte("content_hashes")  // id(16) -> 32 bytes
	bucketPerceptual   = []byte("perceptual_hashes") // id(16) + algo name -> json(PerceptualHash)
	bucketVideoSig     = []byte("video_signatures") // id(16) -> json(VideoSignature)
	bucketSessions     = []byte("sessions")        // session id -> json(Session)
	bucketSessionsByTime = []byte("sessions_by_time") // updatedAt(8 BE) + id -> id
	allBuckets         = [][]byte{bucketFiles, bucketFilesByID, bucketBySize, bucketContentHash, bucketPerceptual, bucketVideoSig, bucketSessions, bucketSessionsByTime}
)

// fileRow is the on-disk shape of a types.FileRecord.
type fileRow struct {
	ID         uuid.UUID       `json:"id"`
	Path       string          `json:"path"`
	MediaType  types.MediaType `json:"mediaType"`
	Size       int64           `json:"size"`
	CreatedAt  time.Time       `json:"createdAt"`
	ModifiedAt time.Time       `json:"modifiedAt"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
}

func (r fileRow) toRecord() types.FileRecord {
	return types.FileRecord{
		ID:         r.ID,
		Path:       r.Path,
		MediaType:  r.MediaType,
		Size:       r.Size,
		CreatedAt:  r.CreatedAt,
		ModifiedAt: r.ModifiedAt,
		Width:      r.Width,
		Height:     r.Height,
	}
}

func fromRecord(rec types.FileRecord) fileRow {
	return fileRow{
		ID: rec.ID, Path: rec.Path, MediaType: rec.MediaType, Size: rec.Size,
		CreatedAt: rec.CreatedAt, ModifiedAt: rec.ModifiedAt, Width: rec.Width, Height: rec.Height,
	}
}

// Store wraps a single BoltDB database file.
type Store struct {
	db *bolt.DB
}

// Open creates (if needed) and opens the database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sizeKey(size int64, id uuid.UUID) []byte {
	key := make([]byte, 8+16)
	binary.BigEndian.PutUint64(key[:8], uint64(size))
	copy(key[8:], id[:])
	return key
}

// UpsertFileRecord writes or replaces a FileRecord, keeping the path,
// id, and size indexes consistent in one transaction.
func (s *Store) UpsertFileRecord(rec types.FileRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		byID := tx.Bucket(bucketFilesByID)
		bySize := tx.Bucket(bucketBySize)

		if oldRaw := byID.Get(rec.ID[:]); oldRaw != nil {
			var old fileRow
			if err := json.Unmarshal(files.Get(oldRaw), &old); err == nil {
				_ = bySize.Delete(sizeKey(old.Size, old.ID))
				if old.Path != rec.Path {
					_ = files.Delete([]byte(old.Path))
				}
			}
		}

		row := fromRecord(rec)
		raw, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if err := files.Put([]byte(rec.Path), raw); err != nil {
			return err
		}
		if err := byID.Put(rec.ID[:], []byte(rec.Path)); err != nil {
			return err
		}
		return bySize.Put(sizeKey(rec.Size, rec.ID), []byte(rec.Path))
	})
}

// GetFileRecordByPath returns the record stored for path, or ok=false.
func (s *Store) GetFileRecordByPath(path string) (rec types.FileRecord, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketFiles).Get([]byte(path))
		if raw == nil {
			return nil
		}
		var row fileRow
		if unmarshalErr := json.Unmarshal(raw, &row); unmarshalErr != nil {
			return unmarshalErr
		}
		rec, ok = row.toRecord(), true
		return nil
	})
	return rec, ok, err
}

// DeleteFileRecord removes a FileRecord and its signatures.
func (s *Store) DeleteFileRecord(id uuid.UUID) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		byID := tx.Bucket(bucketFilesByID)
		bySize := tx.Bucket(bucketBySize)

		path := byID.Get(id[:])
		if path != nil {
			if raw := files.Get(path); raw != nil {
				var row fileRow
				if err := json.Unmarshal(raw, &row); err == nil {
					_ = bySize.Delete(sizeKey(row.Size, row.ID))
				}
			}
			_ = files.Delete(path)
			_ = byID.Delete(id[:])
		}

		_ = tx.Bucket(bucketContentHash).Delete(id[:])
		_ = tx.Bucket(bucketVideoSig).Delete(id[:])

		cursor := tx.Bucket(bucketPerceptual).Cursor()
		prefix := id[:]
		for k, _ := cursor.Seek(prefix); k != nil && hasPrefix(k, prefix); k, _ = cursor.Next() {
			_ = tx.Bucket(bucketPerceptual).Delete(k)
		}
		return nil
	})
}

// UpsertContentHash stores the content hash for a file id.
func (s *Store) UpsertContentHash(id uuid.UUID, hash types.ContentHash) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketContentHash).Put(id[:], hash[:])
	})
}

// UpsertPerceptualHash stores one algorithm's hash for a file id.
func (s *Store) UpsertPerceptualHash(id uuid.UUID, hash types.PerceptualHash) error {
	raw, err := json.Marshal(hash)
	if err != nil {
		return err
	}
	key := perceptualKey(id, hash.Algorithm)
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPerceptual).Put(key, raw)
	})
}

// UpsertVideoSignature stores the video signature for a file id.
func (s *Store) UpsertVideoSignature(id uuid.UUID, sig types.VideoSignature) error {
	raw, err := json.Marshal(sig)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketVideoSig).Put(id[:], raw)
	})
}

func perceptualKey(id uuid.UUID, algo types.HashAlgorithm) []byte {
	key := make([]byte, 16+len(algo))
	copy(key, id[:])
	copy(key[16:], algo)
	return key
}

func hasPrefix(key, prefix []byte) bool {
	if len(key) < len(prefix) {
		return false
	}
	for i := range prefix {
		if key[i] != prefix[i] {
			return false
		}
	}
	return true
}
