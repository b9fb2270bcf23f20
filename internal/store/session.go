package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// SaveSession writes the raw (already-JSON-encoded) session checkpoint
// under id, keeping the time index used by LatestSession/PruneSessions
// up to date. Session encoding itself is the session package's
// responsibility (§6); Store only persists bytes.
func (s *Store) SaveSession(id string, data []byte, updatedAt time.Time) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(bucketSessions)
		byTime := tx.Bucket(bucketSessionsByTime)

		if old := sessions.Get([]byte(id)); old != nil {
			if oldTime, ok := extractUpdatedAt(old); ok {
				_ = byTime.Delete(timeKey(oldTime, id))
			}
		}

		if err := sessions.Put([]byte(id), data); err != nil {
			return err
		}
		return byTime.Put(timeKey(updatedAt, id), []byte(id))
	})
}

// LoadSession returns the raw checkpoint bytes for id, or ok=false if
// absent.
func (s *Store) LoadSession(id string) (data []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSessions).Get([]byte(id))
		if raw == nil {
			return nil
		}
		data = append([]byte(nil), raw...)
		ok = true
		return nil
	})
	return data, ok, err
}

// LatestSession returns the id and bytes of the most recently updated
// session, or ok=false if the store holds none.
func (s *Store) LatestSession() (id string, data []byte, ok bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketSessionsByTime).Cursor()
		k, idBytes := cursor.Last()
		if k == nil {
			return nil
		}
		id = string(idBytes)
		data = append([]byte(nil), tx.Bucket(bucketSessions).Get(idBytes)...)
		ok = true
		return nil
	})
	return id, data, ok, err
}

// PruneSessions deletes all but the keepLatest most recently updated
// sessions.
func (s *Store) PruneSessions(keepLatest int) error {
	if keepLatest < 0 {
		return fmt.Errorf("keepLatest must be >= 0, got %d", keepLatest)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		byTime := tx.Bucket(bucketSessionsByTime)
		sessions := tx.Bucket(bucketSessions)

		total := byTime.Stats().KeyN
		toDelete := total - keepLatest
		if toDelete <= 0 {
			return nil
		}

		cursor := byTime.Cursor()
		var keys, ids [][]byte
		for k, id := cursor.First(); k != nil && len(keys) < toDelete; k, id = cursor.Next() {
			keys = append(keys, append([]byte(nil), k...))
			ids = append(ids, append([]byte(nil), id...))
		}

		for i, k := range keys {
			if err := byTime.Delete(k); err != nil {
				return err
			}
			if err := sessions.Delete(ids[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func timeKey(t time.Time, id string) []byte {
	key := make([]byte, 8+len(id))
	binary.BigEndian.PutUint64(key[:8], uint64(t.UnixNano()))
	copy(key[8:], id)
	return key
}

// extractUpdatedAt pulls the updatedAt field out of a raw session JSON
// blob without depending on the session package's Session type.
func extractUpdatedAt(raw []byte) (time.Time, bool) {
	var envelope struct {
		UpdatedAt time.Time `json:"updatedAt"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return time.Time{}, false
	}
	return envelope.UpdatedAt, true
}
