package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/photodedupe/photodedupe/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndGetFileRecordByPath(t *testing.T) {
	s := openTestStore(t)

	rec := types.FileRecord{
		ID:         uuid.New(),
		Path:       "/photos/a.jpg",
		MediaType:  types.MediaPhoto,
		Size:       1024,
		CreatedAt:  time.Now().Add(-time.Hour).Truncate(time.Second),
		ModifiedAt: time.Now().Truncate(time.Second),
		Width:      800,
		Height:     600,
	}
	require.NoError(t, s.UpsertFileRecord(rec))

	got, ok, err := s.GetFileRecordByPath(rec.Path)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.Size, got.Size)
	require.Equal(t, rec.Width, got.Width)
	require.True(t, rec.CreatedAt.Equal(got.CreatedAt))
}

func TestUpsertFileRecordMovesPath(t *testing.T) {
	s := openTestStore(t)
	id := uuid.New()

	rec := types.FileRecord{ID: id, Path: "/photos/old.jpg", MediaType: types.MediaPhoto, Size: 10}
	require.NoError(t, s.UpsertFileRecord(rec))

	rec.Path = "/photos/new.jpg"
	require.NoError(t, s.UpsertFileRecord(rec))

	_, ok, err := s.GetFileRecordByPath("/photos/old.jpg")
	require.NoError(t, err)
	require.False(t, ok, "stale path should no longer resolve after a move")

	got, ok, err := s.GetFileRecordByPath("/photos/new.jpg")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, id, got.ID)
}

func TestDeleteFileRecordRemovesSignatures(t *testing.T) {
	s := openTestStore(t)
	id := uuid.New()

	rec := types.FileRecord{ID: id, Path: "/photos/a.jpg", MediaType: types.MediaPhoto, Size: 10}
	require.NoError(t, s.UpsertFileRecord(rec))
	require.NoError(t, s.UpsertContentHash(id, types.ContentHash{1, 2, 3}))
	require.NoError(t, s.UpsertPerceptualHash(id, types.PerceptualHash{Algorithm: types.AlgoDHash, Hash: 42}))

	require.NoError(t, s.DeleteFileRecord(id))

	_, ok, err := s.GetFileRecordByPath(rec.Path)
	require.NoError(t, err)
	require.False(t, ok)

	err = s.db.View(func(tx *bolt.Tx) error {
		require.Nil(t, tx.Bucket(bucketContentHash).Get(id[:]))
		require.Nil(t, tx.Bucket(bucketPerceptual).Get(perceptualKey(id, types.AlgoDHash)))
		return nil
	})
	require.NoError(t, err)
}

func TestQueryBySizeRange(t *testing.T) {
	s := openTestStore(t)

	sizes := []int64{10, 100, 1000, 10000}
	for _, size := range sizes {
		rec := types.FileRecord{ID: uuid.New(), Path: filepath.Join("/photos", itoa(size)), MediaType: types.MediaPhoto, Size: size}
		require.NoError(t, s.UpsertFileRecord(rec))
	}

	got, err := s.QueryBySizeRange(50, 5000)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, r := range got {
		require.GreaterOrEqual(t, r.Size, int64(50))
		require.LessOrEqual(t, r.Size, int64(5000))
	}
}

func TestQueryVideosByDuration(t *testing.T) {
	s := openTestStore(t)

	shortID, longID := uuid.New(), uuid.New()
	require.NoError(t, s.UpsertFileRecord(types.FileRecord{ID: shortID, Path: "/videos/short.mp4", MediaType: types.MediaVideo, Size: 1}))
	require.NoError(t, s.UpsertFileRecord(types.FileRecord{ID: longID, Path: "/videos/long.mp4", MediaType: types.MediaVideo, Size: 1}))
	require.NoError(t, s.UpsertVideoSignature(shortID, types.VideoSignature{DurationSec: 10}))
	require.NoError(t, s.UpsertVideoSignature(longID, types.VideoSignature{DurationSec: 60}))

	got, err := s.QueryVideosByDuration(5, 20)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, shortID, got[0].ID)
}

func TestSessionSaveLoadLatestPrune(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	require.NoError(t, s.SaveSession("s1", []byte(`{"updatedAt":"`+now.Format(time.RFC3339Nano)+`"}`), now))
	later := now.Add(time.Minute)
	require.NoError(t, s.SaveSession("s2", []byte(`{"updatedAt":"`+later.Format(time.RFC3339Nano)+`"}`), later))

	id, _, ok, err := s.LatestSession()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "s2", id)

	require.NoError(t, s.PruneSessions(1))

	_, ok, err = s.LoadSession("s1")
	require.NoError(t, err)
	require.False(t, ok, "pruned session should be gone")

	_, ok, err = s.LoadSession("s2")
	require.NoError(t, err)
	require.True(t, ok, "most recent session should survive pruning")
}

func TestAllFileTriples(t *testing.T) {
	s := openTestStore(t)

	mtime := time.Now().Truncate(time.Second)
	rec := types.FileRecord{ID: uuid.New(), Path: "/photos/a.jpg", MediaType: types.MediaPhoto, Size: 123, ModifiedAt: mtime}
	require.NoError(t, s.UpsertFileRecord(rec))

	triples, err := s.AllFileTriples()
	require.NoError(t, err)
	got, ok := triples[rec.Path]
	require.True(t, ok)
	require.Equal(t, rec.Size, got.Size)
	require.Equal(t, mtime.UnixNano(), got.ModTime)
}

func itoa(n int64) string {
	if n == 0 {
		return "0"
	}
	digits := "0123456789"
	var buf []byte
	for n > 0 {
		buf = append([]byte{digits[n%10]}, buf...)
		n /= 10
	}
	return string(buf)
}
