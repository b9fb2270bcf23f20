package session

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/photodedupe/photodedupe/internal/store"
)

func TestSessionRoundTrip(t *testing.T) {
	s := New([]string{"/a", "/b"})
	s.Status = StatusScanning
	s.Phase = PhaseHashing
	s.Metrics.ItemsProcessed = 42

	data, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ID != s.ID || decoded.Status != s.Status || decoded.Phase != s.Phase {
		t.Fatalf("round-trip mismatch: got %+v, want %+v", decoded, s)
	}
	if decoded.Metrics.ItemsProcessed != 42 {
		t.Fatalf("expected metrics to round-trip, got %d", decoded.Metrics.ItemsProcessed)
	}
}

func TestDecodeRejectsMissingRequiredFields(t *testing.T) {
	_, err := Decode([]byte(`{"folders": []}`))
	if err == nil {
		t.Fatal("expected an error decoding a session missing id/status/phase/timestamps")
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	s := New([]string{"/a"})
	s.Status = StatusIdle
	data, _ := s.Encode()

	// Splice in an unrecognized field; decode must still succeed.
	withExtra := data[:len(data)-1] // drop trailing '}'
	withExtra = append(withExtra, []byte(`,"futureField":"ignored"}`)...)

	if _, err := Decode(withExtra); err != nil {
		t.Fatalf("expected unknown fields to be ignored, got %v", err)
	}
}

func TestNormalizeURLStripsTrailingSlash(t *testing.T) {
	if normalizeURL("/Photos/") != normalizeURL("/Photos") {
		t.Fatal("expected trailing slash to be normalized away")
	}
}

func TestIsDescendantDoesNotMisattributeSiblingPrefix(t *testing.T) {
	// This is the exact bug §9 calls out: "/Photos2" is a raw string
	// prefix match against "/Photos" but is not a descendant path.
	if isDescendant("/Photos", "/Photos2/img.jpg") {
		t.Fatal("expected /Photos2 to NOT be treated as a descendant of /Photos")
	}
	if !isDescendant("/Photos", filepath.Join("/Photos", "sub", "img.jpg")) {
		t.Fatal("expected a real nested path to be recognized as a descendant")
	}
	if !isDescendant("/Photos", "/Photos") {
		t.Fatal("expected a folder to be its own descendant")
	}
}

func TestRecoverSurfacesUnfinishedSession(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New([]string{"/a"})
	s.Status = StatusScanning
	s.Phase = PhaseHashing
	data, _ := s.Encode()
	if err := db.SaveSession(s.ID.String(), data, time.Now()); err != nil {
		t.Fatal(err)
	}

	decision, ok, err := Recover(db)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a recovery decision for an interrupted scanning session")
	}
	if decision.Strategy != StrategyResume {
		t.Fatalf("expected resume strategy, got %s", decision.Strategy)
	}
}

func TestRecoverIgnoresCompletedSession(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s := New([]string{"/a"})
	s.Status = StatusCompleted
	data, _ := s.Encode()
	if err := db.SaveSession(s.ID.String(), data, time.Now()); err != nil {
		t.Fatal(err)
	}

	_, ok, err := Recover(db)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected no recovery decision for a completed session")
	}
}
