package orchestrator

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSolidPNG(t *testing.T, path string, w, h int, c color.Gray) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

// writeNoisePNG writes a w x h grayscale PNG whose pixels come from a seeded
// random source, so two different seeds give structurally unrelated images.
func writeNoisePNG(t *testing.T, path string, w, h int, seed int64) {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8(r.Intn(256))})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func drainEvents(events <-chan Event) []Event {
	var all []Event
	for e := range events {
		all = append(all, e)
	}
	return all
}

func TestRunFindsExactDuplicatePhotos(t *testing.T) {
	root := t.TempDir()
	writeSolidPNG(t, filepath.Join(root, "a.png"), 16, 16, color.Gray{Y: 100})
	writeSolidPNG(t, filepath.Join(root, "b.png"), 16, 16, color.Gray{Y: 100})

	data, err := os.ReadFile(filepath.Join(root, "a.png"))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "b.png"), data, 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(Config{Roots: []string{root}, Workers: 2})
	events, outcomeCh := o.Run(context.Background())

	all := drainEvents(events)
	outcome := <-outcomeCh

	var sawFinished bool
	for _, e := range all {
		if e.Kind == EventFinished {
			sawFinished = true
		}
	}
	if !sawFinished {
		t.Fatal("expected a Finished event")
	}

	if len(outcome.Groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d: %+v", len(outcome.Groups), outcome.Groups)
	}
	if outcome.Groups[0].Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0 for byte-identical files, got %v", outcome.Groups[0].Confidence)
	}
}

func TestRunProducesNoGroupsForUnrelatedImages(t *testing.T) {
	root := t.TempDir()
	// Solid images of different brightness would not do here: neither has
	// any adjacent-pixel difference, so both dHash to 0 and group.
	writeNoisePNG(t, filepath.Join(root, "noise1.png"), 64, 64, 1)
	writeNoisePNG(t, filepath.Join(root, "noise2.png"), 64, 64, 2)

	o := New(Config{Roots: []string{root}, Workers: 2})
	events, outcomeCh := o.Run(context.Background())
	drainEvents(events)
	outcome := <-outcomeCh

	if len(outcome.Groups) != 0 {
		t.Fatalf("expected 0 groups for unrelated images, got %d", len(outcome.Groups))
	}
}

func TestRunSkipsUndecodableFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "broken.png"), []byte("not a real png"), 0o644); err != nil {
		t.Fatal(err)
	}

	o := New(Config{Roots: []string{root}, Workers: 2})
	events, outcomeCh := o.Run(context.Background())
	all := drainEvents(events)
	<-outcomeCh

	var sawSkip bool
	for _, e := range all {
		if e.Kind == EventSkipped {
			sawSkip = true
		}
	}
	if !sawSkip {
		t.Fatal("expected a Skipped event for the undecodable file")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 5; i++ {
		writeSolidPNG(t, filepath.Join(root, itoaPNG(i)), 16, 16, color.Gray{Y: uint8(i * 10)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(Config{Roots: []string{root}, Workers: 2})
	events, outcomeCh := o.Run(ctx)
	drainEvents(events)

	select {
	case outcome := <-outcomeCh:
		if !outcome.Cancelled {
			t.Fatal("expected outcome.Cancelled to be true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected cancellation to unwind within 2s")
	}
}

func itoaPNG(i int) string {
	digits := "0123456789"
	return string(digits[i]) + ".png"
}
