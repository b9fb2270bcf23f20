package walker

import (
	"time"

	"github.com/photodedupe/photodedupe/internal/types"
)

// FileObservation is one media file the Walker discovered. Emission order
// across a scan is unspecified but stable for a given filesystem state
// (§4.1).
type FileObservation struct {
	Path      string
	MediaType types.MediaType
	Size      int64
	ModTime   time.Time
	CTime     time.Time
}

// SkippedReason classifies why a path was not emitted.
type SkippedReason string

const (
	SkippedIOError        SkippedReason = "io_error"
	SkippedUnsupportedExt SkippedReason = "unsupported_extension"
	SkippedMaxDepth       SkippedReason = "max_depth"
)

// Skipped reports a non-fatal per-path problem (§4.1: surfaced, scan
// continues).
type Skipped struct {
	Path   string
	Reason SkippedReason
	Err    error
}

// DefaultPhotoExtensions is the §4.1 default inclusion filter for photos.
var DefaultPhotoExtensions = []string{"jpg", "jpeg", "png", "tiff", "gif", "bmp", "webp", "heic"}

// DefaultVideoExtensions is the §4.1 default inclusion filter for videos.
var DefaultVideoExtensions = []string{"mp4", "mov", "avi", "mkv", "webm"}
