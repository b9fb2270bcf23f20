package hashing

import (
	"errors"
	"fmt"
)

// DecodeFailedError reports that a file's bytes could not be decoded into a
// usable image or video frame. It is always non-fatal: the caller records
// the file without the failing signature and moves on (§4.2, §7).
type DecodeFailedError struct {
	Path  string
	Cause error
}

func (e *DecodeFailedError) Error() string {
	return fmt.Sprintf("decode failed for %s: %v", e.Path, e.Cause)
}

func (e *DecodeFailedError) Unwrap() error { return e.Cause }

// ErrCancelled is returned when a hashing operation is aborted via context
// cancellation. Callers must unwind any decoder resources deterministically
// on seeing it (§4.2).
var ErrCancelled = errors.New("hashing: cancelled")

// ErrDecodeTimeout is wrapped into DecodeFailedError when a per-file decode
// exceeds the configured timeout (§7: default 30s, surfaced as
// Skipped{reason: "decode_timeout"}).
var ErrDecodeTimeout = errors.New("decode timed out")
