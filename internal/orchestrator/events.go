package orchestrator

import (
	"time"

	"github.com/photodedupe/photodedupe/internal/types"
)

// EventKind discriminates the Event union emitted by a running scan
// (§4.6).
type EventKind string

const (
	EventStarted  EventKind = "started"
	EventItem     EventKind = "item"
	EventProgress EventKind = "progress"
	EventSkipped  EventKind = "skipped"
	EventError    EventKind = "error"
	EventFinished EventKind = "finished"
)

// Event is one lifecycle notification from the orchestrator. Only the
// field(s) relevant to Kind are populated.
type Event struct {
	Kind EventKind
	At   time.Time

	// EventStarted
	RootURL string

	// EventItem
	Record types.FileRecord

	// EventProgress
	Processed int

	// EventSkipped
	Path   string
	Reason string

	// EventError
	Err error

	// EventFinished
	Metrics Metrics
}

// Metrics is the terminal summary attached to EventFinished.
type Metrics struct {
	ItemsProcessed    int
	DuplicatesFlagged int
	Errors            int
	BytesReclaimable  int64
	StartedAt         time.Time
	CompletedAt       time.Time
}
