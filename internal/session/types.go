// Package session implements the SessionStore (C7): the state machine
// that tracks a scan's lifecycle, persists checkpoints, and decides how
// to recover from a prior run that never reached a terminal state.
package session

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is one node of the session state machine (§4.7).
type Status string

const (
	StatusIdle            Status = "idle"
	StatusScanning        Status = "scanning"
	StatusAwaitingReview  Status = "awaitingReview"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusCancelled       Status = "cancelled"
)

// Phase is the sub-phase within StatusScanning.
type Phase string

const (
	PhasePreparing Phase = "preparing"
	PhaseIndexing  Phase = "indexing"
	PhaseHashing   Phase = "hashing"
	PhaseGrouping  Phase = "grouping"
	PhaseReviewing Phase = "reviewing"
)

// FolderStatus tracks one scanned root's progress independently of the
// session as a whole.
type FolderStatus string

const (
	FolderPending   FolderStatus = "pending"
	FolderScanning  FolderStatus = "scanning"
	FolderCompleted FolderStatus = "completed"
	FolderError     FolderStatus = "error"
)

// Folder is one root path tracked by a session.
type Folder struct {
	URL         string       `json:"url"`
	Status      FolderStatus `json:"status"`
	LastEventAt time.Time    `json:"lastEventAt"`
}

// Metrics accumulates scan progress for display and for resume decisions.
type Metrics struct {
	Phase             Phase      `json:"phase"`
	ItemsProcessed    int        `json:"itemsProcessed"`
	DuplicatesFlagged int        `json:"duplicatesFlagged"`
	Errors            int        `json:"errors"`
	BytesReclaimable  int64      `json:"bytesReclaimable"`
	StartedAt         time.Time  `json:"startedAt"`
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
}

// DuplicateSummary is the lightweight projection of a DuplicateGroup
// persisted in the checkpoint, so a review UI can render without
// re-reading the full index.
type DuplicateSummary struct {
	ID             uuid.UUID `json:"id"`
	ItemCount      int       `json:"itemCount"`
	Representative uuid.UUID `json:"representative"`
	Confidence     float64   `json:"confidence"`
}

// Session is the full checkpoint persisted to disk (§6).
type Session struct {
	ID                 uuid.UUID          `json:"id"`
	Status             Status             `json:"status"`
	Phase              Phase              `json:"phase"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
	Folders            []Folder           `json:"folders"`
	Metrics            Metrics            `json:"metrics"`
	DuplicateSummaries []DuplicateSummary `json:"duplicateSummaries"`
}

// New creates a fresh idle Session over the given root folder URLs.
func New(roots []string) *Session {
	now := time.Now()
	folders := make([]Folder, len(roots))
	for i, r := range roots {
		folders[i] = Folder{URL: normalizeURL(r), Status: FolderPending, LastEventAt: now}
	}
	return &Session{
		ID:        uuid.New(),
		Status:    StatusIdle,
		Phase:     PhasePreparing,
		CreatedAt: now,
		UpdatedAt: now,
		Folders:   folders,
	}
}

// Encode serializes the session for persistence.
func (s *Session) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Decode parses a persisted session, rejecting a payload missing any
// field required by §6 (id, status, phase, createdAt, updatedAt). Unknown
// fields are silently ignored, matching encoding/json's default behavior.
func Decode(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	if s.ID == uuid.Nil {
		return nil, fmt.Errorf("decode session: missing required field id")
	}
	if s.Status == "" {
		return nil, fmt.Errorf("decode session: missing required field status")
	}
	if s.Phase == "" {
		return nil, fmt.Errorf("decode session: missing required field phase")
	}
	if s.CreatedAt.IsZero() {
		return nil, fmt.Errorf("decode session: missing required field createdAt")
	}
	if s.UpdatedAt.IsZero() {
		return nil, fmt.Errorf("decode session: missing required field updatedAt")
	}
	return &s, nil
}

// IsRecoverable reports whether a session left in this status on a prior
// run should be offered for recovery on the next startup (§4.7, §7).
func (s *Session) IsRecoverable() bool {
	switch s.Status {
	case StatusScanning, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}
