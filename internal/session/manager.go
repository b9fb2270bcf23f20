package session

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/photodedupe/photodedupe/internal/store"
)

// RecoveryStrategy is the action available for a session recovered on
// startup (§4.7).
type RecoveryStrategy string

const (
	StrategyResume        RecoveryStrategy = "resume"
	StrategyStartFresh    RecoveryStrategy = "startFresh"
	StrategyMergeSessions RecoveryStrategy = "mergeSessions"
)

// RecoveryDecision is surfaced to the caller when a prior session never
// reached a terminal completed state.
type RecoveryDecision struct {
	Session  *Session
	Strategy RecoveryStrategy
	Reason   string
}

// Manager owns the session state machine and its durable checkpoints. One
// Manager instance per running scan; Recover is called once at startup
// before a new Manager is created for the active scan.
type Manager struct {
	mu      sync.Mutex
	store   *store.Store
	current *Session

	lastPersist time.Time
}

// NewManager wraps a Store for session persistence.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Recover loads the most recently updated persisted session and returns a
// RecoveryDecision if it is still scanning or ended failed or cancelled
// (§4.7, §7). Returns ok=false if there is nothing to recover.
func Recover(s *store.Store) (RecoveryDecision, bool, error) {
	id, data, ok, err := s.LatestSession()
	if err != nil {
		return RecoveryDecision{}, false, fmt.Errorf("recover: %w", err)
	}
	if !ok {
		return RecoveryDecision{}, false, nil
	}

	sess, err := Decode(data)
	if err != nil {
		return RecoveryDecision{}, false, fmt.Errorf("recover session %s: %w", id, err)
	}
	if !sess.IsRecoverable() {
		return RecoveryDecision{}, false, nil
	}

	strategy := StrategyResume
	reason := fmt.Sprintf("session %s left in status %q", sess.ID, sess.Status)
	if sess.Status == StatusFailed {
		reason = fmt.Sprintf("session %s failed during phase %q", sess.ID, sess.Phase)
	}

	slog.Info("recoverable session found", "session", sess.ID, "status", sess.Status, "strategy", strategy)
	return RecoveryDecision{Session: sess, Strategy: strategy, Reason: reason}, true, nil
}

// Start begins a fresh session over roots and persists its initial
// checkpoint.
func (m *Manager) Start(roots []string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = New(roots)
	m.current.Status = StatusScanning
	m.current.Phase = PhasePreparing
	return m.current, m.persistLocked(true)
}

// Resume adopts a previously recovered session as the active one,
// restarting it in the preparing sub-phase.
func (m *Manager) Resume(sess *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = sess
	m.current.Status = StatusScanning
	m.current.Phase = PhasePreparing
}

// FileTriple is the (path, size, mtime) identity of a file a prior run
// already processed. Triples live in Persistence, not in the session
// checkpoint itself.
type FileTriple struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// SetPhase transitions the sub-phase within StatusScanning.
func (m *Manager) SetPhase(p Phase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current.Status != StatusScanning {
		return fmt.Errorf("set phase %q: session not scanning (status=%s)", p, m.current.Status)
	}
	m.current.Phase = p
	return m.maybePersistLocked()
}

// UpdateMetrics merges fresh metrics into the session and persists if the
// 2-second snapshot interval has elapsed (§4.7).
func (m *Manager) UpdateMetrics(metrics Metrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Metrics = metrics
	return m.maybePersistLocked()
}

// UpdateFolder records a folder's status for the root owning path,
// attributing the path by normalized-prefix matching (§9: the buggy raw
// prefix check from the source is explicitly not replicated here).
func (m *Manager) UpdateFolder(path string, status FolderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	norm := normalizeURL(path)
	now := time.Now()
	matched := false
	for i := range m.current.Folders {
		if isDescendant(m.current.Folders[i].URL, norm) {
			m.current.Folders[i].Status = status
			m.current.Folders[i].LastEventAt = now
			matched = true
		}
	}
	if !matched {
		return nil
	}
	return m.maybePersistLocked()
}

// AllDone transitions scanning -> awaitingReview once every stage has
// drained, recording the final duplicate summaries.
func (m *Manager) AllDone(summaries []DuplicateSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Status = StatusAwaitingReview
	m.current.DuplicateSummaries = summaries
	completedAt := time.Now()
	m.current.Metrics.CompletedAt = &completedAt
	return m.persistLocked(true)
}

// CompleteReview transitions awaitingReview -> completed once the
// (out-of-scope) merge/delete workflow finishes.
func (m *Manager) CompleteReview() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Status = StatusCompleted
	return m.persistLocked(true)
}

// Cancel transitions to cancelled, always persisting immediately so a
// restart sees the final state without waiting for the 2s interval.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Status = StatusCancelled
	slog.Info("session cancelled", "session", m.current.ID, "itemsProcessed", m.current.Metrics.ItemsProcessed)
	return m.persistLocked(true)
}

// Fail transitions to failed with a diagnostic reason persisted
// immediately (§7: index invariant violations and repeated persistence
// failures are both fatal).
func (m *Manager) Fail(reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current.Status = StatusFailed
	m.current.Metrics.Errors++
	slog.Error("session failed", "session", m.current.ID, "phase", m.current.Phase, "reason", reason)
	return m.persistLocked(true)
}

// Snapshot returns a copy of the current session state.
func (m *Manager) Snapshot() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.current
}

func (m *Manager) maybePersistLocked() error {
	const snapshotInterval = 2 * time.Second
	if time.Since(m.lastPersist) < snapshotInterval {
		return nil
	}
	return m.persistLocked(false)
}

func (m *Manager) persistLocked(force bool) error {
	m.current.UpdatedAt = time.Now()
	data, err := m.current.Encode()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := m.store.SaveSession(m.current.ID.String(), data, m.current.UpdatedAt); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	m.lastPersist = time.Now()
	_ = force
	return nil
}

// normalizeURL canonicalizes a folder path for prefix comparison: it
// cleans the path and strips any trailing separator, so "/Photos/" and
// "/Photos" compare equal (§9).
func normalizeURL(path string) string {
	return strings.TrimRight(filepath.Clean(path), string(filepath.Separator))
}

// isDescendant reports whether child is equal to or nested under parent,
// comparing normalized path segments rather than a raw string prefix -
// the source's isDescendant(of:) bug this corrects would misattribute
// "/Photos2" events to the folder "/Photos" because "/Photos2" has
// "/Photos" as a literal string prefix without a following separator.
func isDescendant(parent, child string) bool {
	parent = normalizeURL(parent)
	child = normalizeURL(child)
	if parent == child {
		return true
	}
	return strings.HasPrefix(child, parent+string(filepath.Separator))
}
