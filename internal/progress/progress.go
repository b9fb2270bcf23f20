package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/photodedupe/photodedupe/internal/session"
)

const updateInterval = 50 * time.Millisecond

// phaseLabel gives each scan phase (§4.6 pipeline stage) the verb a user
// watching the terminal expects to see while it's running.
var phaseLabel = map[session.Phase]string{
	session.PhasePreparing: "preparing",
	session.PhaseIndexing:  "walking folders",
	session.PhaseHashing:   "hashing",
	session.PhaseGrouping:  "grouping duplicates",
	session.PhaseReviewing: "reviewing",
}

// Bar wraps progressbar with enabled/disabled handling.
// All methods are no-ops when disabled.
type Bar struct {
	bar   *progressbar.ProgressBar
	phase session.Phase
}

// New creates a progress bar.
// If enabled=false, returns a Bar where all methods are no-ops.
// Use total=-1 for spinner mode, or total>0 for determinate progress.
func New(enabled bool, total int64) *Bar {
	if !enabled {
		return &Bar{}
	}

	opts := []progressbar.Option{
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionThrottle(updateInterval),
		progressbar.OptionClearOnFinish(),
	}

	if total < 0 {
		// Spinner mode
		opts = append(opts,
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetElapsedTime(false),
		)
		return &Bar{bar: progressbar.NewOptions(-1, opts...)}
	}

	// Progress bar mode
	opts = append(opts, progressbar.OptionSetWidth(40))
	return &Bar{bar: progressbar.NewOptions64(total, opts...)}
}

// Set sets the progress bar to a specific value.
func (b *Bar) Set(n uint64) {
	if b.bar != nil {
		_ = b.bar.Set64(int64(n))
	}
}

// SetPhase updates the bar's description to match the scan phase the
// orchestrator just entered. A no-op if the phase hasn't changed, so
// callers can invoke it on every event without spamming redraws.
func (b *Bar) SetPhase(p session.Phase) {
	if b.bar == nil || p == b.phase {
		return
	}
	b.phase = p
	label, ok := phaseLabel[p]
	if !ok {
		label = string(p)
	}
	b.bar.Describe(label)
}

// Finish clears the bar so the caller's own summary line prints cleanly
// below it. A no-op when the bar is disabled.
func (b *Bar) Finish() {
	if b.bar != nil {
		_ = b.bar.Finish()
	}
}
