package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/photodedupe/photodedupe/internal/orchestrator"
	"github.com/photodedupe/photodedupe/internal/progress"
	"github.com/photodedupe/photodedupe/internal/session"
	"github.com/photodedupe/photodedupe/internal/store"
	"github.com/photodedupe/photodedupe/internal/types"
)

type scanFlags struct {
	nearRadius  int
	exactOnly   bool
	resume      bool
	cancelAfter int
	workers     int
	storeFile   string
	noProgress  bool
}

func newScanCmd() *cobra.Command {
	flags := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan <paths...>",
		Short: "Scan one or more folders for duplicate photos and videos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd.Context(), args, flags)
		},
	}

	cmd.Flags().IntVar(&flags.nearRadius, "near-radius", 0, "Hamming radius for near-duplicate matches (0 = grouper default)")
	cmd.Flags().BoolVar(&flags.exactOnly, "exact-only", false, "skip the near-duplicate pass, group only byte-identical files")
	cmd.Flags().BoolVar(&flags.resume, "resume", false, "resume the most recent incomplete session instead of starting fresh")
	cmd.Flags().IntVar(&flags.cancelAfter, "cancel-after", 0, "cancel the scan after N seconds (0 = run to completion)")
	cmd.Flags().IntVar(&flags.workers, "workers", 0, "hasher pool size (0 = clamp(NumCPU, 1, 2*NumCPU))")
	cmd.Flags().StringVar(&flags.storeFile, "store-file", "", "path to the signature store (default: <app-support>/photodedupe/store.db)")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "disable the progress bar")

	return cmd
}

func runScan(ctx context.Context, roots []string, flags *scanFlags) error {
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			return userError("cannot access %q: %v", root, err)
		}
	}

	storePath, err := resolveStorePath(flags.storeFile)
	if err != nil {
		return ioError(err)
	}

	db, err := store.Open(storePath)
	if err != nil {
		return ioError(fmt.Errorf("open store: %w", err))
	}
	defer db.Close()

	mgr := session.NewManager(db)
	sess, err := startOrResumeSession(mgr, db, roots, flags.resume)
	if err != nil {
		return internalError(err)
	}

	cfg := orchestrator.Config{
		Roots:      roots,
		Workers:    flags.workers,
		NearRadius: flags.nearRadius,
		ExactOnly:  flags.exactOnly,
		Resume:     flags.resume,
		Store:      db,
	}
	if flags.resume {
		already, err := loadAlreadyIndexed(db)
		if err != nil {
			return internalError(err)
		}
		cfg.AlreadyIndexed = already
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if flags.cancelAfter > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(flags.cancelAfter)*time.Second)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	orch := orchestrator.New(cfg)
	events, outcomeCh := orch.Run(runCtx)

	bar := progress.New(!flags.noProgress, -1)
	for ev := range events {
		consumeEvent(mgr, bar, ev)
	}

	outcome := <-outcomeCh

	summaries := summarize(outcome.Groups)
	if err := mgr.AllDone(summaries); err != nil {
		_ = mgr.Fail(err.Error())
		return internalError(fmt.Errorf("finalize session: %w", err))
	}

	bar.Finish()

	if outcome.Cancelled {
		if err := mgr.Cancel(); err != nil {
			return internalError(err)
		}
		fmt.Printf("scan cancelled after %d items; session %s saved for resume\n", outcome.Metrics.ItemsProcessed, sess.ID)
		return &cliError{code: exitCancelled, err: fmt.Errorf("scan cancelled")}
	}

	fmt.Printf("scanned %d items, %d groups, %s reclaimable\n",
		outcome.Metrics.ItemsProcessed, len(outcome.Groups), humanize.Bytes(uint64(outcome.Metrics.BytesReclaimable)))
	return nil
}

func startOrResumeSession(mgr *session.Manager, db *store.Store, roots []string, resume bool) (*session.Session, error) {
	if resume {
		decision, ok, err := session.Recover(db)
		if err != nil {
			return nil, err
		}
		if ok {
			mgr.Resume(decision.Session)
			snap := mgr.Snapshot()
			return &snap, nil
		}
	}
	return mgr.Start(roots)
}

func loadAlreadyIndexed(db *store.Store) (map[string]orchestrator.AlreadyIndexed, error) {
	triples, err := db.AllFileTriples()
	if err != nil {
		return nil, err
	}
	out := make(map[string]orchestrator.AlreadyIndexed, len(triples))
	for path, t := range triples {
		out[path] = orchestrator.AlreadyIndexed{Size: t.Size, ModTime: time.Unix(0, t.ModTime)}
	}
	return out, nil
}

func consumeEvent(mgr *session.Manager, bar *progress.Bar, ev orchestrator.Event) {
	switch ev.Kind {
	case orchestrator.EventStarted:
		_ = mgr.UpdateFolder(ev.RootURL, session.FolderScanning)
		_ = mgr.SetPhase(session.PhaseIndexing)
		bar.SetPhase(session.PhaseIndexing)
	case orchestrator.EventItem:
		_ = mgr.SetPhase(session.PhaseHashing)
		bar.SetPhase(session.PhaseHashing)
	case orchestrator.EventProgress:
		bar.Set(uint64(ev.Processed))
		_ = mgr.UpdateMetrics(session.Metrics{
			Phase:          session.PhaseHashing,
			ItemsProcessed: ev.Processed,
		})
	case orchestrator.EventSkipped:
		fmt.Fprintf(os.Stderr, "skip %s: %s\n", ev.Path, ev.Reason)
	case orchestrator.EventError:
		fmt.Fprintf(os.Stderr, "persist %s: %v\n", ev.Path, ev.Err)
	case orchestrator.EventFinished:
		_ = mgr.SetPhase(session.PhaseGrouping)
		bar.SetPhase(session.PhaseGrouping)
		_ = mgr.UpdateMetrics(session.Metrics{
			Phase:             session.PhaseGrouping,
			ItemsProcessed:    ev.Metrics.ItemsProcessed,
			DuplicatesFlagged: ev.Metrics.DuplicatesFlagged,
			Errors:            ev.Metrics.Errors,
			BytesReclaimable:  ev.Metrics.BytesReclaimable,
			StartedAt:         ev.Metrics.StartedAt,
		})
	}
}

// summarize projects DuplicateGroups into the lightweight shape the
// session checkpoint persists (§6).
func summarize(groups []types.DuplicateGroup) []session.DuplicateSummary {
	out := make([]session.DuplicateSummary, len(groups))
	for i, g := range groups {
		out[i] = session.DuplicateSummary{
			ID:             g.Representative,
			ItemCount:      len(g.FileIDs),
			Representative: g.Representative,
			Confidence:     g.Confidence,
		}
	}
	return out
}

func resolveStorePath(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "photodedupe", "store.db"), nil
}

