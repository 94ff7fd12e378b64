package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/rank"
	"curator/internal/scratch"
	"curator/internal/services"
	"curator/internal/source"
)

// Run executes one listing run. It returns services.ErrAlreadyRunning at once
// when another run is active and services.ErrRunTimeout when the whole-run
// deadline expires, in which case no partial report is returned. Empty
// listings and runs where nothing survived classification return a report
// with no artifact and a nil error.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Report, error) {
	if !c.running.TryLock() {
		return nil, services.ErrAlreadyRunning
	}
	defer c.running.Unlock()

	window := req.Window
	if window == "" {
		window = source.WindowToday
	}
	total := req.TotalTimeout
	if total <= 0 {
		total = c.opts.TotalTimeout
	}
	classifyTimeout := req.ClassifyTimeout
	if classifyTimeout <= 0 {
		classifyTimeout = c.opts.ClassifyTimeout
	}

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, c.logger)
	start := c.now()

	runCtx, cancel := context.WithTimeout(ctx, total)
	defer cancel()

	logger.Info("run started",
		logging.String("window", string(window)),
		logging.Duration("total_timeout", total),
		logging.Duration("classify_timeout", classifyTimeout),
		logging.String(logging.FieldEventType, "run_start"),
	)

	report, err := c.execute(runCtx, runID, window, classifyTimeout, logger)
	elapsed := c.now().Sub(start)
	if err != nil {
		err = c.runError(runCtx, total, err)
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.Error(err),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, failureHint(err)),
		)
		if notifyErr := c.deps.Notifier.NotifyError(ctx, err, "run "+string(window)); notifyErr != nil {
			logger.Debug("run error notification failed", logging.Error(notifyErr))
		}
		return nil, err
	}
	report.RunID = runID
	report.Window = window
	report.Duration = elapsed

	logger.Info("run finished",
		logging.String("outcome", string(report.Outcome)),
		logging.String("artifact", report.ArtifactPath),
		logging.Int("succeeded", len(report.Summary.Succeeded)),
		logging.Int("filtered", len(report.Summary.Filtered)),
		logging.Int("failed", len(report.Summary.Failed)),
		logging.Duration("elapsed", elapsed),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	if report.Outcome != OutcomeNoListing {
		if notifyErr := c.deps.Notifier.NotifyRunCompleted(ctx, len(report.Summary.Succeeded), len(report.Summary.Filtered), len(report.Summary.Failed), elapsed); notifyErr != nil {
			logger.Debug("run completion notification failed", logging.Error(notifyErr))
		}
	}
	return report, nil
}

// runError maps a failed run to the error surfaced to the caller.
func (c *Coordinator) runError(runCtx context.Context, total time.Duration, err error) error {
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrRunTimeout, "run", "", fmt.Sprintf("exceeded %s", total), nil)
	}
	return err
}

func failureHint(err error) string {
	if errors.Is(err, services.ErrRunTimeout) {
		return "raise pipeline.total_timeout or reduce the listing size"
	}
	return "check scratch_dir and output_dir permissions"
}

func (c *Coordinator) execute(ctx context.Context, runID string, window source.Window, classifyTimeout time.Duration, logger *slog.Logger) (*Report, error) {
	entries, err := c.deps.Lister.List(ctx, window)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		logging.WarnWithContext(logger, "listing unavailable; nothing to process", "listing_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check source.base_url and network access"),
			logging.String(logging.FieldImpact, "run produces no output"),
		)
		entries = nil
	}

	ledger := NewLedger()
	items := make([]*gallery.Item, 0, len(entries))
	for _, entry := range entries {
		item := gallery.NewItem(entry)
		if item.ID == "" {
			continue
		}
		if err := ledger.Add(item.ID); err != nil {
			logger.Debug("duplicate listing entry skipped", logging.String(logging.FieldItemID, item.ID))
			continue
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		logger.Info("listing empty", logging.String(logging.FieldEventType, "run_no_listing"))
		return &Report{Outcome: OutcomeNoListing, Summary: ledger.Summary()}, nil
	}
	if err := c.deps.Notifier.NotifyRunStarted(ctx, string(window), len(items)); err != nil {
		logger.Debug("run start notification failed", logging.Error(err))
	}

	run, err := c.deps.Scratch.NewRun(runID)
	if err != nil {
		return nil, fmt.Errorf("acquire run scratch: %w", err)
	}
	defer c.releaseRun(run, logger)

	succeeded := c.process(ctx, run, ledger, items, classifyTimeout, logger)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	report := &Report{Summary: ledger.Summary()}
	ranked := rank.Top(succeeded, c.opts.TopN)
	if len(ranked) == 0 {
		logger.Info("no items survived classification", logging.String(logging.FieldEventType, "run_no_results"))
		report.Outcome = OutcomeNoResults
		return report, nil
	}

	name := fmt.Sprintf("ranking_%s_%s.jpg", window, c.now().Format("20060102-150405"))
	artifact, err := c.deps.Renderer.Render(ranked, filepath.Join(c.opts.OutputDir, name))
	releaseCovers(succeeded, logger)
	if err != nil {
		return nil, fmt.Errorf("render summary: %w", err)
	}
	if ctx.Err() != nil {
		if artifact != "" {
			_ = os.Remove(artifact)
		}
		return nil, ctx.Err()
	}
	report.ArtifactPath = artifact
	report.Ranked = ranked
	report.Outcome = OutcomeRendered
	if artifact == "" {
		report.Outcome = OutcomeNoResults
	}
	return report, nil
}

// process drives items through the download pool and the classify worker
// and returns classified items in completion order.
func (c *Coordinator) process(ctx context.Context, run *scratch.RunDir, ledger *Ledger, items []*gallery.Item, classifyTimeout time.Duration, logger *slog.Logger) []*gallery.Item {
	downloads := make(chan *gallery.Item, len(items))
	for _, item := range items {
		downloads <- item
	}
	close(downloads)

	// Buffered to the item count so download workers never wait on the
	// classify worker.
	classifyQueue := make(chan classifyJob, len(items))

	var downloaders sync.WaitGroup
	workers := min(c.opts.DownloadWorkers, len(items))
	downloaders.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer downloaders.Done()
			c.downloadWorker(ctx, run, ledger, downloads, classifyQueue, logger)
		}()
	}

	var succeeded []*gallery.Item
	classifierDone := make(chan struct{})
	go func() {
		defer close(classifierDone)
		succeeded = c.classifyWorker(ctx, run, ledger, classifyQueue, classifyTimeout, logger)
	}()

	downloaders.Wait()
	close(classifyQueue)
	<-classifierDone
	return succeeded
}

func (c *Coordinator) releaseRun(run *scratch.RunDir, logger *slog.Logger) {
	if err := run.Release(); err != nil {
		logging.WarnWithContext(logger, "failed to release run scratch", "scratch_release_failed",
			logging.String("path", run.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
			logging.String(logging.FieldImpact, "leftovers are removed at next start"),
		)
	}
}

func releaseCovers(items []*gallery.Item, logger *slog.Logger) {
	for _, item := range items {
		if item.CoverPath == "" {
			continue
		}
		if err := os.Remove(item.CoverPath); err != nil && !os.IsNotExist(err) {
			logger.Debug("cover cleanup failed", logging.String(logging.FieldItemID, item.ID), logging.Error(err))
		}
		item.CoverPath = ""
	}
}
