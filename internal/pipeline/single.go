package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/services"
	"curator/internal/textutil"
)

// RunSingle processes one item by id: resolve without an asset minimum,
// download, classify under classifyTimeout and render a one-row card named
// item_<id>.jpg. It shares the single-flight guard with Run. Any per-item
// failure is returned as the item's wrapped error.
func (c *Coordinator) RunSingle(ctx context.Context, id string, classifyTimeout time.Duration) (*Report, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, services.Wrap(services.ErrValidation, "run", "single", "item id is empty", nil)
	}
	if !c.running.TryLock() {
		return nil, services.ErrAlreadyRunning
	}
	defer c.running.Unlock()

	if classifyTimeout <= 0 {
		classifyTimeout = c.opts.ClassifyTimeout
	}
	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	start := c.now()

	runCtx, cancel := context.WithTimeout(ctx, c.opts.TotalTimeout)
	defer cancel()

	itemCtx := services.WithItemID(runCtx, id)
	logger := logging.WithContext(itemCtx, c.logger)
	logger.Info("single item run started", logging.String(logging.FieldEventType, "run_start"))

	report, err := c.executeSingle(itemCtx, runID, id, classifyTimeout)
	if err != nil {
		err = c.runError(runCtx, c.opts.TotalTimeout, err)
		logging.ErrorWithContext(logger, "single item run failed", "run_failed",
			logging.Error(err),
			logging.String("reason", services.Reason(err)),
		)
		return nil, err
	}
	report.RunID = runID
	report.Duration = c.now().Sub(start)
	logger.Info("single item run finished",
		logging.String("artifact", report.ArtifactPath),
		logging.Duration("elapsed", report.Duration),
		logging.String(logging.FieldEventType, "run_complete"),
	)
	return report, nil
}

func (c *Coordinator) executeSingle(ctx context.Context, runID, id string, classifyTimeout time.Duration) (*Report, error) {
	run, err := c.deps.Scratch.NewRun(runID)
	if err != nil {
		return nil, fmt.Errorf("acquire run scratch: %w", err)
	}
	logger := logging.WithContext(ctx, c.logger)
	defer c.releaseRun(run, logger)

	ledger := NewLedger()
	item := gallery.NewItem(gallery.Entry{ID: id})
	if err := ledger.Add(item.ID); err != nil {
		return nil, err
	}

	downloadCtx := services.WithStage(ctx, stageDownload)
	dir, err := c.downloadItem(downloadCtx, run, item, 0, logging.WithContext(downloadCtx, c.logger))
	if err != nil {
		if errors.Is(err, services.ErrFiltered) {
			c.settle(item, gallery.StateFiltered, logger)
			_ = ledger.Move(item.ID, SetPendingDownload, SetFiltered)
		} else {
			c.settle(item, gallery.StateDownloadFailed, logger)
			_ = ledger.Fail(item.ID, SetPendingDownload, err)
		}
		return nil, err
	}
	_ = ledger.Move(item.ID, SetPendingDownload, SetPendingClassify)

	classifyCtx := services.WithStage(ctx, stageClassify)
	job := classifyJob{item: item, dir: dir}
	if err := c.classifyItem(classifyCtx, run, job, classifyTimeout, logging.WithContext(classifyCtx, c.logger)); err != nil {
		state := gallery.StateClassifyFailed
		if errors.Is(err, services.ErrClassifyTimeout) {
			state = gallery.StateClassifyTimedOut
		}
		c.settle(item, state, logger)
		_ = ledger.Fail(item.ID, SetPendingClassify, err)
		return nil, err
	}
	_ = ledger.Move(item.ID, SetPendingClassify, SetSucceeded)

	items := []*gallery.Item{item}
	artifact, err := c.deps.Renderer.Render(items, filepath.Join(c.opts.OutputDir, "item_"+textutil.SanitizeToken(id)+".jpg"))
	releaseCovers(items, logger)
	if err != nil {
		return nil, fmt.Errorf("render item card: %w", err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	outcome := OutcomeRendered
	if artifact == "" {
		outcome = OutcomeNoResults
	}
	return &Report{
		Outcome:      outcome,
		ArtifactPath: artifact,
		Ranked:       items,
		Summary:      ledger.Summary(),
	}, nil
}
