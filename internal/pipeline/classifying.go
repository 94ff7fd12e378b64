package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"curator/internal/classify"
	"curator/internal/fileutil"
	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/scratch"
	"curator/internal/services"
)

const stageClassify = "classify"

// coverExtensions is the preferred cover format order.
var coverExtensions = []string{".jpg", ".png", ".webp"}

func (c *Coordinator) classifyWorker(ctx context.Context, run *scratch.RunDir, ledger *Ledger, in <-chan classifyJob, timeout time.Duration, logger *slog.Logger) []*gallery.Item {
	var succeeded []*gallery.Item
	for job := range in {
		if ctx.Err() != nil {
			_ = job.dir.Release()
			job.item.AssetDir = ""
			continue
		}
		itemCtx := services.WithStage(services.WithItemID(ctx, job.item.ID), stageClassify)
		itemLogger := logging.WithContext(itemCtx, c.logger)

		if err := c.classifyItem(itemCtx, run, job, timeout, itemLogger); err != nil {
			state := gallery.StateClassifyFailed
			if errors.Is(err, services.ErrClassifyTimeout) {
				state = gallery.StateClassifyTimedOut
			}
			c.settle(job.item, state, itemLogger)
			if moveErr := ledger.Fail(job.item.ID, SetPendingClassify, err); moveErr != nil {
				itemLogger.Error("ledger rejected move", logging.Error(moveErr))
			}
			if ctx.Err() == nil {
				logging.WarnWithContext(itemLogger, "classification failed", "item_classify_failed",
					logging.Error(err),
					logging.String("reason", services.Reason(err)),
					logging.String(logging.FieldErrorHint, "check classifier backend with curator check"),
				)
			}
			continue
		}
		if err := ledger.Move(job.item.ID, SetPendingClassify, SetSucceeded); err != nil {
			itemLogger.Error("ledger rejected move", logging.Error(err))
			continue
		}
		succeeded = append(succeeded, job.item)
	}
	return succeeded
}

// classifyItem scores one item and keeps its cover. The item's scratch
// directory is released before it returns, whatever the outcome.
func (c *Coordinator) classifyItem(ctx context.Context, run *scratch.RunDir, job classifyJob, timeout time.Duration, logger *slog.Logger) (err error) {
	item := job.item
	defer func() {
		if releaseErr := job.dir.Release(); releaseErr != nil {
			logger.Warn("failed to release item scratch",
				logging.String("path", job.dir.Path()),
				logging.Error(releaseErr),
				logging.String(logging.FieldEventType, "scratch_release_failed"),
				logging.String(logging.FieldErrorHint, "check scratch_dir permissions"),
				logging.String(logging.FieldImpact, "run directory removal will retry"),
			)
		}
		item.AssetDir = ""
	}()
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrClassifyFailed, stageClassify, "panic", "recovered", fmt.Errorf("%v", r))
		}
	}()

	if err := item.Advance(gallery.StateClassifying); err != nil {
		return services.Wrap(services.ErrClassifyFailed, stageClassify, "advance", "", err)
	}
	started := time.Now()
	result, err := c.analyze(ctx, job.dir.Path(), timeout, logger)
	if err != nil {
		return err
	}
	item.SetResult(result.Score, result.Stats)

	if cover, ok := findCover(job.dir.Path()); ok {
		dest := run.CoverPath(item.ID, strings.ToLower(filepath.Ext(cover)))
		if moveErr := fileutil.MoveFile(cover, dest); moveErr != nil {
			logger.Warn("cover extraction failed",
				logging.Error(moveErr),
				logging.String(logging.FieldEventType, "cover_extract_failed"),
				logging.String(logging.FieldErrorHint, "check scratch_dir free space"),
				logging.String(logging.FieldImpact, "card row shows a placeholder"),
			)
		} else {
			item.CoverPath = dest
		}
	} else {
		logger.Debug("no cover candidate found")
	}

	if err := item.Advance(gallery.StateClassified); err != nil {
		return services.Wrap(services.ErrClassifyFailed, stageClassify, "advance", "", err)
	}
	logger.Info("item classified",
		logging.Float64("score", result.Score),
		logging.Int("flagged", result.Stats.Flagged),
		logging.Int("total", result.Stats.Total),
		logging.Duration("classify_duration", time.Since(started)),
		logging.String(logging.FieldEventType, "item_classified"),
	)
	return nil
}

type analysis struct {
	result classify.Result
	err    error
}

// analyze runs the classifier on its own goroutine under the per-item
// deadline. When the deadline or the run ends first the token is signalled
// and the call gets cancel_grace to return before it is abandoned.
func (c *Coordinator) analyze(ctx context.Context, dir string, timeout time.Duration, logger *slog.Logger) (classify.Result, error) {
	token := classify.NewCancelToken()
	done := make(chan analysis, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- analysis{err: fmt.Errorf("classifier panic: %v", r)}
			}
		}()
		result, err := c.deps.Classifier.Analyze(token, dir)
		done <- analysis{result: result, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return classify.Result{}, services.Wrap(services.ErrClassifyFailed, stageClassify, "analyze", "", out.err)
		}
		return out.result, nil
	case <-timer.C:
		token.Signal()
		c.awaitGrace(done, logger)
		return classify.Result{}, services.Wrap(services.ErrClassifyTimeout, stageClassify, "analyze",
			fmt.Sprintf("exceeded %s", timeout), nil)
	case <-ctx.Done():
		token.Signal()
		c.awaitGrace(done, logger)
		return classify.Result{}, services.Wrap(services.ErrClassifyFailed, stageClassify, "analyze", "run canceled", ctx.Err())
	}
}

func (c *Coordinator) awaitGrace(done <-chan analysis, logger *slog.Logger) {
	timer := time.NewTimer(c.opts.CancelGrace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		logger.Warn("classifier ignored cancellation; abandoning call",
			logging.Duration("grace", c.opts.CancelGrace),
			logging.String(logging.FieldEventType, "classify_cancel_ignored"),
			logging.String(logging.FieldErrorHint, "classifier backend should poll its cancel token"),
			logging.String(logging.FieldImpact, "backend may keep running in the background"),
		)
	}
}

// findCover picks 1.<ext> in preferred format order, else the lowest
// numbered asset with a preferred extension.
func findCover(dir string) (string, bool) {
	for _, ext := range coverExtensions {
		candidate := filepath.Join(dir, "1"+ext)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	best, bestN := "", -1
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !preferredExt(ext) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil || n < 0 {
			continue
		}
		if bestN < 0 || n < bestN {
			best, bestN = filepath.Join(dir, name), n
		}
	}
	return best, bestN >= 0
}

func preferredExt(ext string) bool {
	for _, candidate := range coverExtensions {
		if ext == candidate {
			return true
		}
	}
	return false
}
