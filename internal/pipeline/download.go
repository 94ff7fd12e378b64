package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/scratch"
	"curator/internal/services"
)

const stageDownload = "download"

var errEmptyManifest = errors.New("manifest lists no assets")

// classifyJob hands an item and the scratch directory it owns to the
// classify worker.
type classifyJob struct {
	item *gallery.Item
	dir  *scratch.Dir
}

func (c *Coordinator) downloadWorker(ctx context.Context, run *scratch.RunDir, ledger *Ledger, in <-chan *gallery.Item, out chan<- classifyJob, logger *slog.Logger) {
	for item := range in {
		if ctx.Err() != nil {
			return
		}
		itemCtx := services.WithStage(services.WithItemID(ctx, item.ID), stageDownload)
		itemLogger := logging.WithContext(itemCtx, c.logger)

		dir, err := c.downloadItem(itemCtx, run, item, c.opts.MinAssets, itemLogger)
		switch {
		case err == nil:
			if moveErr := ledger.Move(item.ID, SetPendingDownload, SetPendingClassify); moveErr != nil {
				itemLogger.Error("ledger rejected move", logging.Error(moveErr))
			}
			out <- classifyJob{item: item, dir: dir}
		case errors.Is(err, services.ErrFiltered):
			c.settle(item, gallery.StateFiltered, itemLogger)
			if moveErr := ledger.Move(item.ID, SetPendingDownload, SetFiltered); moveErr != nil {
				itemLogger.Error("ledger rejected move", logging.Error(moveErr))
			}
			itemLogger.Info("item filtered",
				logging.String("reason", err.Error()),
				logging.String(logging.FieldEventType, "item_filtered"),
			)
		default:
			c.settle(item, gallery.StateDownloadFailed, itemLogger)
			if moveErr := ledger.Fail(item.ID, SetPendingDownload, err); moveErr != nil {
				itemLogger.Error("ledger rejected move", logging.Error(moveErr))
			}
			if ctx.Err() == nil {
				logging.WarnWithContext(itemLogger, "download failed", "item_download_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check source reachability and proxy settings"),
				)
			}
		}
	}
}

// downloadItem resolves the manifest and fetches assets into a fresh scratch
// directory. On success the caller owns the returned directory.
func (c *Coordinator) downloadItem(ctx context.Context, run *scratch.RunDir, item *gallery.Item, minAssets int, logger *slog.Logger) (dir *scratch.Dir, err error) {
	defer func() {
		if r := recover(); r != nil {
			if dir != nil {
				_ = dir.Release()
				dir = nil
			}
			item.AssetDir = ""
			err = services.Wrap(services.ErrDownloadFailed, stageDownload, "panic", "recovered", fmt.Errorf("%v", r))
		}
	}()

	if err := item.Advance(gallery.StateDownloading); err != nil {
		return nil, services.Wrap(services.ErrDownloadFailed, stageDownload, "advance", "", err)
	}
	manifest, err := c.resolve(ctx, item.ID, minAssets, logger)
	if err != nil {
		return nil, err
	}
	item.Merge(manifest)
	item.Assets = len(manifest.AssetURLs)

	dir, err = run.ItemDir(item.ID)
	if err != nil {
		return nil, services.Wrap(services.ErrDownloadFailed, stageDownload, "scratch", "create item dir", err)
	}
	report, err := c.deps.Fetcher.Fetch(ctx, manifest.AssetURLs, dir.Path())
	if err != nil {
		_ = dir.Release()
		return nil, services.Wrap(services.ErrDownloadFailed, stageDownload, "fetch", "", err)
	}
	item.AssetDir = dir.Path()
	if err := item.Advance(gallery.StateDownloaded); err != nil {
		_ = dir.Release()
		item.AssetDir = ""
		return nil, services.Wrap(services.ErrDownloadFailed, stageDownload, "advance", "", err)
	}
	logger.Info("assets downloaded",
		logging.Int("requested", report.Requested),
		logging.Int("fetched", report.Fetched),
		logging.Int("failed", report.Failed),
		logging.Int("not_found", report.NotFound),
		logging.String(logging.FieldEventType, "item_downloaded"),
	)
	return dir, nil
}

// resolve calls the resolver up to the configured number of attempts. A
// filtered verdict is returned at once. Running out of attempts yields an
// error matching both services.ErrDownloadFailed and services.ErrResolveFailed.
func (c *Coordinator) resolve(ctx context.Context, id string, minAssets int, logger *slog.Logger) (gallery.Manifest, error) {
	attempts := c.opts.ResolveAttempts
	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		manifest, err := c.deps.Resolver.Resolve(ctx, id, minAssets)
		if err == nil && len(manifest.AssetURLs) > 0 {
			return manifest, nil
		}
		if errors.Is(err, services.ErrFiltered) {
			return gallery.Manifest{}, err
		}
		if err == nil {
			err = errEmptyManifest
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		logger.Debug("manifest resolve attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("attempts", attempts),
			logging.Error(err),
		)
		if attempt < attempts && !pause(ctx, c.opts.ResolveBackoff) {
			break
		}
	}
	resolveErr := services.Wrap(services.ErrResolveFailed, stageDownload, "resolve",
		fmt.Sprintf("item %s after %d attempt(s)", id, made), lastErr)
	return gallery.Manifest{}, fmt.Errorf("%w: %w", services.ErrDownloadFailed, resolveErr)
}

// settle advances item to a terminal state, logging if the lifecycle refuses.
func (c *Coordinator) settle(item *gallery.Item, to gallery.State, logger *slog.Logger) {
	if err := item.Advance(to); err != nil {
		logger.Debug("state transition refused", logging.String("to", string(to)), logging.Error(err))
	}
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
