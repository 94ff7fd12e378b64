package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"curator/internal/fileutil"
	"curator/internal/logging"
	"curator/internal/transport"
)

// Report counts per-asset outcomes for one Fetch call.
type Report struct {
	Requested int
	Fetched   int
	Failed    int
	NotFound  int
}

// Options tunes retry behaviour.
type Options struct {
	Attempts   int
	RetryPause time.Duration
}

// Fetcher downloads asset lists through a shared gate.
type Fetcher struct {
	client   *transport.Client
	gate     *Gate
	attempts int
	pause    time.Duration
	logger   *slog.Logger
}

// NewFetcher wires a fetcher. The gate should be shared by every fetcher in
// the process.
func NewFetcher(client *transport.Client, gate *Gate, opts Options, logger *slog.Logger) *Fetcher {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{
		client:   client,
		gate:     gate,
		attempts: attempts,
		pause:    opts.RetryPause,
		logger:   logging.NewComponentLogger(logger, "fetch"),
	}
}

// Gate exposes the shared transfer gate.
func (f *Fetcher) Gate() *Gate { return f.gate }

type outcome int

const (
	outcomeFetched outcome = iota
	outcomeFailed
	outcomeNotFound
)

var errNotFound = errors.New("asset not found")

// Fetch downloads urls into dir, creating it if needed. Only directory
// creation failures and context cancellation are returned as errors.
func (f *Fetcher) Fetch(ctx context.Context, urls []string, dir string) (Report, error) {
	report := Report{Requested: len(urls)}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return report, fmt.Errorf("create asset dir: %w", err)
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, raw := range urls {
		dest := filepath.Join(dir, assetName(raw, i+1))
		wg.Add(1)
		go func(raw, dest string) {
			defer wg.Done()
			result := f.fetchOne(ctx, raw, dest)
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeFetched:
				report.Fetched++
			case outcomeNotFound:
				report.NotFound++
			default:
				report.Failed++
			}
		}(raw, dest)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if report.Fetched < report.Requested {
		f.logger.Debug("assets partially fetched",
			logging.Int("requested", report.Requested),
			logging.Int("fetched", report.Fetched),
			logging.Int("failed", report.Failed),
			logging.Int("not_found", report.NotFound),
		)
	}
	return report, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, raw, dest string) outcome {
	for attempt := 1; attempt <= f.attempts; attempt++ {
		err := f.transfer(ctx, raw, dest)
		if err == nil {
			return outcomeFetched
		}
		if errors.Is(err, errNotFound) {
			f.logger.Debug("asset not found; not retrying", logging.String("url", raw))
			return outcomeNotFound
		}
		if ctx.Err() != nil {
			return outcomeFailed
		}
		f.logger.Debug("asset transfer failed",
			logging.String("url", raw),
			logging.Int("attempt", attempt),
			logging.Int("attempts", f.attempts),
			logging.Error(err),
		)
		if attempt < f.attempts && !sleep(ctx, f.pause) {
			return outcomeFailed
		}
	}
	return outcomeFailed
}

// transfer performs one attempt while holding a gate slot.
func (f *Fetcher) transfer(ctx context.Context, raw, dest string) error {
	if err := f.gate.Acquire(ctx); err != nil {
		return err
	}
	defer f.gate.Release()

	resp, err := f.client.Get(ctx, raw)
	if err != nil {
		return err
	}
	defer transport.Drain(resp)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return errNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	_, err = fileutil.WriteAtomic(dest, resp.Body)
	return err
}

// assetName derives the local file name from the URL's last path segment.
func assetName(raw string, index int) string {
	if parsed, err := url.Parse(raw); err == nil {
		name := path.Base(parsed.Path)
		if name != "" && name != "." && name != "/" && !strings.HasPrefix(name, ".") {
			return name
		}
	}
	return strconv.Itoa(index)
}

func sleep(ctx context.Context, d time.Duration) bool {
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
