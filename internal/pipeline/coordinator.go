package pipeline

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/gallery"
	"curator/internal/logging"
	"curator/internal/notifications"
	"curator/internal/scratch"
	"curator/internal/source"
)

// Outcome describes how a run ended when it did not fail.
type Outcome string

const (
	OutcomeRendered  Outcome = "rendered"
	OutcomeNoListing Outcome = "no_listing"
	OutcomeNoResults Outcome = "no_results"
)

// Request parameterises one listing run. Zero timeouts use the configured
// defaults.
type Request struct {
	Window          source.Window
	TotalTimeout    time.Duration
	ClassifyTimeout time.Duration
}

// Report is the result of a completed run.
type Report struct {
	RunID        string
	Window       source.Window
	Outcome      Outcome
	ArtifactPath string
	Ranked       []*gallery.Item
	Summary      Summary
	Duration     time.Duration
}

// Dependencies are the collaborators a Coordinator drives.
type Dependencies struct {
	Lister     Lister
	Resolver   Resolver
	Fetcher    Fetcher
	Classifier classify.Classifier
	Renderer   Renderer
	Notifier   notifications.Service
	Scratch    *scratch.Root
}

// Options tunes concurrency, retries and deadlines.
type Options struct {
	DownloadWorkers int
	TotalTimeout    time.Duration
	ClassifyTimeout time.Duration
	CancelGrace     time.Duration
	ResolveAttempts int
	ResolveBackoff  time.Duration
	TopN            int
	MinAssets       int
	OutputDir       string
}

// OptionsFromConfig projects the pipeline settings of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	p := cfg.Pipeline
	return Options{
		DownloadWorkers: p.DownloadWorkers,
		TotalTimeout:    p.TotalTimeoutDuration(),
		ClassifyTimeout: p.ClassifyTimeoutDuration(),
		CancelGrace:     p.CancelGraceDuration(),
		ResolveAttempts: p.ResolveAttempts,
		ResolveBackoff:  p.ResolveBackoffDuration(),
		TopN:            p.TopN,
		MinAssets:       p.MinAssets,
		OutputDir:       cfg.Paths.OutputDir,
	}
}

func (o Options) withDefaults() Options {
	if o.DownloadWorkers <= 0 {
		o.DownloadWorkers = 3
	}
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = 20 * time.Minute
	}
	if o.ClassifyTimeout <= 0 {
		o.ClassifyTimeout = 5 * time.Minute
	}
	if o.CancelGrace <= 0 {
		o.CancelGrace = 5 * time.Second
	}
	if o.ResolveAttempts <= 0 {
		o.ResolveAttempts = 3
	}
	if o.ResolveBackoff < 0 {
		o.ResolveBackoff = 0
	}
	if o.TopN <= 0 {
		o.TopN = 10
	}
	if o.MinAssets < 0 {
		o.MinAssets = 0
	}
	return o
}

// Coordinator runs the pipeline. A single Coordinator admits one run at a
// time across both Run and RunSingle.
type Coordinator struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	running sync.Mutex
}

// New validates deps and returns a Coordinator.
func New(deps Dependencies, opts Options, logger *slog.Logger) (*Coordinator, error) {
	switch {
	case deps.Lister == nil:
		return nil, errors.New("pipeline: lister is required")
	case deps.Resolver == nil:
		return nil, errors.New("pipeline: resolver is required")
	case deps.Fetcher == nil:
		return nil, errors.New("pipeline: fetcher is required")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: classifier is required")
	case deps.Renderer == nil:
		return nil, errors.New("pipeline: renderer is required")
	case deps.Scratch == nil:
		return nil, errors.New("pipeline: scratch root is required")
	}
	if deps.Notifier == nil {
		deps.Notifier = notifications.NewService(nil)
	}
	opts = opts.withDefaults()
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	return &Coordinator{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "pipeline"),
		now:    time.Now,
	}, nil
}

// Options returns the effective options.
func (c *Coordinator) Options() Options { return c.opts }
