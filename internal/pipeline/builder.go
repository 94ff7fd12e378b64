package pipeline

import (
	"fmt"
	"log/slog"

	"curator/internal/classify"
	"curator/internal/config"
	"curator/internal/fetch"
	"curator/internal/notifications"
	"curator/internal/render"
	"curator/internal/scratch"
	"curator/internal/source"
	"curator/internal/transport"
)

// NewFromConfig wires a Coordinator with the production collaborators
// described by cfg. The returned close function releases renderer fonts.
func NewFromConfig(cfg *config.Config, root *scratch.Root, logger *slog.Logger) (*Coordinator, func(), error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("pipeline: config is required")
	}
	pageClient, err := transport.ForSource(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("source client: %w", err)
	}
	assetClient, err := transport.ForAssets(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("asset client: %w", err)
	}

	gate := fetch.NewGate(cfg.Fetch.MaxConcurrency)
	fetcher := fetch.NewFetcher(assetClient, gate, fetch.Options{
		Attempts:   cfg.Fetch.Attempts,
		RetryPause: cfg.Fetch.RetryPauseDuration(),
	}, logger)
	renderer := render.New(cfg.Render, logger)

	coordinator, err := New(Dependencies{
		Lister:     source.NewLister(cfg, pageClient, logger),
		Resolver:   source.NewResolver(cfg, pageClient, logger),
		Fetcher:    fetcher,
		Classifier: classify.NewLazy(classify.SettingsFromConfig(cfg), logger),
		Renderer:   renderer,
		Notifier:   notifications.NewService(cfg),
		Scratch:    root,
	}, OptionsFromConfig(cfg), logger)
	if err != nil {
		renderer.Close()
		return nil, nil, err
	}
	return coordinator, renderer.Close, nil
}
