package preflight

import (
	"context"
	"log/slog"
	"strings"

	"curator/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Optional bool
	Detail   string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, logger *slog.Logger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Paths.ScratchDir))
	results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))

	results = append(results, CheckClassifier(ctx, cfg, logger))
	if strings.TrimSpace(cfg.Classifier.Command) != "" {
		for _, status := range CheckSystemDeps(cfg) {
			detail := status.Detail
			if status.Available {
				detail = status.Path
			}
			results = append(results, Result{Name: status.Name, Passed: status.Available, Optional: status.Optional, Detail: detail})
		}
	}

	results = append(results, CheckSource(ctx, cfg))
	results = append(results, CheckNotifications(cfg))
	return results
}

// Failed reports whether any required check failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.Passed && !r.Optional {
			return true
		}
	}
	return false
}
