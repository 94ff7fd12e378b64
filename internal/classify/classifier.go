package classify

import (
	"log/slog"
	"time"

	"curator/internal/config"
	"curator/internal/gallery"
	"curator/internal/services"
)

// Result is the outcome of classifying one gallery.
type Result struct {
	Score float64
	Stats gallery.Stats
}

// Classifier scores a directory of images. Implementations must poll token
// between discrete steps and return promptly once it is signalled.
type Classifier interface {
	Analyze(token *CancelToken, dir string) (Result, error)
}

// Settings configures backend selection.
type Settings struct {
	Endpoint       string
	Command        string
	Args           []string
	Device         string
	RequestTimeout time.Duration
	Rules          Rules
}

// SettingsFromConfig projects the classifier section of cfg.
func SettingsFromConfig(cfg *config.Config) Settings {
	c := cfg.Classifier
	return Settings{
		Endpoint:       c.Endpoint,
		Command:        c.Command,
		Args:           append([]string(nil), c.Args...),
		Device:         c.Device,
		RequestTimeout: c.RequestTimeoutDuration(),
		Rules: Rules{
			Threshold:       c.Threshold,
			FlaggedLabels:   c.FlaggedLabels,
			SafeLabels:      c.SafeLabels,
			DetectionLabels: c.DetectionLabels,
		},
	}
}

// judged adapts a per-image Judge into a Classifier.
type judged struct {
	judge  Judge
	rules  Rules
	logger *slog.Logger
}

func (j *judged) Analyze(token *CancelToken, dir string) (Result, error) {
	return Evaluate(token, dir, j.judge, j.rules, j.logger)
}

type unavailable struct {
	reason string
}

func (u unavailable) Analyze(*CancelToken, string) (Result, error) {
	return Result{}, services.Wrap(services.ErrBackendUnavailable, "classify", "select backend", u.reason, nil)
}
