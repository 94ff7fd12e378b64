package classify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"curator/internal/deps"
	"curator/internal/logging"
)

const probeTimeout = 10 * time.Second

// Backend names reported by Select.
const (
	BackendRemote      = "remote"
	BackendCommand     = "command"
	BackendUnavailable = "unavailable"
)

type strategy struct {
	name  string
	build func(ctx context.Context, settings Settings, logger *slog.Logger) (Classifier, error)
}

var strategies = []strategy{
	{name: BackendRemote, build: buildRemote},
	{name: BackendCommand, build: buildCommand},
}

// Select tries each backend in order and returns the first that is usable
// along with its name. It never fails: with no usable backend it returns a
// classifier whose Analyze reports services.ErrBackendUnavailable.
func Select(ctx context.Context, settings Settings, logger *slog.Logger) (Classifier, string) {
	logger = logging.NewComponentLogger(logger, "classifier")
	reasons := make([]string, 0, len(strategies))
	for _, s := range strategies {
		classifier, err := s.build(ctx, settings, logger)
		if err == nil {
			logger.Info("classifier backend selected", logging.String("backend", s.name))
			return classifier, s.name
		}
		logger.Debug("classifier backend unusable", logging.String("backend", s.name), logging.Error(err))
		reasons = append(reasons, s.name+": "+err.Error())
	}
	reason := strings.Join(reasons, "; ")
	logging.WarnWithContext(logger, "no classifier backend available", "classifier_unavailable",
		logging.String("reasons", reason),
		logging.String(logging.FieldErrorHint, "set classifier.endpoint or classifier.command"),
		logging.String(logging.FieldImpact, "every item will fail classification"),
	)
	return unavailable{reason: reason}, BackendUnavailable
}

var errNotConfigured = errors.New("not configured")

func buildRemote(ctx context.Context, settings Settings, logger *slog.Logger) (Classifier, error) {
	if settings.Endpoint == "" {
		return nil, errNotConfigured
	}
	backend := newRemoteBackend(settings)
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := backend.probe(probeCtx); err != nil {
		return nil, err
	}
	return &judged{judge: backend.judge, rules: settings.Rules, logger: logger}, nil
}

func buildCommand(_ context.Context, settings Settings, logger *slog.Logger) (Classifier, error) {
	if settings.Command == "" {
		return nil, errNotConfigured
	}
	status := deps.Lookup(deps.Requirement{Name: "classifier", Command: settings.Command})
	if !status.Available {
		return nil, errors.New(status.Detail)
	}
	backend := &commandBackend{path: status.Path, args: settings.Args, device: settings.Device}
	return &judged{judge: backend.judge, rules: settings.Rules, logger: logger}, nil
}

// Lazy defers backend selection until the first Analyze call so a missing
// model does not slow process start.
type Lazy struct {
	settings Settings
	logger   *slog.Logger

	once    sync.Once
	chosen  Classifier
	backend string
}

// NewLazy returns a Classifier that selects its backend on first use.
func NewLazy(settings Settings, logger *slog.Logger) *Lazy {
	return &Lazy{settings: settings, logger: logger}
}

// Analyze selects a backend if needed and delegates to it.
func (l *Lazy) Analyze(token *CancelToken, dir string) (Result, error) {
	l.load()
	return l.chosen.Analyze(token, dir)
}

// Backend reports the selected backend name, selecting one if needed.
func (l *Lazy) Backend() string {
	l.load()
	return l.backend
}

func (l *Lazy) load() {
	l.once.Do(func() {
		l.chosen, l.backend = Select(context.Background(), l.settings, l.logger)
	})
}
