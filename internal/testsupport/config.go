package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"curator/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.ScratchDir = filepath.Join(base, "scratch")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Source.ProxyURL = ""
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithSource points the listing and asset hosts at the given base URL,
// typically an httptest server.
func WithSource(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Source.BaseURL = baseURL
		b.cfg.Source.AssetBaseURL = baseURL
		b.cfg.Source.Referer = baseURL + "/"
		b.cfg.Source.RequestsPerSecond = 1000
	}
}

// WithClassifierEndpoint configures the remote classifier backend.
func WithClassifierEndpoint(endpoint string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Classifier.Endpoint = endpoint
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. Each stub prints body to stdout.
func WithStubbedBinaries(body string, names ...string) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\ncat <<'EOF'\n" + body + "\nEOF\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.ScratchDir)
}
