package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"curator/internal/config"
	"curator/internal/pipeline"
	"curator/internal/scratch"
	"curator/internal/testsupport"
)

type fakeRunner struct {
	mu        sync.Mutex
	requests  []pipeline.Request
	singleIDs []string
	report    *pipeline.Report
	err       error
}

func (f *fakeRunner) Run(_ context.Context, req pipeline.Request) (*pipeline.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.report, f.err
}

func (f *fakeRunner) RunSingle(_ context.Context, id string, _ time.Duration) (*pipeline.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleIDs = append(f.singleIDs, id)
	return f.report, f.err
}

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	runner     *fakeRunner
	roots      []*scratch.Root
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	homeDir := filepath.Join(testsupport.BaseDir(cfg), "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	configPath := filepath.Join(homeDir, ".config", "curator", "config.toml")
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, runner: &fakeRunner{}}
}

func (e *cliTestEnv) factory(_ *config.Config, root *scratch.Root, _ *slog.Logger) (pipelineRunner, func(), error) {
	e.roots = append(e.roots, root)
	return e.runner, nil, nil
}

func runCLI(t *testing.T, env *cliTestEnv, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommandWithRunner(env.factory)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{"--config", env.configPath}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nscratch_dir = %q\noutput_dir = %q\nlog_dir = %q\n\n[source]\nbase_url = %q\nasset_base_url = %q\n\n[logging]\nlevel = \"error\"\n",
		cfg.Paths.ScratchDir,
		cfg.Paths.OutputDir,
		cfg.Paths.LogDir,
		cfg.Source.BaseURL,
		cfg.Source.AssetBaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
