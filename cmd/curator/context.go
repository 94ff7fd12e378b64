package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/config"
	"curator/internal/logging"
	"curator/internal/pipeline"
	"curator/internal/scratch"
)

// pipelineRunner is the part of the coordinator the run command drives.
type pipelineRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Report, error)
	RunSingle(ctx context.Context, id string, classifyTimeout time.Duration) (*pipeline.Report, error)
}

type runnerFactory func(cfg *config.Config, root *scratch.Root, logger *slog.Logger) (pipelineRunner, func(), error)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	newRunner runnerFactory
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		newRunner:  defaultRunner,
	}
}

func defaultRunner(cfg *config.Config, root *scratch.Root, logger *slog.Logger) (pipelineRunner, func(), error) {
	return pipeline.NewFromConfig(cfg, root, logger)
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// loggerFor builds the process logger from config once; failures fall back
// to a console logger on stderr.
func (c *commandContext) loggerFor(cmd *cobra.Command) *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg := c.configValue()
		if cfg == nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "logging setup failed, using stderr: %v\n", err)
			logger, _ = logging.New(logging.Options{Level: cfg.Logging.Level, Format: "console"})
		}
		if logger == nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger
}

// acquireScratch takes ownership of the configured scratch root, clearing
// anything a previous process left behind.
func (c *commandContext) acquireScratch(logger *slog.Logger) (*scratch.Root, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	root, err := scratch.Acquire(cfg.Paths.ScratchDir, logger)
	if errors.Is(err, scratch.ErrRootLocked) {
		return nil, fmt.Errorf("scratch directory %s is in use by another curator process", cfg.Paths.ScratchDir)
	}
	return root, err
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
