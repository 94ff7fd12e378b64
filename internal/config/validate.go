package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateRender(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateSource() error {
	for key, value := range map[string]string{
		"source.base_url":       c.Source.BaseURL,
		"source.asset_base_url": c.Source.AssetBaseURL,
		"source.proxy_url":      c.Source.ProxyURL,
	} {
		if value == "" {
			continue
		}
		if err := validateURL(value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if !strings.Contains(c.Source.ManifestPath, "{id}") {
		return errors.New("source.manifest_path must contain the {id} placeholder")
	}
	return nil
}

// RequireSource reports whether the listing site is configured well enough
// to run the pipeline.
func (c *Config) RequireSource() error {
	if c.Source.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/curator/config.toml"
		}
		return fmt.Errorf("source.base_url is required. Edit %s (create with 'curator config init')", defaultPath)
	}
	if c.Source.AssetBaseURL == "" {
		return errors.New("source.asset_base_url is required")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.ClassifyTimeout > c.Pipeline.TotalTimeout {
		return errors.New("pipeline.classify_timeout must not exceed pipeline.total_timeout")
	}
	if c.Pipeline.DownloadWorkers > 32 {
		return errors.New("pipeline.download_workers must be 32 or fewer")
	}
	if c.Fetch.MaxConcurrency > 64 {
		return errors.New("fetch.max_concurrency must be 64 or fewer")
	}
	return nil
}

func (c *Config) validateClassifier() error {
	if c.Classifier.Threshold < 0 || c.Classifier.Threshold > 1 {
		return errors.New("classifier.threshold must be between 0 and 1")
	}
	if c.Classifier.Endpoint != "" {
		if err := validateURL(c.Classifier.Endpoint); err != nil {
			return fmt.Errorf("classifier.endpoint: %w", err)
		}
	}
	switch c.Classifier.Device {
	case "", "cpu", "cuda":
	default:
		return fmt.Errorf("classifier.device: unsupported value %q", c.Classifier.Device)
	}
	return nil
}

func (c *Config) validateRender() error {
	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return errors.New("render.quality must be between 1 and 100")
	}
	if c.Render.Width < 320 {
		return errors.New("render.width must be at least 320")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	return nil
}

func validateURL(value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" && parsed.Scheme != "socks5" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
