package config

import (
	"fmt"
	"os"
	"strings"

	"curator/internal/textutil"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizePipeline()
	c.normalizeFetch()
	if err := c.normalizeClassifier(); err != nil {
		return err
	}
	if err := c.normalizeRender(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeNotifications()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.ScratchDir) == "" {
		c.Paths.ScratchDir = defaultScratchDir
	}
	if c.Paths.ScratchDir, err = expandPath(c.Paths.ScratchDir); err != nil {
		return fmt.Errorf("paths.scratch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	c.Source.AssetBaseURL = strings.TrimRight(strings.TrimSpace(c.Source.AssetBaseURL), "/")
	if c.Source.ListingPath = strings.TrimSpace(c.Source.ListingPath); c.Source.ListingPath == "" {
		c.Source.ListingPath = defaultListingPath
	}
	c.Source.FallbackListingPath = strings.TrimSpace(c.Source.FallbackListingPath)
	if c.Source.ManifestPath = strings.TrimSpace(c.Source.ManifestPath); c.Source.ManifestPath == "" {
		c.Source.ManifestPath = defaultManifestPath
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultSourceTimeout
	}
	if c.Source.RequestsPerSecond <= 0 {
		c.Source.RequestsPerSecond = defaultRequestsPerSecond
	}
	if c.Source.UserAgent = strings.TrimSpace(c.Source.UserAgent); c.Source.UserAgent == "" {
		c.Source.UserAgent = defaultUserAgent
	}
	c.Source.Referer = strings.TrimSpace(c.Source.Referer)
	if c.Source.Referer == "" && c.Source.BaseURL != "" {
		c.Source.Referer = c.Source.BaseURL + "/"
	}
	c.Source.ProxyURL = strings.TrimSpace(c.Source.ProxyURL)
	if c.Source.ProxyURL == "" {
		for _, key := range []string{"CURATOR_PROXY_URL", "HTTPS_PROXY", "HTTP_PROXY"} {
			if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
				c.Source.ProxyURL = strings.TrimSpace(value)
				break
			}
		}
	}
}

func (c *Config) normalizePipeline() {
	if c.Pipeline.DownloadWorkers <= 0 {
		c.Pipeline.DownloadWorkers = defaultDownloadWorkers
	}
	if c.Pipeline.TotalTimeout <= 0 {
		c.Pipeline.TotalTimeout = defaultTotalTimeout
	}
	if c.Pipeline.ClassifyTimeout <= 0 {
		c.Pipeline.ClassifyTimeout = defaultClassifyTimeout
	}
	if c.Pipeline.CancelGrace <= 0 {
		c.Pipeline.CancelGrace = defaultCancelGrace
	}
	if c.Pipeline.TopN <= 0 {
		c.Pipeline.TopN = defaultTopN
	}
	if c.Pipeline.MinAssets < 0 {
		c.Pipeline.MinAssets = 0
	}
	if c.Pipeline.ResolveAttempts <= 0 {
		c.Pipeline.ResolveAttempts = defaultResolveAttempts
	}
	if c.Pipeline.ResolveBackoff < 0 {
		c.Pipeline.ResolveBackoff = defaultResolveBackoff
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.MaxConcurrency <= 0 {
		c.Fetch.MaxConcurrency = defaultFetchConcurrency
	}
	if c.Fetch.Attempts <= 0 {
		c.Fetch.Attempts = defaultFetchAttempts
	}
	if c.Fetch.RetryPause < 0 {
		c.Fetch.RetryPause = defaultFetchRetryPause
	}
	if c.Fetch.RequestTimeout <= 0 {
		c.Fetch.RequestTimeout = defaultFetchTimeout
	}
}

func (c *Config) normalizeClassifier() error {
	c.Classifier.Endpoint = strings.TrimRight(strings.TrimSpace(c.Classifier.Endpoint), "/")
	if c.Classifier.Endpoint == "" {
		if value, ok := os.LookupEnv("CURATOR_CLASSIFIER_ENDPOINT"); ok {
			c.Classifier.Endpoint = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Classifier.Command = strings.TrimSpace(c.Classifier.Command)
	if strings.HasPrefix(c.Classifier.Command, "~") {
		expanded, err := expandPath(c.Classifier.Command)
		if err != nil {
			return fmt.Errorf("classifier.command: %w", err)
		}
		c.Classifier.Command = expanded
	}
	c.Classifier.Device = strings.ToLower(strings.TrimSpace(c.Classifier.Device))
	c.Classifier.FlaggedLabels = normalizeLabels(c.Classifier.FlaggedLabels, defaultFlaggedLabels)
	c.Classifier.SafeLabels = normalizeLabels(c.Classifier.SafeLabels, defaultSafeLabels)
	c.Classifier.DetectionLabels = normalizeLabels(c.Classifier.DetectionLabels, defaultDetectionLabels)
	if c.Classifier.RequestTimeout <= 0 {
		c.Classifier.RequestTimeout = defaultClassifierTimeout
	}
	return nil
}

func normalizeLabels(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		label := textutil.FoldLabel(value)
		if label == "" {
			continue
		}
		if _, ok := seen[label]; ok {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (c *Config) normalizeRender() error {
	c.Render.FontPath = strings.TrimSpace(c.Render.FontPath)
	if c.Render.FontPath != "" {
		expanded, err := expandPath(c.Render.FontPath)
		if err != nil {
			return fmt.Errorf("render.font_path: %w", err)
		}
		c.Render.FontPath = expanded
	}
	if c.Render.Width <= 0 {
		c.Render.Width = defaultRenderWidth
	}
	if c.Render.Quality <= 0 {
		c.Render.Quality = defaultRenderQuality
	}
	if c.Render.MaxTags < 0 {
		c.Render.MaxTags = 0
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("CURATOR_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
}
