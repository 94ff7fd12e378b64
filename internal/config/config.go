package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	ScratchDir string `toml:"scratch_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// Source describes the remote listing site and how to talk to it.
type Source struct {
	BaseURL             string  `toml:"base_url"`
	AssetBaseURL        string  `toml:"asset_base_url"`
	ListingPath         string  `toml:"listing_path"`
	FallbackListingPath string  `toml:"fallback_listing_path"`
	ManifestPath        string  `toml:"manifest_path"`
	RequestTimeout      int     `toml:"request_timeout"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
	UserAgent           string  `toml:"user_agent"`
	Referer             string  `toml:"referer"`
	ProxyURL            string  `toml:"proxy_url"`
}

// Pipeline contains coordinator sizing and timeouts. Durations are seconds.
type Pipeline struct {
	DownloadWorkers int `toml:"download_workers"`
	TotalTimeout    int `toml:"total_timeout"`
	ClassifyTimeout int `toml:"classify_timeout"`
	CancelGrace     int `toml:"cancel_grace"`
	TopN            int `toml:"top_n"`
	// MinAssets is a quality heuristic; galleries with fewer assets are filtered.
	MinAssets       int `toml:"min_assets"`
	ResolveAttempts int `toml:"resolve_attempts"`
	ResolveBackoff  int `toml:"resolve_backoff"`
}

// Fetch contains asset download limits.
type Fetch struct {
	MaxConcurrency int `toml:"max_concurrency"`
	Attempts       int `toml:"attempts"`
	RetryPause     int `toml:"retry_pause"`
	RequestTimeout int `toml:"request_timeout"`
}

// Classifier selects and tunes the scoring backend.
type Classifier struct {
	Endpoint        string   `toml:"endpoint"`
	Command         string   `toml:"command"`
	Args            []string `toml:"args"`
	Threshold       float64  `toml:"threshold"`
	Device          string   `toml:"device"`
	FlaggedLabels   []string `toml:"flagged_labels"`
	SafeLabels      []string `toml:"safe_labels"`
	DetectionLabels []string `toml:"detection_labels"`
	RequestTimeout  int      `toml:"request_timeout"`
}

// Render controls the summary card.
type Render struct {
	FontPath string `toml:"font_path"`
	Width    int    `toml:"width"`
	Quality  int    `toml:"quality"`
	MaxTags  int    `toml:"max_tags"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Config encapsulates all configuration values for curator.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Source        Source        `toml:"source"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Fetch         Fetch         `toml:"fetch"`
	Classifier    Classifier    `toml:"classifier"`
	Render        Render        `toml:"render"`
	Logging       Logging       `toml:"logging"`
	Notifications Notifications `toml:"notifications"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/curator/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("curator.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the output and log directories. The scratch
// root is owned by the scratch package and created on acquisition.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func seconds(v int) time.Duration {
	return time.Duration(v) * time.Second
}

// TotalTimeoutDuration returns the whole-run deadline.
func (p Pipeline) TotalTimeoutDuration() time.Duration { return seconds(p.TotalTimeout) }

// ClassifyTimeoutDuration returns the per-item classify deadline.
func (p Pipeline) ClassifyTimeoutDuration() time.Duration { return seconds(p.ClassifyTimeout) }

func (p Pipeline) CancelGraceDuration() time.Duration { return seconds(p.CancelGrace) }

func (p Pipeline) ResolveBackoffDuration() time.Duration { return seconds(p.ResolveBackoff) }

func (f Fetch) RetryPauseDuration() time.Duration { return seconds(f.RetryPause) }

func (f Fetch) RequestTimeoutDuration() time.Duration { return seconds(f.RequestTimeout) }

func (s Source) RequestTimeoutDuration() time.Duration { return seconds(s.RequestTimeout) }

func (c Classifier) RequestTimeoutDuration() time.Duration { return seconds(c.RequestTimeout) }

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
