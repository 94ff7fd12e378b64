package config

const (
	defaultScratchDir          = "~/.cache/curator/scratch"
	defaultOutputDir           = "~/.local/share/curator/output"
	defaultLogDir              = "~/.local/share/curator/logs"
	defaultListingPath         = "/language/chinese/{window}"
	defaultFallbackListingPath = "/language/chinese/"
	defaultManifestPath        = "/g/{id}/"
	defaultSourceTimeout       = 30
	defaultRequestsPerSecond   = 2.0
	defaultUserAgent           = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"
	defaultDownloadWorkers     = 3
	defaultTotalTimeout        = 1200
	defaultClassifyTimeout     = 300
	defaultCancelGrace         = 5
	defaultTopN                = 10
	defaultMinAssets           = 35
	defaultResolveAttempts     = 3
	defaultResolveBackoff      = 2
	defaultFetchConcurrency    = 10
	defaultFetchAttempts       = 3
	defaultFetchRetryPause     = 1
	defaultFetchTimeout        = 30
	defaultThreshold           = 0.15
	defaultClassifierTimeout   = 60
	defaultRenderWidth         = 800
	defaultRenderQuality       = 90
	defaultRenderMaxTags       = 6
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultNotifyTimeout       = 10
)

var (
	defaultFlaggedLabels   = []string{"nsfw", "porn", "hentai", "sexual", "explicit", "sex"}
	defaultSafeLabels      = []string{"normal", "safe"}
	defaultDetectionLabels = []string{"make_love", "penis", "vagina", "anus", "nipple"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ScratchDir: defaultScratchDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Source: Source{
			ListingPath:         defaultListingPath,
			FallbackListingPath: defaultFallbackListingPath,
			ManifestPath:        defaultManifestPath,
			RequestTimeout:      defaultSourceTimeout,
			RequestsPerSecond:   defaultRequestsPerSecond,
			UserAgent:           defaultUserAgent,
		},
		Pipeline: Pipeline{
			DownloadWorkers: defaultDownloadWorkers,
			TotalTimeout:    defaultTotalTimeout,
			ClassifyTimeout: defaultClassifyTimeout,
			CancelGrace:     defaultCancelGrace,
			TopN:            defaultTopN,
			MinAssets:       defaultMinAssets,
			ResolveAttempts: defaultResolveAttempts,
			ResolveBackoff:  defaultResolveBackoff,
		},
		Fetch: Fetch{
			MaxConcurrency: defaultFetchConcurrency,
			Attempts:       defaultFetchAttempts,
			RetryPause:     defaultFetchRetryPause,
			RequestTimeout: defaultFetchTimeout,
		},
		Classifier: Classifier{
			Threshold:       defaultThreshold,
			FlaggedLabels:   append([]string(nil), defaultFlaggedLabels...),
			SafeLabels:      append([]string(nil), defaultSafeLabels...),
			DetectionLabels: append([]string(nil), defaultDetectionLabels...),
			RequestTimeout:  defaultClassifierTimeout,
		},
		Render: Render{
			Width:   defaultRenderWidth,
			Quality: defaultRenderQuality,
			MaxTags: defaultRenderMaxTags,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
	}
}
