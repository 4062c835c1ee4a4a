package config

const (
	defaultStagingDir         = "~/.local/share/tankobon/raw_document"
	defaultArchiveDir         = "~/.local/share/tankobon/archive"
	defaultDataDir            = "~/.local/share/tankobon"
	defaultLogDir             = "~/.local/share/tankobon/logs"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultSourceName         = "hitomi"
	defaultSourceSystemID     = 1
	defaultSourceBaseURL      = "https://ltn.gold-usergeneratedcontent.net"
	defaultSourceReferer      = "https://hitomi.la/"
	defaultSourceUserAgent    = "tankobon/0.1"
	defaultRequestTimeout     = 30
	defaultRefreshInterval    = 3600
	defaultMaxConcurrency     = 5
	defaultFragmentTimeout    = 120
	defaultRetryDelaySeconds  = 2
	defaultAnonymousAuthor    = "anonymous"
	maxFetchConcurrency       = 32
	defaultLanguageQualifier  = "language:chinese"
	defaultMaxSearchResults   = 10
	defaultShutdownTimeoutSec = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			ArchiveDir: defaultArchiveDir,
			DataDir:    defaultDataDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Source: Source{
			Name:              defaultSourceName,
			SystemID:          defaultSourceSystemID,
			BaseURL:           defaultSourceBaseURL,
			Referer:           defaultSourceReferer,
			UserAgent:         defaultSourceUserAgent,
			RequestTimeout:    defaultRequestTimeout,
			RefreshInterval:   defaultRefreshInterval,
			LanguageQualifier: defaultLanguageQualifier,
			MaxSearchResults:  defaultMaxSearchResults,
		},
		Fetch: Fetch{
			MaxConcurrency:    defaultMaxConcurrency,
			FragmentTimeout:   defaultFragmentTimeout,
			FragmentRetries:   0,
			RetryDelaySeconds: defaultRetryDelaySeconds,
		},
		Catalog: Catalog{
			AnonymousAuthor: defaultAnonymousAuthor,
		},
		Daemon: Daemon{
			ShutdownTimeout: defaultShutdownTimeoutSec,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
