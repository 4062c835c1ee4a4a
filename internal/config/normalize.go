package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeSource()
	c.normalizeFetch()
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		c.Daemon.ShutdownTimeout = defaultShutdownTimeoutSec
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.ArchiveDir, err = expandPath(c.Paths.ArchiveDir); err != nil {
		return fmt.Errorf("paths.archive_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("TANKOBON_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizeSource() {
	c.Source.Name = strings.ToLower(strings.TrimSpace(c.Source.Name))
	if c.Source.Name == "" {
		c.Source.Name = defaultSourceName
	}
	c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(c.Source.BaseURL), "/")
	if c.Source.BaseURL == "" {
		if value, ok := os.LookupEnv("TANKOBON_SOURCE_URL"); ok {
			c.Source.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	c.Source.Referer = strings.TrimSpace(c.Source.Referer)
	c.Source.UserAgent = strings.TrimSpace(c.Source.UserAgent)
	if c.Source.UserAgent == "" {
		c.Source.UserAgent = defaultSourceUserAgent
	}
	if c.Source.RequestTimeout <= 0 {
		c.Source.RequestTimeout = defaultRequestTimeout
	}
	if c.Source.RefreshInterval <= 0 {
		c.Source.RefreshInterval = defaultRefreshInterval
	}
	c.Source.LanguageQualifier = strings.TrimSpace(c.Source.LanguageQualifier)
	if c.Source.MaxSearchResults <= 0 {
		c.Source.MaxSearchResults = defaultMaxSearchResults
	}
}

func (c *Config) normalizeFetch() {
	if c.Fetch.MaxConcurrency == 0 {
		c.Fetch.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Fetch.FragmentTimeout <= 0 {
		c.Fetch.FragmentTimeout = defaultFragmentTimeout
	}
	if c.Fetch.RetryDelaySeconds < 0 {
		c.Fetch.RetryDelaySeconds = 0
	}
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.Path) != "" {
		var err error
		if c.Catalog.Path, err = expandPath(c.Catalog.Path); err != nil {
			return fmt.Errorf("catalog.path: %w", err)
		}
	}
	c.Catalog.AnonymousAuthor = strings.TrimSpace(c.Catalog.AnonymousAuthor)
	if c.Catalog.AnonymousAuthor == "" {
		c.Catalog.AnonymousAuthor = defaultAnonymousAuthor
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
