package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateSource(); err != nil {
		return err
	}
	if err := c.validateFetch(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.ArchiveDir) == "" {
		return errors.New("paths.archive_dir must be set")
	}
	if filepath.Clean(c.Paths.StagingDir) == filepath.Clean(c.Paths.ArchiveDir) {
		return errors.New("paths.staging_dir and paths.archive_dir must differ")
	}
	return nil
}

func (c *Config) validateSource() error {
	if c.Source.SystemID <= 0 {
		return errors.New("source.system_id must be positive")
	}
	if c.Source.BaseURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/tankobon/config.toml"
		}
		return fmt.Errorf("source.base_url is required. Set TANKOBON_SOURCE_URL env var or edit %s (create with 'tankobon config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Source.BaseURL)
	if err != nil {
		return fmt.Errorf("source.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("source.base_url must use http or https, got %q", parsed.Scheme)
	}
	return ensurePositiveMap(map[string]int{
		"source.request_timeout":    c.Source.RequestTimeout,
		"source.refresh_interval":   c.Source.RefreshInterval,
		"source.max_search_results": c.Source.MaxSearchResults,
	})
}

func (c *Config) validateFetch() error {
	if c.Fetch.MaxConcurrency < 1 || c.Fetch.MaxConcurrency > maxFetchConcurrency {
		return fmt.Errorf("fetch.max_concurrency must be between 1 and %d", maxFetchConcurrency)
	}
	if c.Fetch.FragmentRetries < 0 {
		return errors.New("fetch.fragment_retries must be >= 0")
	}
	if c.Fetch.FragmentTimeout <= 0 {
		return errors.New("fetch.fragment_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
