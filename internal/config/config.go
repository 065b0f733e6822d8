// Package config handles configuration loading and validation for chronoproof.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// CacheBackend selects the on-disk representation of the commitment cache.
type CacheBackend string

const (
	// CacheBackendDir stores cached timestamps as individual files under a
	// hex fan-out directory tree.
	CacheBackendDir CacheBackend = "dir"
	// CacheBackendBolt stores cached timestamps in a single bbolt database.
	CacheBackendBolt CacheBackend = "bolt"
)

// Config holds the chronoproof CLI/daemon configuration.
type Config struct {
	// CalendarURLs is the ordered list of calendar servers new commitments
	// are submitted to and pending attestations are polled against.
	CalendarURLs []string `toml:"calendar_urls"`

	// WhitelistURLs restricts which Pending attestation URIs the upgrade
	// engine is willing to poll automatically. An empty list disables
	// automatic upgrading unless CalendarURLs overrides are supplied.
	WhitelistURLs []string `toml:"whitelist_urls"`

	// SubmitMinSuccess (m) and SubmitTotal (n) describe the m-of-n fan-out
	// success criterion for a single stamp operation.
	SubmitMinSuccess int `toml:"submit_min_success"`
	SubmitTotal      int `toml:"submit_total"`

	// SubmitBudgetSeconds bounds the wall-clock time a stamp operation
	// waits for m successful calendar submissions before giving up.
	SubmitBudgetSeconds int `toml:"submit_budget_seconds"`

	// SubmitRateLimitPerSecond throttles the aggregate rate of outbound
	// calendar submissions across all calendar URLs. Zero disables
	// throttling.
	SubmitRateLimitPerSecond float64 `toml:"submit_rate_limit_per_second"`

	// HTTPTimeoutSeconds bounds a single calendar HTTP round trip.
	HTTPTimeoutSeconds int `toml:"http_timeout_seconds"`

	// CacheDir is the base directory (or bbolt file, for CacheBackendBolt)
	// backing the pending-attestation commitment cache.
	CacheDir     string       `toml:"cache_dir"`
	CacheBackend CacheBackend `toml:"cache_backend"`

	// UpgradeWait, if true, makes the upgrade engine keep polling with
	// UpgradeWaitIntervalSeconds between passes instead of returning after
	// one sweep.
	UpgradeWait                bool `toml:"upgrade_wait"`
	UpgradeWaitIntervalSeconds int  `toml:"upgrade_wait_interval_seconds"`

	// LogPath is the path to the structured log file.
	LogPath string `toml:"log_path"`

	// AuditLogPath is the path to the JSON-lines audit log.
	AuditLogPath string `toml:"audit_log_path"`
}

// DefaultCalendarURLs mirrors the public OpenTimestamps calendar pool, the
// same servers a stamp without explicit configuration submits to.
func DefaultCalendarURLs() []string {
	return []string{
		"https://alice.btc.calendar.opentimestamps.org",
		"https://bob.btc.calendar.opentimestamps.org",
		"https://finney.calendar.eternitywall.com",
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	paths := GetDefaultPaths()
	calendars := DefaultCalendarURLs()

	return &Config{
		CalendarURLs:               calendars,
		WhitelistURLs:              calendars,
		SubmitMinSuccess:           2,
		SubmitTotal:                len(calendars),
		SubmitBudgetSeconds:        30,
		SubmitRateLimitPerSecond:   5,
		HTTPTimeoutSeconds:         10,
		CacheDir:                   filepath.Join(paths.CacheDir, "commitments"),
		CacheBackend:               CacheBackendDir,
		UpgradeWait:                false,
		UpgradeWaitIntervalSeconds: 10,
		LogPath:                    paths.LogFile,
		AuditLogPath:               filepath.Join(paths.DataDir, "audit.log"),
	}
}

// SubmitBudget returns SubmitBudgetSeconds as a time.Duration.
func (c *Config) SubmitBudget() time.Duration {
	return time.Duration(c.SubmitBudgetSeconds) * time.Second
}

// HTTPTimeout returns HTTPTimeoutSeconds as a time.Duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// UpgradeWaitInterval returns UpgradeWaitIntervalSeconds as a time.Duration.
func (c *Config) UpgradeWaitInterval() time.Duration {
	return time.Duration(c.UpgradeWaitIntervalSeconds) * time.Second
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return GetDefaultPaths().ConfigFile
}

// Load reads configuration from the specified path.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates all necessary directories for the configured
// cache and log paths.
func (c *Config) EnsureDirectories() error {
	dirs := []string{filepath.Dir(c.LogPath), filepath.Dir(c.AuditLogPath)}
	if c.CacheBackend == CacheBackendDir {
		dirs = append(dirs, c.CacheDir)
	} else {
		dirs = append(dirs, filepath.Dir(c.CacheDir))
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0750); err != nil {
			return err
		}
	}

	return nil
}
