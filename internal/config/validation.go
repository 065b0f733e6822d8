// Package config handles configuration loading and validation for chronoproof.
package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if len(c.CalendarURLs) == 0 {
		errs = append(errs, ValidationError{Field: "calendar_urls", Message: "must not be empty"})
	}
	for _, u := range c.CalendarURLs {
		if err := validateCalendarURL(u); err != nil {
			errs = append(errs, ValidationError{Field: "calendar_urls", Message: err.Error()})
		}
	}
	for _, u := range c.WhitelistURLs {
		if err := validateCalendarURL(u); err != nil {
			errs = append(errs, ValidationError{Field: "whitelist_urls", Message: err.Error()})
		}
	}

	if c.SubmitTotal <= 0 {
		errs = append(errs, ValidationError{Field: "submit_total", Message: "must be positive"})
	}
	if c.SubmitMinSuccess <= 0 {
		errs = append(errs, ValidationError{Field: "submit_min_success", Message: "must be positive"})
	}
	if c.SubmitMinSuccess > c.SubmitTotal {
		errs = append(errs, ValidationError{Field: "submit_min_success", Message: "must not exceed submit_total"})
	}

	if c.SubmitBudgetSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "submit_budget_seconds", Message: "must be positive"})
	}
	if c.HTTPTimeoutSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "http_timeout_seconds", Message: "must be positive"})
	}
	if c.SubmitRateLimitPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "submit_rate_limit_per_second", Message: "must not be negative"})
	}

	if c.CacheDir == "" {
		errs = append(errs, ValidationError{Field: "cache_dir", Message: "must not be empty"})
	}
	switch c.CacheBackend {
	case CacheBackendDir, CacheBackendBolt:
	default:
		errs = append(errs, ValidationError{Field: "cache_backend", Message: fmt.Sprintf("unknown backend %q", c.CacheBackend)})
	}

	if c.UpgradeWait && c.UpgradeWaitIntervalSeconds <= 0 {
		errs = append(errs, ValidationError{Field: "upgrade_wait_interval_seconds", Message: "must be positive when upgrade_wait is set"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateCalendarURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q: missing host", raw)
	}
	return nil
}
