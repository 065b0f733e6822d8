package main

import (
	"fmt"
	"os"
	"strings"

	"chronoproof/internal/cache"
	"chronoproof/internal/config"
	"chronoproof/internal/detachedfile"
)

// splitList splits a comma-separated flag value into its trimmed,
// non-empty elements. An empty string yields a nil slice.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// loadConfig loads the configuration at path, falling back to defaults
// when path is empty, and validates the result.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// openCache opens the cache backend named by cfg, returning it alongside
// a close function that is a no-op for backends with nothing to close.
func openCache(cfg *config.Config) (cache.Cache, func() error, error) {
	switch cfg.CacheBackend {
	case config.CacheBackendBolt:
		c, err := cache.OpenBoltCache(cfg.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open bolt cache: %w", err)
		}
		return c, c.Close, nil
	case config.CacheBackendDir:
		c, err := cache.OpenDirCache(cfg.CacheDir)
		if err != nil {
			return nil, nil, fmt.Errorf("open dir cache: %w", err)
		}
		return c, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// readProofFile loads a detached proof file from path.
func readProofFile(path string) (*detachedfile.DetachedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open proof file: %w", err)
	}
	defer f.Close()

	df, err := detachedfile.Read(f)
	if err != nil {
		return nil, fmt.Errorf("read proof file: %w", err)
	}
	return df, nil
}

// writeProofFile atomically overwrites path with df's serialized form.
func writeProofFile(path string, df *detachedfile.DetachedFile) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create proof file: %w", err)
	}
	if err := df.Write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write proof file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close proof file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename proof file: %w", err)
	}
	return nil
}
