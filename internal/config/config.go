// Package config loads the pipeline's environment-variable configuration
// once at process start, failing fast on missing required values per
// spec.md §6.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/nostrmigrate/corepipe/internal/osutil"
)

// Config is the immutable, validated process configuration.
type Config struct {
	BlossomServer      string
	Relays             []string
	PrimalCacheURL     string // empty disables the Cache Importer (C4)
	Concurrency        int
	MaxRetries         int
	PollInterval       time.Duration
	DatabasePath       string
	BackendURL         string
	BaseURL            string
	CleanupInterval    time.Duration
	RetentionWindow    time.Duration
	MaxUploadAttempts  int
}

// Load reads Config from the process environment, applying the defaults
// documented in spec.md §6/§4.11/§4.9. BLOSSOM_SERVER and NOSTR_RELAYS
// missing is a fatal error, matching spec.md §6 exactly.
func Load() (Config, error) {
	cfg := Config{
		Concurrency:       3,
		MaxRetries:        3,
		PollInterval:      5 * time.Second,
		DatabasePath:      filepath.Join(osutil.CacheDir(), "migrate.db"),
		CleanupInterval:   time.Hour,
		RetentionWindow:   7 * 24 * time.Hour,
		MaxUploadAttempts: 5,
	}

	cfg.BlossomServer = strings.TrimRight(os.Getenv("BLOSSOM_SERVER"), "/")
	if cfg.BlossomServer == "" {
		return Config{}, fmt.Errorf("config: BLOSSOM_SERVER is required")
	}

	relaysRaw := os.Getenv("NOSTR_RELAYS")
	if strings.TrimSpace(relaysRaw) == "" {
		return Config{}, fmt.Errorf("config: NOSTR_RELAYS is required")
	}
	for _, r := range strings.Split(relaysRaw, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			cfg.Relays = append(cfg.Relays, r)
		}
	}
	if len(cfg.Relays) == 0 {
		return Config{}, fmt.Errorf("config: NOSTR_RELAYS contained no usable entries")
	}

	cfg.PrimalCacheURL = os.Getenv("PRIMAL_CACHE_URL")

	if v := os.Getenv("CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.Concurrency = n
	}

	if v := os.Getenv("MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("config: MAX_RETRIES must be a non-negative integer, got %q", v)
		}
		cfg.MaxRetries = n
	}

	if v := os.Getenv("POLL_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, fmt.Errorf("config: POLL_INTERVAL must be a positive integer (seconds), got %q", v)
		}
		cfg.PollInterval = time.Duration(n) * time.Second
	}

	if v := os.Getenv("DATABASE_PATH"); v != "" {
		cfg.DatabasePath = v
	}

	cfg.BackendURL = os.Getenv("BACKEND_URL")
	cfg.BaseURL = os.Getenv("BASE_URL")

	return cfg, nil
}
