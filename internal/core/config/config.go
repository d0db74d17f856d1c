// Package config provides configuration management for the beacon library.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds everything a Client needs to run. Host applications
// construct it directly or load it from file/env via Load.
type Config struct {
	// AppID is the application identifier used in the upload path,
	// e.g. "org-example-app".
	AppID string
	// AppBuild and AppDisplayVersion populate client_info.
	AppBuild          string
	AppDisplayVersion string
	// ServerEndpoint is the collector base URL, no trailing slash.
	ServerEndpoint string
	// DatabaseURL points at the local data store
	// (sqlite://path/beacon.db by default).
	DatabaseURL string
	// MaxPendingPings bounds the durable upload queue. When full the
	// oldest entries are evicted and an overflow error is recorded.
	MaxPendingPings int
	// UploadEnabled gates the scheduler. Recording continues either way.
	UploadEnabled bool
	// UploadTimeout bounds a single delivery attempt.
	UploadTimeout time.Duration
	// BackoffSeed is the first wait after a transient failure; the wait
	// doubles per consecutive failure up to BackoffCap.
	BackoffSeed time.Duration
	BackoffCap  time.Duration
	// DebugViewTag, when set, redirects uploads to the debug endpoint
	// and adds the X-Debug-ID header. Payloads are unchanged.
	DebugViewTag string
	// LogLevel is a logrus level name (debug, info, warn, error).
	LogLevel string
	// TestingMode switches the dispatcher to synchronous execution so
	// tests get read-after-write determinism. Never set in production.
	TestingMode bool
}

// Default returns a configuration with production defaults. AppID and
// ServerEndpoint have no sensible defaults and must be set by the host.
func Default() *Config {
	return &Config{
		DatabaseURL:     "sqlite://beacon.db",
		MaxPendingPings: 250,
		UploadEnabled:   true,
		UploadTimeout:   30 * time.Second,
		BackoffSeed:     30 * time.Second,
		BackoffCap:      10 * time.Minute,
		LogLevel:        "info",
	}
}

// Validate checks invariants the rest of the library relies on.
func (c *Config) Validate() error {
	if c.AppID == "" {
		return fmt.Errorf("app_id is required")
	}
	if strings.ContainsAny(c.AppID, "/ ") {
		return fmt.Errorf("app_id must not contain slashes or spaces, got %q", c.AppID)
	}
	if c.ServerEndpoint == "" {
		return fmt.Errorf("server_endpoint is required")
	}
	u, err := url.Parse(c.ServerEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("server_endpoint must be an absolute URL, got %q", c.ServerEndpoint)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if c.MaxPendingPings <= 0 {
		return fmt.Errorf("max_pending_pings must be positive, got %d", c.MaxPendingPings)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload_timeout must be positive, got %v", c.UploadTimeout)
	}
	if c.BackoffSeed <= 0 {
		return fmt.Errorf("backoff_seed must be positive, got %v", c.BackoffSeed)
	}
	if c.BackoffCap < c.BackoffSeed {
		return fmt.Errorf("backoff_cap must be >= backoff_seed, got %v < %v", c.BackoffCap, c.BackoffSeed)
	}
	return nil
}
