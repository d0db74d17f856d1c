package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file plus environment.
// Precedence: environment > config file > defaults. Environment
// variables use the BEACON_ prefix with underscores for dots, e.g.
// BEACON_TELEMETRY_SERVER_ENDPOINT.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("telemetry.database_url", def.DatabaseURL)
	v.SetDefault("telemetry.max_pending_pings", def.MaxPendingPings)
	v.SetDefault("telemetry.upload_enabled", def.UploadEnabled)
	v.SetDefault("telemetry.upload_timeout", "30s")
	v.SetDefault("telemetry.backoff_seed", "30s")
	v.SetDefault("telemetry.backoff_cap", "10m")
	v.SetDefault("telemetry.log_level", def.LogLevel)

	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		AppID:             v.GetString("telemetry.app_id"),
		AppBuild:          v.GetString("telemetry.app_build"),
		AppDisplayVersion: v.GetString("telemetry.app_display_version"),
		ServerEndpoint:    v.GetString("telemetry.server_endpoint"),
		DatabaseURL:       v.GetString("telemetry.database_url"),
		MaxPendingPings:   v.GetInt("telemetry.max_pending_pings"),
		UploadEnabled:     v.GetBool("telemetry.upload_enabled"),
		UploadTimeout:     v.GetDuration("telemetry.upload_timeout"),
		BackoffSeed:       v.GetDuration("telemetry.backoff_seed"),
		BackoffCap:        v.GetDuration("telemetry.backoff_cap"),
		DebugViewTag:      v.GetString("telemetry.debug_view_tag"),
		LogLevel:          v.GetString("telemetry.log_level"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
