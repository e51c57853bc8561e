package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "ROOMPOOL"
	envConfigDefaultPath = "ROOMPOOL_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
// Nested keys map to env vars with dots replaced, e.g. ROOMPOOL_POOL_CHANNEL_NAME.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so AutomaticEnv can override keys missing from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("database_path", cfg.DatabasePath)

	v.SetDefault("pool.occupant_role", cfg.Pool.OccupantRole)
	v.SetDefault("pool.channel_name", cfg.Pool.ChannelName)
	v.SetDefault("pool.resolve_attempts", cfg.Pool.ResolveAttempts)
	v.SetDefault("pool.resolve_delay", cfg.Pool.ResolveDelay)
	v.SetDefault("pool.checkout_timeout", cfg.Pool.CheckoutTimeout)
	v.SetDefault("pool.cleanup_timeout", cfg.Pool.CleanupTimeout)

	v.SetDefault("platform.driver", cfg.Platform.Driver)
	v.SetDefault("platform.base_url", cfg.Platform.BaseURL)
	v.SetDefault("platform.livekit.url", cfg.Platform.LiveKit.URL)
	v.SetDefault("platform.livekit.api_key", cfg.Platform.LiveKit.APIKey)
	v.SetDefault("platform.livekit.api_secret", cfg.Platform.LiveKit.APISecret)
	v.SetDefault("platform.livekit.join_base_url", cfg.Platform.LiveKit.JoinBaseURL)

	v.SetDefault("events.redis.enabled", cfg.Events.Redis.Enabled)
	v.SetDefault("events.redis.url", cfg.Events.Redis.URL)
	v.SetDefault("events.redis.channel", cfg.Events.Redis.Channel)
	v.SetDefault("events.webhook_rate_limit", cfg.Events.WebhookRateLimit)

	v.SetDefault("admin.jwt_secret", cfg.Admin.JWTSecret)
	v.SetDefault("admin.jwt_issuer", cfg.Admin.JWTIssuer)
	v.SetDefault("admin.jwt_audience", cfg.Admin.JWTAudience)
	v.SetDefault("admin.token_ttl", cfg.Admin.TokenTTL)

	v.SetDefault("metrics.namespace", cfg.Metrics.Namespace)
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	switch c.Platform.Driver {
	case "memory":
	case "livekit":
		lk := c.Platform.LiveKit
		if lk.URL == "" || lk.APIKey == "" || lk.APISecret == "" {
			return errors.New("platform.livekit requires url, api_key and api_secret")
		}
	default:
		return fmt.Errorf("unknown platform driver %q", c.Platform.Driver)
	}
	if c.Pool.ResolveAttempts < 1 {
		return errors.New("pool.resolve_attempts must be at least 1")
	}
	if c.Events.Redis.Enabled && c.Events.Redis.URL == "" {
		return errors.New("events.redis.url is required when redis events are enabled")
	}
	return nil
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
