package config

import "time"

// DefaultJWTSecret is the placeholder secret written to fresh config files.
const DefaultJWTSecret = "change-me"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"` // console or json
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`

	Pool     PoolConfig     `mapstructure:"pool" yaml:"pool"`
	Platform PlatformConfig `mapstructure:"platform" yaml:"platform"`
	Events   EventsConfig   `mapstructure:"events" yaml:"events"`
	Admin    AdminConfig    `mapstructure:"admin" yaml:"admin"`
	Metrics  MetricsConfig  `mapstructure:"metrics" yaml:"metrics"`
}

// PoolConfig tunes room preparation.
type PoolConfig struct {
	OccupantRole    string        `mapstructure:"occupant_role" yaml:"occupant_role"`
	ChannelName     string        `mapstructure:"channel_name" yaml:"channel_name"`
	ResolveAttempts int           `mapstructure:"resolve_attempts" yaml:"resolve_attempts"`
	ResolveDelay    time.Duration `mapstructure:"resolve_delay" yaml:"resolve_delay"`
	// CheckoutTimeout bounds how long an HTTP checkout waits for a free room.
	CheckoutTimeout time.Duration `mapstructure:"checkout_timeout" yaml:"checkout_timeout"`
	// CleanupTimeout bounds room teardown, which outlives the request that started it.
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" yaml:"cleanup_timeout"`
}

// PlatformConfig selects the chat platform driver.
type PlatformConfig struct {
	Driver  string        `mapstructure:"driver" yaml:"driver"` // memory or livekit
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// LiveKitConfig configures the LiveKit driver.
type LiveKitConfig struct {
	URL         string `mapstructure:"url" yaml:"url"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	APISecret   string `mapstructure:"api_secret" yaml:"api_secret"`
	JoinBaseURL string `mapstructure:"join_base_url" yaml:"join_base_url"`
}

// EventsConfig configures membership event sources.
type EventsConfig struct {
	Redis RedisConfig `mapstructure:"redis" yaml:"redis"`
	// WebhookRateLimit caps member-join webhook calls per minute; 0 disables the cap.
	WebhookRateLimit int `mapstructure:"webhook_rate_limit" yaml:"webhook_rate_limit"`
}

// RedisConfig configures the Redis pub/sub event source.
type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	URL     string `mapstructure:"url" yaml:"url"`
	Channel string `mapstructure:"channel" yaml:"channel"`
}

// AdminConfig configures operator tokens for the admin API.
type AdminConfig struct {
	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Namespace string `mapstructure:"namespace" yaml:"namespace"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "roompool.db",
		Pool: PoolConfig{
			OccupantRole:    "occupant",
			ChannelName:     "private-chat",
			ResolveAttempts: 100,
			ResolveDelay:    5 * time.Second,
			CheckoutTimeout: 30 * time.Second,
			CleanupTimeout:  10 * time.Minute,
		},
		Platform: PlatformConfig{
			Driver:  "memory",
			BaseURL: "http://localhost:8080",
			LiveKit: LiveKitConfig{
				URL: "http://localhost:7880",
			},
		},
		Events: EventsConfig{
			Redis: RedisConfig{
				URL:     "redis://localhost:6379/0",
				Channel: "roompool:member_join",
			},
			WebhookRateLimit: 600,
		},
		Admin: AdminConfig{
			JWTSecret:   DefaultJWTSecret,
			JWTIssuer:   "roompool",
			JWTAudience: "roompool-admin",
			TokenTTL:    24 * time.Hour,
		},
		Metrics: MetricsConfig{
			Namespace: "roompool",
		},
	}
}

// UpdateFrom overwrites non-zero top-level values from other config into receiver.
// Used for command line overrides.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.Platform.Driver != "" {
		c.Platform.Driver = other.Platform.Driver
	}
}
