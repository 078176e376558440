// Package config loads the client's settings from defaults, an optional
// souschef.yaml, SOUSCHEF_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/illmade-knight/go-resourcesync/pkg/attachment"
	"github.com/illmade-knight/go-resourcesync/pkg/cache"
	"github.com/illmade-knight/go-resourcesync/pkg/credential"
	"github.com/illmade-knight/go-resourcesync/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SOUSCHEF"

	TokenStoreMemory = "memory"
	TokenStoreRedis  = "redis"
)

// Config is the complete client configuration.
type Config struct {
	LogLevel    string                 `mapstructure:"log_level"`
	API         transport.Config       `mapstructure:"api"`
	Auth        AuthConfig             `mapstructure:"auth"`
	Redis       credential.RedisConfig `mapstructure:"redis"`
	Cache       cache.Config           `mapstructure:"cache"`
	Events      EventsConfig           `mapstructure:"events"`
	Archive     ArchiveConfig          `mapstructure:"archive"`
	Attachments AttachmentsConfig      `mapstructure:"attachments"`
	Server      ServerConfig           `mapstructure:"server"`
}

// AuthConfig selects the credential source. A static token wins over a
// Firebase refresh token.
type AuthConfig struct {
	StaticToken    string `mapstructure:"static_token"`
	FirebaseAPIKey string `mapstructure:"firebase_api_key"`
	RefreshToken   string `mapstructure:"refresh_token"`
	TokenURL       string `mapstructure:"token_url"`
	// TokenStore is where refreshed ID tokens are kept: memory or redis.
	TokenStore string `mapstructure:"token_store"`
}

// EventsConfig enables publishing committed mutations to Pub/Sub.
type EventsConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	ProjectID     string        `mapstructure:"project_id"`
	TopicID       string        `mapstructure:"topic_id"`
	ResultTimeout time.Duration `mapstructure:"result_timeout"`
	// SubscriptionID, when set, makes serve apply mutations published by
	// other processes to its own cache.
	SubscriptionID string `mapstructure:"subscription_id"`
}

// ArchiveConfig enables archiving committed mutations to Cloud Storage, a
// BigQuery table, or both.
type ArchiveConfig struct {
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	BigQueryProject string        `mapstructure:"bigquery_project"`
	BigQueryDataset string        `mapstructure:"bigquery_dataset"`
	BigQueryTable   string        `mapstructure:"bigquery_table"`
	BatchSize       int           `mapstructure:"batch_size"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
}

// Enabled reports whether any archive sink is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Bucket != "" || a.BigQueryDataset != ""
}

type AttachmentsConfig struct {
	attachment.Config `mapstructure:",squash"`
	// EnableGCS allows gs:// references, using application default credentials.
	EnableGCS bool `mapstructure:"enable_gcs"`
}

type ServerConfig struct {
	HTTPPort string `mapstructure:"http_port"`
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"api-url":               "api.base_url",
	"token":                 "auth.static_token",
	"log-level":             "log_level",
	"http-port":             "server.http_port",
	"refetch-on-invalidate": "cache.refetch_on_invalidate",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.request_timeout", time.Duration(0))
	v.SetDefault("api.user_agent", transport.DefaultUserAgent)

	v.SetDefault("auth.static_token", "")
	v.SetDefault("auth.firebase_api_key", "")
	v.SetDefault("auth.refresh_token", "")
	v.SetDefault("auth.token_url", credential.DefaultSecureTokenURL)
	v.SetDefault("auth.token_store", TokenStoreMemory)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_ttl", time.Hour)

	v.SetDefault("cache.max_idle_entries", cache.DefaultConfig().MaxIdleEntries)
	v.SetDefault("cache.refetch_on_invalidate", false)

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.project_id", "")
	v.SetDefault("events.topic_id", "souschef-mutations")
	v.SetDefault("events.result_timeout", 10*time.Second)
	v.SetDefault("events.subscription_id", "")

	v.SetDefault("archive.bucket", "")
	v.SetDefault("archive.prefix", "mutations")
	v.SetDefault("archive.bigquery_project", "")
	v.SetDefault("archive.bigquery_dataset", "")
	v.SetDefault("archive.bigquery_table", "mutations")
	v.SetDefault("archive.batch_size", 100)
	v.SetDefault("archive.flush_interval", time.Minute)

	v.SetDefault("attachments.max_bytes", attachment.DefaultMaxBytes)
	v.SetDefault("attachments.enable_gcs", false)

	v.SetDefault("server.http_port", ":8080")
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file (default ./souschef.yaml when present)")
	fs.String("api-url", "", "base URL of the SousChef API")
	fs.String("token", "", "static bearer token")
	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("http-port", "", "listen address of the serve command")
	fs.Bool("refetch-on-invalidate", false, "refetch observed entries as soon as they are invalidated")
}

// Load builds the configuration. fs may be nil; otherwise it must have been
// prepared with RegisterFlags and parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile := ""
	if fs != nil {
		if f := fs.Lookup("config"); f != nil {
			configFile = f.Value.String()
		}
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("souschef")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/souschef")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			f := fs.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first inconsistent setting.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.RequestTimeout < 0 {
		return errors.New("api.request_timeout must not be negative")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.Auth.TokenStore {
	case TokenStoreMemory, TokenStoreRedis:
	default:
		return fmt.Errorf("auth.token_store must be %q or %q, got %q", TokenStoreMemory, TokenStoreRedis, c.Auth.TokenStore)
	}
	if c.Auth.RefreshToken != "" && c.Auth.FirebaseAPIKey == "" {
		return errors.New("auth.firebase_api_key is required with auth.refresh_token")
	}
	if c.Cache.MaxIdleEntries < 0 {
		return errors.New("cache.max_idle_entries must not be negative")
	}
	if c.Events.Enabled && (c.Events.ProjectID == "" || c.Events.TopicID == "") {
		return errors.New("events.project_id and events.topic_id are required when events are enabled")
	}
	if c.Archive.Enabled() && (c.Archive.BatchSize <= 0 || c.Archive.FlushInterval <= 0) {
		return errors.New("archive.batch_size and archive.flush_interval must be positive")
	}
	if c.Archive.BigQueryDataset != "" && (c.Archive.BigQueryProject == "" || c.Archive.BigQueryTable == "") {
		return errors.New("archive.bigquery_project and archive.bigquery_table are required with archive.bigquery_dataset")
	}
	if c.Attachments.MaxBytes <= 0 {
		return errors.New("attachments.max_bytes must be positive")
	}
	return nil
}

// Level returns the parsed log level, defaulting to info.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
