// Package config loads key-cache settings from defaults, an optional YAML
// file and KEYCACHE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// KEYCACHE_STORE_TYPE for store.type.
const EnvPrefix = "KEYCACHE"

// Store types.
const (
	StoreBolt   = "bolt"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Remote types.
const (
	RemoteHTTP        = "http"
	RemoteOnePassword = "onepassword"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Store   StoreConfig   `mapstructure:"store"`
	Remote  RemoteConfig  `mapstructure:"remote"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Address           string `mapstructure:"address"`
	AuthToken         string `mapstructure:"auth_token"`
	DefaultTTLMinutes int    `mapstructure:"default_ttl_minutes"`
}

// CacheConfig tunes the key cache.
type CacheConfig struct {
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// StoreConfig selects and configures the local store.
type StoreConfig struct {
	Type  string      `mapstructure:"type"` // "bolt", "redis" or "memory"
	Bolt  BoltConfig  `mapstructure:"bolt"`
	Redis RedisConfig `mapstructure:"redis"`
}

// BoltConfig configures the bbolt store.
type BoltConfig struct {
	Path   string `mapstructure:"path"`
	Bucket string `mapstructure:"bucket"`
}

// RedisConfig configures the Redis store.
type RedisConfig struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Prefix    string        `mapstructure:"prefix"`
	Retention time.Duration `mapstructure:"retention"`
}

// RemoteConfig selects and configures the remote provider.
type RemoteConfig struct {
	Type        string            `mapstructure:"type"` // "http" or "onepassword"
	HTTP        HTTPConfig        `mapstructure:"http"`
	OnePassword OnePasswordConfig `mapstructure:"onepassword"`
}

// HTTPConfig configures the HTTP key service provider.
type HTTPConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OnePasswordConfig configures the 1Password CLI provider.
type OnePasswordConfig struct {
	Reference string `mapstructure:"reference"`
	Binary    string `mapstructure:"binary"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	Prometheus    bool          `mapstructure:"prometheus"`
	OTLPEndpoint  string        `mapstructure:"otlp_endpoint"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth_token", "")
	v.SetDefault("server.default_ttl_minutes", 60)

	v.SetDefault("cache.fetch_timeout", 30*time.Second)

	v.SetDefault("store.type", StoreBolt)
	v.SetDefault("store.bolt.path", "./key-cache.db")
	v.SetDefault("store.bolt.bucket", "keys")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.password", "")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.redis.prefix", "key-cache:")
	v.SetDefault("store.redis.retention", time.Duration(0))

	v.SetDefault("remote.type", RemoteHTTP)
	v.SetDefault("remote.http.base_url", "")
	v.SetDefault("remote.http.token", "")
	v.SetDefault("remote.http.timeout", 30*time.Second)
	v.SetDefault("remote.onepassword.reference", "op://Private/{{ .Name }}/credential")
	v.SetDefault("remote.onepassword.binary", "op")

	v.SetDefault("metrics.prometheus", true)
	v.SetDefault("metrics.otlp_endpoint", "")
	v.SetDefault("metrics.flush_interval", 10*time.Second)
}

// Load reads configuration. When path is empty, key-cache.yaml is looked up
// in the working directory and /etc/key-cache; a missing file is not an
// error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("key-cache")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/key-cache")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Store.Type {
	case StoreBolt:
		if c.Store.Bolt.Path == "" {
			result = multierror.Append(result, errors.New("store.bolt.path is required"))
		}
	case StoreRedis:
		if c.Store.Redis.Addr == "" {
			result = multierror.Append(result, errors.New("store.redis.addr is required"))
		}
	case StoreMemory:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown store.type %q", c.Store.Type))
	}

	switch c.Remote.Type {
	case RemoteHTTP:
		if c.Remote.HTTP.BaseURL == "" {
			result = multierror.Append(result, errors.New("remote.http.base_url is required"))
		}
	case RemoteOnePassword:
	default:
		result = multierror.Append(result, fmt.Errorf("unknown remote.type %q", c.Remote.Type))
	}

	if c.Server.DefaultTTLMinutes <= 0 {
		result = multierror.Append(result, errors.New("server.default_ttl_minutes must be positive"))
	}
	if c.Cache.FetchTimeout < 0 {
		result = multierror.Append(result, errors.New("cache.fetch_timeout must not be negative"))
	}

	return result.ErrorOrNil()
}
