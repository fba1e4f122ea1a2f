// Package config provides configuration management using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/jobrunner/geoflow/internal/domain"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Datasets   DatasetsConfig   `mapstructure:"datasets"`
	Projection ProjectionConfig `mapstructure:"projection"`
	Registry   RegistryConfig   `mapstructure:"registry"`
	Events     EventsConfig     `mapstructure:"events"`
	Sync       SyncConfig       `mapstructure:"sync"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `mapstructure:"max_body_bytes"`
}

// StorageConfig holds the workflow definition storage configuration.
type StorageConfig struct {
	Type      string        `mapstructure:"type"` // s3, azure, http, local
	LocalPath string        `mapstructure:"local_path"`
	Watch     bool          `mapstructure:"watch"` // reload local workflow files on change
	Debounce  time.Duration `mapstructure:"debounce"`
	S3        S3Config      `mapstructure:"s3"`
	Azure     AzureConfig   `mapstructure:"azure"`
	HTTP      HTTPConfig    `mapstructure:"http"`
}

// S3Config holds AWS S3 configuration.
type S3Config struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Prefix          string `mapstructure:"prefix"`
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string `mapstructure:"container"`
	AccountName      string `mapstructure:"account_name"`
	AccountKey       string `mapstructure:"account_key"`
	ConnectionString string `mapstructure:"connection_string"`
	Prefix           string `mapstructure:"prefix"`
}

// HTTPConfig holds HTTP download configuration.
type HTTPConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	IndexFile string        `mapstructure:"index_file"`
	Timeout   time.Duration `mapstructure:"timeout"`
	Username  string        `mapstructure:"username"`
	Password  string        `mapstructure:"password"`
}

// EngineConfig holds query engine configuration.
type EngineConfig struct {
	TileSize            int           `mapstructure:"tile_size"` // pixels per tile edge
	ChunkByteSize       int           `mapstructure:"chunk_byte_size"`
	PrefetchBuffer      int           `mapstructure:"prefetch_buffer"`
	ExpressionCacheSize int           `mapstructure:"expression_cache_size"`
	QueryTimeout        time.Duration `mapstructure:"query_timeout"`
	MaxTiles            int           `mapstructure:"max_tiles"`
	MaxFeatures         int           `mapstructure:"max_features"`
}

// DatasetsConfig holds GeoPackage dataset configuration.
type DatasetsConfig struct {
	Directory string `mapstructure:"directory"` // empty disables vector datasets
	Watch     bool   `mapstructure:"watch"`
}

// Projection providers.
const (
	ProjectionBuiltin    = "builtin"
	ProjectionSpatiaLite = "spatialite"
)

// ProjectionConfig selects the coordinate transformer.
type ProjectionConfig struct {
	Provider string `mapstructure:"provider"` // builtin, spatialite
}

// RegistryConfig holds workflow persistence configuration.
type RegistryConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig holds Redis configuration. Persistence is disabled without an address.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// Enabled returns true if a Redis address is configured.
func (c *RedisConfig) Enabled() bool {
	return c.Address != ""
}

// EventsConfig holds Kafka workflow event configuration.
type EventsConfig struct {
	Enabled             bool     `mapstructure:"enabled"`
	Brokers             []string `mapstructure:"brokers"`
	Topic               string   `mapstructure:"topic"`
	GroupID             string   `mapstructure:"group_id"`
	InitialOffsetOldest bool     `mapstructure:"initial_offset_oldest"`
}

// SyncConfig holds periodic storage sync configuration.
type SyncConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	Namespace string `mapstructure:"namespace"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text, console
}

// Defaults sets the default configuration values.
func Defaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 90*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.max_body_bytes", 1<<20)

	// Storage defaults
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./workflows")
	v.SetDefault("storage.watch", false)
	v.SetDefault("storage.debounce", 500*time.Millisecond)
	v.SetDefault("storage.http.index_file", "index.txt")
	v.SetDefault("storage.http.timeout", 30*time.Second)

	v.SetDefault("engine.tile_size", 512)
	v.SetDefault("engine.chunk_byte_size", 1<<20)
	v.SetDefault("engine.prefetch_buffer", 1)
	v.SetDefault("engine.expression_cache_size", 128)
	v.SetDefault("engine.query_timeout", 60*time.Second)
	v.SetDefault("engine.max_tiles", 10000)
	v.SetDefault("engine.max_features", 100000)

	v.SetDefault("datasets.directory", "")
	v.SetDefault("datasets.watch", false)

	v.SetDefault("projection.provider", ProjectionBuiltin)

	v.SetDefault("registry.redis.prefix", "geoflow:")

	v.SetDefault("events.enabled", false)
	v.SetDefault("events.topic", "geoflow-workflows")
	v.SetDefault("events.group_id", "geoflow")
	v.SetDefault("events.initial_offset_oldest", true)

	v.SetDefault("sync.enabled", false)
	v.SetDefault("sync.interval", 5*time.Minute)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "geoflow")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Load loads configuration from environment and config file.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	Defaults(v)

	// GEOFLOW_SERVER_PORT overrides server.port
	v.SetEnvPrefix("GEOFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/geoflow")
	}

	// A missing config file is fine; defaults and env apply.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func invalid(field, message string, value any) error {
	if value != "" {
		message = fmt.Sprintf("%s (got %v)", message, value)
	}
	return &domain.ConfigError{Field: field, Message: message}
}

// Validate checks each section in turn and returns the first problem as a
// *domain.ConfigError.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateServer,
		c.Storage.validate,
		c.validateEngine,
		c.validateOptional,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port", "must be between 1 and 65535", c.Server.Port)
	}
	return nil
}

// required lists the settings a backend cannot work without, in reporting order.
type required struct {
	field, message string
	missing        bool
}

func (s *StorageConfig) validate() error {
	var needs []required
	switch s.Type {
	case "local":
		needs = []required{{"storage.local_path", "local storage path is required", s.LocalPath == ""}}
	case "s3":
		needs = []required{
			{"storage.s3.bucket", "S3 bucket is required", s.S3.Bucket == ""},
			{"storage.s3.region", "S3 region is required", s.S3.Region == ""},
		}
	case "azure":
		needs = []required{
			{"storage.azure.container", "azure container is required", s.Azure.Container == ""},
			{"storage.azure.account_name", "azure account name or connection string is required",
				s.Azure.AccountName == "" && s.Azure.ConnectionString == ""},
		}
	case "http":
		needs = []required{{"storage.http.base_url", "HTTP base URL is required", s.HTTP.BaseURL == ""}}
	default:
		return invalid("storage.type", "unknown storage type", s.Type)
	}
	for _, n := range needs {
		if n.missing {
			return invalid(n.field, n.message, "")
		}
	}

	if s.Watch && s.Type != "local" {
		return invalid("storage.watch", "watching requires local storage", s.Type)
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	switch {
	case e.TileSize < 1:
		return invalid("engine.tile_size", "must be positive", e.TileSize)
	case e.ChunkByteSize < 1:
		return invalid("engine.chunk_byte_size", "must be positive", e.ChunkByteSize)
	case e.PrefetchBuffer < 0:
		return invalid("engine.prefetch_buffer", "must not be negative", e.PrefetchBuffer)
	case e.ExpressionCacheSize < 1:
		return invalid("engine.expression_cache_size", "must be positive", e.ExpressionCacheSize)
	}

	if p := c.Projection.Provider; p != ProjectionBuiltin && p != ProjectionSpatiaLite {
		return invalid("projection.provider", "must be builtin or spatialite", p)
	}
	return nil
}

// validateOptional covers the features that are off by default.
func (c *Config) validateOptional() error {
	if c.Datasets.Watch && c.Datasets.Directory == "" {
		return invalid("datasets.watch", "watching requires a dataset directory", "")
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return invalid("events.brokers", "events enabled but no brokers specified", "")
	}
	if c.Events.Enabled && c.Events.Topic == "" {
		return invalid("events.topic", "events enabled but no topic specified", "")
	}
	if c.Sync.Enabled && c.Sync.Interval <= 0 {
		return invalid("sync.interval", "must be positive", c.Sync.Interval)
	}
	switch c.Logging.Format {
	case "json", "text", "console":
		return nil
	default:
		return invalid("logging.format", "must be json, text or console", c.Logging.Format)
	}
}

// Address returns the server address string.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
