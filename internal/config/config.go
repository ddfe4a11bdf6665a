package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Store backends
const (
	StoreFile  = "file"
	StoreRedis = "redis"
	StoreNATS  = "nats"
)

// Event bus backends
const (
	EventsMemory = "memory"
	EventsRedis  = "redis"
	EventsNATS   = "nats"
)

// Config holds all configuration for the heart-rate relay
type Config struct {
	// Server configuration
	ListenAddress string `env:"HR_LISTEN_ADDRESS" envDefault:"localhost" validate:"required"`
	ListenPort    int    `env:"HR_LISTEN_PORT" envDefault:"2548" validate:"min=1,max=65535"`
	GRPCPort      int    `env:"HR_GRPC_PORT" envDefault:"0" validate:"min=0,max=65535"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`

	// Reading storage
	Store StoreConfig

	// Event distribution
	Events EventsConfig

	// Metrics
	Metrics MetricsConfig

	// Redis configuration, used only by the redis backends
	Redis RedisConfig

	// NATS configuration, used only by the nats backends
	NATS NATSConfig

	// Timeouts
	Timeouts TimeoutConfig
}

// StoreConfig selects and configures the reading store
type StoreConfig struct {
	Backend     string `env:"HR_STORE_BACKEND" envDefault:"file" validate:"oneof=file redis nats"`
	// FilePath is made absolute against the working directory at load time
	FilePath    string `env:"HR_FILE_PATH" envDefault:"heartrate.txt"`
	AtomicWrite bool   `env:"HR_ATOMIC_WRITE" envDefault:"false"`
}

// EventsConfig selects the event bus and the store watcher
type EventsConfig struct {
	Backend string `env:"HR_EVENTS_BACKEND" envDefault:"memory" validate:"oneof=memory redis nats"`
	// Watch uses store change notifications where the store supports them
	Watch bool `env:"HR_WATCH" envDefault:"true"`
	// WatchInterval polls stores without notifications. Zero disables polling.
	WatchInterval time.Duration `env:"HR_WATCH_INTERVAL" envDefault:"0s"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `env:"HR_METRICS_ENABLED" envDefault:"true"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr         string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password     string `env:"REDIS_PASS"`
	DB           int    `env:"REDIS_DB" envDefault:"0"`
	Key          string `env:"REDIS_KEY" envDefault:"hrrelay:bpm"`
	StreamPrefix string `env:"REDIS_STREAM_PREFIX" envDefault:"hrrelay:events:"`

	// Connection pool settings
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MaxRetries   int           `env:"REDIS_MAX_RETRIES" envDefault:"3"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// NATSConfig holds NATS connection configuration
type NATSConfig struct {
	URL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Bucket         string        `env:"NATS_BUCKET" envDefault:"hrrelay"`
	Key            string        `env:"NATS_KEY" envDefault:"bpm"`
	SubjectPrefix  string        `env:"NATS_SUBJECT_PREFIX" envDefault:"hrrelay.events."`
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" envDefault:"5s"`
}

// TimeoutConfig holds various timeout configurations
type TimeoutConfig struct {
	ReadHeaderTimeout time.Duration `env:"TIMEOUT_READ_HEADER" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"TIMEOUT_SHUTDOWN" envDefault:"10s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return parse(env.Options{})
}

// LoadFrom reads configuration from the given variables instead of the
// process environment
func LoadFrom(environment map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environment})
}

// LoadWithFile layers environment variables over the persisted config file
// at path. A missing file is created with defaults.
func LoadWithFile(path string) (*Config, error) {
	return LoadFromWithFile(path, environMap(os.Environ()))
}

// LoadFromWithFile is LoadWithFile with explicit variables
func LoadFromWithFile(path string, environment map[string]string) (*Config, error) {
	file, err := OpenFile(path)
	if err != nil {
		return nil, err
	}

	layered := file.environment(filepath.Dir(path))
	for k, v := range environment {
		layered[k] = v
	}

	return parse(env.Options{Environment: layered})
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if cfg.Store.FilePath != "" {
		abs, err := filepath.Abs(cfg.Store.FilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve file path %s: %w", cfg.Store.FilePath, err)
		}
		cfg.Store.FilePath = abs
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return fieldError(fieldErrs[0])
		}
		return err
	}

	if c.GRPCPort != 0 && c.GRPCPort == c.ListenPort {
		return fmt.Errorf("gRPC port %d collides with the listen port", c.GRPCPort)
	}

	if c.Store.Backend == StoreFile && c.Store.FilePath == "" {
		return fmt.Errorf("file path is required for the file store")
	}

	if c.Events.WatchInterval < 0 {
		return fmt.Errorf("watch interval must not be negative")
	}

	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.UsesNATS() {
		if c.NATS.URL == "" {
			return fmt.Errorf("nats url is required")
		}
		if c.Store.Backend == StoreNATS && c.NATS.Bucket == "" {
			return fmt.Errorf("nats bucket is required for the nats store")
		}
	}

	return nil
}

// fieldError turns a validation failure into a readable message
func fieldError(fe validator.FieldError) error {
	switch fe.StructNamespace() {
	case "Config.ListenAddress":
		return fmt.Errorf("listen address is required")
	case "Config.ListenPort":
		return fmt.Errorf("invalid listen port: %v", fe.Value())
	case "Config.GRPCPort":
		return fmt.Errorf("invalid gRPC port: %v", fe.Value())
	case "Config.LogLevel":
		return fmt.Errorf("invalid log level: %v (must be debug, info, warn, or error)", fe.Value())
	case "Config.Store.Backend":
		return fmt.Errorf("unsupported store backend: %v (must be file, redis, or nats)", fe.Value())
	case "Config.Events.Backend":
		return fmt.Errorf("unsupported events backend: %v (must be memory, redis, or nats)", fe.Value())
	default:
		return fmt.Errorf("invalid %s: %v (%s)", fe.Field(), fe.Value(), fe.Tag())
	}
}

// UsesRedis reports whether any backend needs a Redis connection
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == StoreRedis || c.Events.Backend == EventsRedis
}

// UsesNATS reports whether any backend needs a NATS connection
func (c *Config) UsesNATS() bool {
	return c.Store.Backend == StoreNATS || c.Events.Backend == EventsNATS
}

// GetHTTPAddr returns the HTTP listen address
func (c *Config) GetHTTPAddr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.ListenPort))
}

// GetBaseURL returns the URL clients use to reach the relay
func (c *Config) GetBaseURL() string {
	return "http://" + c.GetHTTPAddr() + "/"
}

// File returns the persisted subset of the configuration
func (c *Config) File() *File {
	return &File{
		FilePath:   c.Store.FilePath,
		ListenAddr: c.ListenAddress,
		ListenPort: strconv.Itoa(c.ListenPort),
	}
}

// GetGRPCAddr returns the gRPC listen address
func (c *Config) GetGRPCAddr() string {
	return net.JoinHostPort(c.ListenAddress, strconv.Itoa(c.GRPCPort))
}
