// Package config loads process configuration from defaults, an optional TOML
// file and environment overrides, in that order.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	pstrings "registrar/pkg/platform/strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// SQL drivers accepted for the postgres backend.
const (
	DriverPQ  = "postgres"
	DriverPGX = "pgx"
)

// Config is the full process configuration.
type Config struct {
	Server    Server
	Registry  Registry
	Store     Store
	Redis     RedisConfig
	Kafka     Kafka
	Auth      Auth
	RateLimit RateLimit
	Log       Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Registry holds the coordinator parameters.
type Registry struct {
	// MaxOwned may be 0, in which case every create is rejected.
	MaxOwned         int
	SequenceInterval time.Duration
	Genesis          time.Time
	// BeaconSecret is hex encoded. Empty means a random per-process key.
	BeaconSecret string
}

// Store selects the registry backend.
type Store struct {
	Backend     string
	DatabaseURL string
	Driver      string
}

// RedisConfig configures the optional Redis event stream.
type RedisConfig struct {
	URL          string
	Stream       string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka configures the optional Kafka event topic.
type Kafka struct {
	Brokers []string
	Topic   string
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// RateLimit bounds how many creates one account may issue per window.
// MintsPerWindow 0 disables the limit.
type RateLimit struct {
	MintsPerWindow int
	Window         time.Duration
}

// Log configures the process logger.
type Log struct {
	Level  string
	Format string
}

const (
	devSigningKey = "dev-secret-key-change-in-production"
	beaconKeySize = 32
)

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Registry: Registry{
			MaxOwned:         16,
			SequenceInterval: 6 * time.Second,
			Genesis:          time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		},
		Store: Store{Backend: StoreMemory, Driver: DriverPQ},
		Redis: RedisConfig{
			Stream:       "registrar:events",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{Topic: "registrar.events"},
		Auth: Auth{
			JWTSigningKey: devSigningKey,
			Issuer:        "registrar",
			Audience:      "registrar",
		},
		RateLimit: RateLimit{MintsPerWindow: 30, Window: time.Minute},
		Log:       Log{Level: "info", Format: "json"},
	}
}

// Load builds the configuration. The TOML file named by REGISTRAR_CONFIG is
// optional; environment variables win over it.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("REGISTRAR_CONFIG")); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type fileConfig struct {
	Addr             string   `toml:"addr"`
	ShutdownTimeout  string   `toml:"shutdown_timeout"`
	MaxOwned         int      `toml:"max_owned"`
	SequenceInterval string   `toml:"sequence_interval"`
	Genesis          string   `toml:"genesis"`
	BeaconSecret     string   `toml:"beacon_secret"`
	Store            string   `toml:"store"`
	DatabaseURL      string   `toml:"database_url"`
	PGDriver         string   `toml:"pg_driver"`
	RedisURL         string   `toml:"redis_url"`
	RedisStream      string   `toml:"redis_stream"`
	KafkaBrokers     []string `toml:"kafka_brokers"`
	KafkaTopic       string   `toml:"kafka_topic"`
	JWTSigningKey    string   `toml:"jwt_signing_key"`
	MintsPerWindow   int      `toml:"mints_per_window"`
	RateLimitWindow  string   `toml:"rate_limit_window"`
	LogLevel         string   `toml:"log_level"`
	LogFormat        string   `toml:"log_format"`
}

func (c *Config) applyFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config file: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("addr") {
		c.Server.Addr = strings.TrimSpace(raw.Addr)
	}
	if meta.IsDefined("shutdown_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownTimeout))
		if err != nil {
			return fmt.Errorf("parse shutdown_timeout: %w", err)
		}
		c.Server.ShutdownTimeout = d
	}
	if meta.IsDefined("max_owned") {
		c.Registry.MaxOwned = raw.MaxOwned
	}
	if meta.IsDefined("sequence_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.SequenceInterval))
		if err != nil {
			return fmt.Errorf("parse sequence_interval: %w", err)
		}
		c.Registry.SequenceInterval = d
	}
	if meta.IsDefined("genesis") {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(raw.Genesis))
		if err != nil {
			return fmt.Errorf("parse genesis: %w", err)
		}
		c.Registry.Genesis = t
	}
	if meta.IsDefined("beacon_secret") {
		c.Registry.BeaconSecret = strings.TrimSpace(raw.BeaconSecret)
	}
	if meta.IsDefined("store") {
		c.Store.Backend = strings.TrimSpace(raw.Store)
	}
	if meta.IsDefined("database_url") {
		c.Store.DatabaseURL = strings.TrimSpace(raw.DatabaseURL)
	}
	if meta.IsDefined("pg_driver") {
		c.Store.Driver = strings.TrimSpace(raw.PGDriver)
	}
	if meta.IsDefined("redis_url") {
		c.Redis.URL = strings.TrimSpace(raw.RedisURL)
	}
	if meta.IsDefined("redis_stream") {
		c.Redis.Stream = strings.TrimSpace(raw.RedisStream)
	}
	if meta.IsDefined("kafka_brokers") {
		c.Kafka.Brokers = pstrings.DedupeAndTrim(raw.KafkaBrokers)
	}
	if meta.IsDefined("kafka_topic") {
		c.Kafka.Topic = strings.TrimSpace(raw.KafkaTopic)
	}
	if meta.IsDefined("jwt_signing_key") {
		c.Auth.JWTSigningKey = raw.JWTSigningKey
	}
	if meta.IsDefined("mints_per_window") {
		c.RateLimit.MintsPerWindow = raw.MintsPerWindow
	}
	if meta.IsDefined("rate_limit_window") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.RateLimitWindow))
		if err != nil {
			return fmt.Errorf("parse rate_limit_window: %w", err)
		}
		c.RateLimit.Window = d
	}
	if meta.IsDefined("log_level") {
		c.Log.Level = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("log_format") {
		c.Log.Format = strings.TrimSpace(raw.LogFormat)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	str("REGISTRAR_ADDR", &c.Server.Addr)
	str("REGISTRAR_STORE", &c.Store.Backend)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("REGISTRAR_PG_DRIVER", &c.Store.Driver)
	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_STREAM", &c.Redis.Stream)
	str("KAFKA_TOPIC", &c.Kafka.Topic)
	str("JWT_SIGNING_KEY", &c.Auth.JWTSigningKey)
	str("BEACON_SECRET", &c.Registry.BeaconSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("KAFKA_BROKERS"); ok && strings.TrimSpace(v) != "" {
		c.Kafka.Brokers = pstrings.SplitList(v, ",")
	}
	if v, ok := lookup("REGISTRAR_MAX_OWNED"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse REGISTRAR_MAX_OWNED: %w", err)
		}
		c.Registry.MaxOwned = n
	}
	if v, ok := lookup("REGISTRAR_MINTS_PER_WINDOW"); ok && strings.TrimSpace(v) != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse REGISTRAR_MINTS_PER_WINDOW: %w", err)
		}
		c.RateLimit.MintsPerWindow = n
	}
	if v, ok := lookup("SEQUENCE_INTERVAL"); ok && strings.TrimSpace(v) != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse SEQUENCE_INTERVAL: %w", err)
		}
		c.Registry.SequenceInterval = d
	}
	return nil
}

// Validate rejects configurations the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Registry.MaxOwned < 0 {
		errs = append(errs, errors.New("max_owned must not be negative"))
	}
	if c.Registry.SequenceInterval <= 0 {
		errs = append(errs, errors.New("sequence_interval must be positive"))
	}
	if c.Registry.BeaconSecret != "" {
		if _, err := c.BeaconKey(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Store.Backend {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, errors.New("postgres store requires DATABASE_URL"))
		}
		if c.Store.Driver != DriverPQ && c.Store.Driver != DriverPGX {
			errs = append(errs, fmt.Errorf("unknown postgres driver %q", c.Store.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store backend %q", c.Store.Backend))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}
	if c.RateLimit.MintsPerWindow > 0 && c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit_window must be positive"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("jwt signing key is required"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// BeaconKey decodes the configured beacon secret. A nil key with a nil error
// means no secret was configured.
func (c Config) BeaconKey() ([]byte, error) {
	if c.Registry.BeaconSecret == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.Registry.BeaconSecret)
	if err != nil {
		return nil, fmt.Errorf("beacon secret must be hex encoded: %w", err)
	}
	if len(key) != beaconKeySize {
		return nil, fmt.Errorf("beacon secret must decode to %d bytes, got %d", beaconKeySize, len(key))
	}
	return key, nil
}

// UsesDevSigningKey reports whether the built-in development key is in use.
func (c Config) UsesDevSigningKey() bool {
	return c.Auth.JWTSigningKey == devSigningKey
}
