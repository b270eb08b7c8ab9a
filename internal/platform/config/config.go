// Package config loads server configuration: built-in defaults, then an
// optional TOML file, then RENTGUARD_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	pstrings "rentguard/pkg/platform/strings"
)

const envPrefix = "RENTGUARD_"

// Provider timeouts outside this range are clamped.
const (
	MinProviderTimeout = 5 * time.Second
	MaxProviderTimeout = 10 * time.Second
)

// Duration decodes TOML strings like "8s".
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

type Config struct {
	Server    Server    `toml:"server"`
	Log       Log       `toml:"log"`
	Store     Store     `toml:"store"`
	Redis     Redis     `toml:"redis"`
	Kafka     Kafka     `toml:"kafka"`
	Providers Providers `toml:"providers"`
	Booking   Booking   `toml:"booking"`
	Ledger    Ledger    `toml:"ledger"`
	Signing   Signing   `toml:"signing"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string   `toml:"addr"`
	ShutdownTimeout Duration `toml:"shutdown_timeout"`
}

type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	// File enables a rotating log file instead of stdout.
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type Store struct {
	Driver string `toml:"driver"`
	// DSN is the Postgres connection string.
	DSN string `toml:"dsn"`
	// Path is the LevelDB directory.
	Path string `toml:"path"`
}

type Redis struct {
	URL          string   `toml:"url"`
	PoolSize     int      `toml:"pool_size"`
	DialTimeout  Duration `toml:"dial_timeout"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type Kafka struct {
	Brokers []string `toml:"brokers"`
	Topic   string   `toml:"topic"`
}

type Providers struct {
	// Mode is "local" (in-process kernels) or "remote" (verification node).
	Mode            string   `toml:"mode"`
	NodeURL         string   `toml:"node_url"`
	NodeJWTSecret   string   `toml:"node_jwt_secret"`
	Timeout         Duration `toml:"timeout"`
	RetryBackoff    Duration `toml:"retry_backoff"`
	RateLimit       float64  `toml:"rate_limit"`
	RateBurst       int      `toml:"rate_burst"`
	BreakerFailures int      `toml:"breaker_failures"`
	BreakerCooldown Duration `toml:"breaker_cooldown"`
	// DegradedAllowed lists proof kinds for which fallback proofs are accepted.
	DegradedAllowed []string `toml:"degraded_allowed"`
}

type Booking struct {
	DisputeWindow  Duration `toml:"dispute_window"`
	PendingTimeout Duration `toml:"pending_timeout"`
	SweepInterval  Duration `toml:"sweep_interval"`
	// CatalogFile is a TOML file of [[listing]] entries.
	CatalogFile string `toml:"catalog_file"`
}

type Ledger struct {
	RPCURL     string   `toml:"rpc_url"`
	RPCToken   string   `toml:"rpc_token"`
	Timeout    Duration `toml:"timeout"`
	JournalTTL Duration `toml:"journal_ttl"`
}

type Signing struct {
	// KeyHex is the secp256k1 key of the local verification kernels.
	KeyHex         string   `toml:"key_hex"`
	TrustedIssuers []string `toml:"trusted_issuers"`
	// FallbackSeed derives the key that signs degraded proofs.
	FallbackSeed string `toml:"fallback_seed"`
}

// Default returns a configuration that runs a single in-memory node.
func Default() Config {
	return Config{
		Server: Server{Addr: ":8080", ShutdownTimeout: Duration{10 * time.Second}},
		Log:    Log{Level: "info", Format: "json", MaxSizeMB: 100, MaxBackups: 5},
		Store:  Store{Driver: "memory", Path: "data/bookings"},
		Redis: Redis{
			PoolSize:     10,
			DialTimeout:  Duration{5 * time.Second},
			ReadTimeout:  Duration{3 * time.Second},
			WriteTimeout: Duration{3 * time.Second},
		},
		Kafka: Kafka{Topic: "rentguard.booking.audit"},
		Providers: Providers{
			Mode:            "local",
			Timeout:         Duration{8 * time.Second},
			RetryBackoff:    Duration{200 * time.Millisecond},
			RateLimit:       20,
			RateBurst:       40,
			BreakerFailures: 5,
			BreakerCooldown: Duration{30 * time.Second},
		},
		Booking: Booking{
			DisputeWindow:  Duration{48 * time.Hour},
			PendingTimeout: Duration{2 * time.Minute},
			SweepInterval:  Duration{time.Minute},
		},
		Ledger: Ledger{
			Timeout:    Duration{10 * time.Second},
			JournalTTL: Duration{30 * 24 * time.Hour},
		},
		Signing: Signing{FallbackSeed: "rentguard-dev-fallback-seed"},
	}
}

// Load reads path (when non-empty) over the defaults and applies
// environment overrides. A missing file is an error; an empty path is not.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		meta, err := toml.DecodeFile(path, &cfg)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("config %s: unknown keys %v", path, undecoded)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.Providers.Timeout.Duration = ClampProviderTimeout(c.Providers.Timeout.Duration)
	c.Kafka.Brokers = pstrings.Dedupe(c.Kafka.Brokers, nil)
	c.Providers.DegradedAllowed = pstrings.Dedupe(c.Providers.DegradedAllowed, strings.ToLower)
	c.Signing.TrustedIssuers = pstrings.Dedupe(c.Signing.TrustedIssuers, strings.ToLower)
}

func ClampProviderTimeout(d time.Duration) time.Duration {
	return min(max(d, MinProviderTimeout), MaxProviderTimeout)
}

func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case "memory":
	case "leveldb":
		if c.Store.Path == "" {
			errs = append(errs, errors.New("store.path is required for leveldb"))
		}
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	switch c.Providers.Mode {
	case "local":
	case "remote":
		if c.Providers.NodeURL == "" {
			errs = append(errs, errors.New("providers.node_url is required in remote mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider mode %q", c.Providers.Mode))
	}
	if c.Booking.DisputeWindow.Duration < 0 {
		errs = append(errs, errors.New("booking.dispute_window must not be negative"))
	}
	if c.Signing.FallbackSeed == "" {
		errs = append(errs, errors.New("signing.fallback_seed is required"))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	strs := map[string]*string{
		"ADDR":             &cfg.Server.Addr,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FORMAT":       &cfg.Log.Format,
		"LOG_FILE":         &cfg.Log.File,
		"STORE_DRIVER":     &cfg.Store.Driver,
		"STORE_DSN":        &cfg.Store.DSN,
		"STORE_PATH":       &cfg.Store.Path,
		"REDIS_URL":        &cfg.Redis.URL,
		"KAFKA_TOPIC":      &cfg.Kafka.Topic,
		"PROVIDER_MODE":    &cfg.Providers.Mode,
		"NODE_URL":         &cfg.Providers.NodeURL,
		"NODE_JWT_SECRET":  &cfg.Providers.NodeJWTSecret,
		"CATALOG_FILE":     &cfg.Booking.CatalogFile,
		"LEDGER_RPC_URL":   &cfg.Ledger.RPCURL,
		"LEDGER_RPC_TOKEN": &cfg.Ledger.RPCToken,
		"SIGNING_KEY_HEX":  &cfg.Signing.KeyHex,
		"FALLBACK_SEED":    &cfg.Signing.FallbackSeed,
	}
	for name, dst := range strs {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	lists := map[string]*[]string{
		"KAFKA_BROKERS":    &cfg.Kafka.Brokers,
		"DEGRADED_ALLOWED": &cfg.Providers.DegradedAllowed,
		"TRUSTED_ISSUERS":  &cfg.Signing.TrustedIssuers,
	}
	for name, dst := range lists {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = pstrings.SplitList(v, nil)
		}
	}

	durations := map[string]*Duration{
		"PROVIDER_TIMEOUT": &cfg.Providers.Timeout,
		"RETRY_BACKOFF":    &cfg.Providers.RetryBackoff,
		"BREAKER_COOLDOWN": &cfg.Providers.BreakerCooldown,
		"DISPUTE_WINDOW":   &cfg.Booking.DisputeWindow,
		"PENDING_TIMEOUT":  &cfg.Booking.PendingTimeout,
		"SWEEP_INTERVAL":   &cfg.Booking.SweepInterval,
		"LEDGER_TIMEOUT":   &cfg.Ledger.Timeout,
		"SHUTDOWN_TIMEOUT": &cfg.Server.ShutdownTimeout,
	}
	var errs []error
	for name, dst := range durations {
		v, ok := lookup(envPrefix + name)
		if !ok {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, name, err))
			continue
		}
		dst.Duration = d
	}

	if v, ok := lookup(envPrefix + "RATE_LIMIT"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sRATE_LIMIT: %w", envPrefix, err))
		} else {
			cfg.Providers.RateLimit = f
		}
	}
	if v, ok := lookup(envPrefix + "BREAKER_FAILURES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sBREAKER_FAILURES: %w", envPrefix, err))
		} else {
			cfg.Providers.BreakerFailures = n
		}
	}
	return errors.Join(errs...)
}
