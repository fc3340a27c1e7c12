package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Sync       SyncConfig       `yaml:"sync"`
	Remote     RemoteConfig     `yaml:"remote"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// SyncConfig holds the reconciliation engine timing knobs.
type SyncConfig struct {
	DrainIntervalSeconds int           `yaml:"drain_interval_seconds"`
	DrainInterval        time.Duration `yaml:"-"` // Ignored by YAML parser
	RemoteTimeoutSeconds int           `yaml:"remote_timeout_seconds"`
	RemoteTimeout        time.Duration `yaml:"-"` // Ignored by YAML parser
	DrainAttempts        uint          `yaml:"drain_attempts"`
}

// RemoteConfig holds the first-run remote identity. It only seeds the
// settings singleton on a fresh cache; afterwards the operator-editable
// settings are authoritative.
type RemoteConfig struct {
	Endpoint string `yaml:"endpoint"`
	Key      string `yaml:"key"`
}

// CacheConfig holds the local cache database connection configuration.
type CacheConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Cache.DSN == "" {
		cfg.Cache.DSN = "loomtrack.db"
	}

	if cfg.Sync.DrainIntervalSeconds <= 0 {
		cfg.Sync.DrainIntervalSeconds = 15
	}
	cfg.Sync.DrainInterval = time.Duration(cfg.Sync.DrainIntervalSeconds) * time.Second

	if cfg.Sync.RemoteTimeoutSeconds <= 0 {
		cfg.Sync.RemoteTimeoutSeconds = 15
	}
	cfg.Sync.RemoteTimeout = time.Duration(cfg.Sync.RemoteTimeoutSeconds) * time.Second

	if cfg.Sync.DrainAttempts == 0 {
		cfg.Sync.DrainAttempts = 3
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
