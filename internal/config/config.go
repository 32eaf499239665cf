// Package config loads budgetctl settings from a TOML file, an optional .env
// file and BUDGETCORE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBlob     = "blob"
)

// DefaultPath is the config file used when --config is not given.
const DefaultPath = "budgetcore.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "BUDGETCORE_"

// Config holds all budgetctl configuration.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
	Limits  LimitsConfig  `toml:"limits"`
}

// StorageConfig selects the persistence adapter.
type StorageConfig struct {
	Driver      string     `toml:"driver"`
	SQLitePath  string     `toml:"sqlite_path,omitempty"`
	PostgresDSN string     `toml:"postgres_dsn,omitempty"`
	Blob        BlobConfig `toml:"blob"`
}

// BlobConfig configures the blob-backed adapter.
type BlobConfig struct {
	Driver string   `toml:"driver"`
	FSRoot string   `toml:"fs_root,omitempty"`
	Prefix string   `toml:"prefix,omitempty"`
	S3     S3Config `toml:"s3"`
}

// S3Config configures the S3 blob driver. Credentials are normally left to
// the AWS default chain.
type S3Config struct {
	Bucket          string `toml:"bucket,omitempty"`
	Region          string `toml:"region,omitempty"`
	Endpoint        string `toml:"endpoint,omitempty"`
	PathStyle       bool   `toml:"path_style"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// MetricsConfig configures the Prometheus endpoint of serve-metrics.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LimitsConfig mirrors the validator thresholds.
type LimitsConfig struct {
	EditChangeLimit        float64  `toml:"edit_change_limit"`
	BalanceChangeLimit     float64  `toml:"balance_change_limit"`
	MaxPendingPerRequester int      `toml:"max_pending_per_requester"`
	MinBudgetYear          int      `toml:"min_budget_year"`
	ProtectedNames         []string `toml:"protected_names"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Storage: StorageConfig{
			Driver:     StorageSQLite,
			SQLitePath: "budgetcore.db",
			Blob:       BlobConfig{Driver: "fs", FSRoot: "./blobdata"},
		},
		Log:     LogConfig{Level: "info", Format: "console"},
		Metrics: MetricsConfig{Addr: ":9090"},
		Limits: LimitsConfig{
			EditChangeLimit:        0.25,
			BalanceChangeLimit:     0.10,
			MaxPendingPerRequester: 5,
			MinBudgetYear:          2000,
			ProtectedNames:         []string{"Defense", "Education", "Health"},
		},
	}
}

// Load reads path (DefaultPath when empty), returning defaults if the file
// does not exist. A .env file next to it is loaded into the process
// environment, then BUDGETCORE_* variables override file values.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := DefaultConfig()
	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("reading config: %w", err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Save writes cfg to path as TOML.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// Validate rejects unknown drivers and out-of-range limits.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite, StoragePostgres, StorageBlob:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == StorageBlob {
		switch c.Storage.Blob.Driver {
		case "fs", "s3", "memory":
		default:
			return fmt.Errorf("unknown blob driver %q", c.Storage.Blob.Driver)
		}
	}
	if c.Limits.EditChangeLimit < 0 || c.Limits.BalanceChangeLimit < 0 {
		return fmt.Errorf("change limits must not be negative")
	}
	if c.Limits.MaxPendingPerRequester < 0 {
		return fmt.Errorf("max_pending_per_requester must not be negative")
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// applyEnv overlays BUDGETCORE_* variables found by lookup.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := map[string]*string{
		"STORAGE_DRIVER":   &cfg.Storage.Driver,
		"SQLITE_PATH":      &cfg.Storage.SQLitePath,
		"POSTGRES_DSN":     &cfg.Storage.PostgresDSN,
		"BLOB_DRIVER":      &cfg.Storage.Blob.Driver,
		"BLOB_FS_ROOT":     &cfg.Storage.Blob.FSRoot,
		"BLOB_PREFIX":      &cfg.Storage.Blob.Prefix,
		"BLOB_S3_BUCKET":   &cfg.Storage.Blob.S3.Bucket,
		"BLOB_S3_REGION":   &cfg.Storage.Blob.S3.Region,
		"BLOB_S3_ENDPOINT": &cfg.Storage.Blob.S3.Endpoint,
		"LOG_LEVEL":        &cfg.Log.Level,
		"LOG_FORMAT":       &cfg.Log.Format,
		"METRICS_ADDR":     &cfg.Metrics.Addr,
	}
	for name, dst := range str {
		if v, ok := lookup(EnvPrefix + name); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	if v, ok := lookup(EnvPrefix + "BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sBLOB_S3_PATH_STYLE: %w", EnvPrefix, err)
		}
		cfg.Storage.Blob.S3.PathStyle = b
	}
	if v, ok := lookup(EnvPrefix + "MAX_PENDING_PER_REQUESTER"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_PENDING_PER_REQUESTER: %w", EnvPrefix, err)
		}
		cfg.Limits.MaxPendingPerRequester = n
	}
	return nil
}
