// Package config provides unified configuration for the segment store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the unified configuration for the segment store binary.
type Config struct {
	// DataDir is the base directory for all local data files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Store    StoreConfig    `json:"store" yaml:"store"`
	Metadata MetadataConfig `json:"metadata" yaml:"metadata"`
	Flush    FlushConfig    `json:"flush" yaml:"flush"`
	WAL      WALConfig      `json:"wal" yaml:"wal"`
	Router   RouterConfig   `json:"router" yaml:"router"`
	GRPC     GRPCConfig     `json:"grpc" yaml:"grpc"`
}

// StoreConfig configures the persistent-store collaborator.
type StoreConfig struct {
	// Type selects the PersistentStore backend: "local" or "s3".
	Type string `json:"type" yaml:"type"`

	// Path is the local storage root (for type "local").
	Path string `json:"path" yaml:"path"`

	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config configures the S3-backed persistent store.
type S3Config struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// MetadataConfig configures the SQLite-backed schema/metadata store.
type MetadataConfig struct {
	// DBPath is the SQLite file path.
	DBPath string `json:"db_path" yaml:"db_path"`
}

// FlushConfig holds flush-attempt settings. The flush protocol itself has no
// automatic retry — it's the caller's responsibility. MaxRetries is loaded
// and validated, but no code in this module reads it: the flush-demo mode and
// the gRPC/HTTP Flush each run a single Attempt.
type FlushConfig struct {
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// WALConfig configures write-ahead staging ahead of a flush attempt.
type WALConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Dir is the WAL segment directory.
	Dir string `json:"dir" yaml:"dir"`

	// SegmentMaxBytes bounds a single WAL segment file's size before rotation.
	SegmentMaxBytes int64 `json:"segment_max_bytes" yaml:"segment_max_bytes"`
}

// RouterConfig configures partition routing.
type RouterConfig struct {
	PartitionColumn     string `json:"partition_column" yaml:"partition_column"`
	DefaultPartitionKey string `json:"default_partition_key" yaml:"default_partition_key"`
}

// GRPCConfig configures the gRPC facade.
type GRPCConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Enabled      bool          `json:"enabled" yaml:"enabled"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data/segmentstore",
		Store: StoreConfig{
			Type: "local",
		},
		Flush: FlushConfig{
			MaxRetries: 5,
		},
		WAL: WALConfig{
			Enabled:         true,
			SegmentMaxBytes: 64 * 1024 * 1024,
		},
		GRPC: GRPCConfig{
			Addr:         ":9191",
			Enabled:      true,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}
}

// Resolve fills in DataDir-relative defaults for unset paths.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/segmentstore"
	}
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(c.DataDir, "store")
	}
	if c.Metadata.DBPath == "" {
		c.Metadata.DBPath = filepath.Join(c.DataDir, "metastore.db")
	}
	if c.WAL.Dir == "" {
		c.WAL.Dir = filepath.Join(c.DataDir, "wal")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Store.Type != "local" && c.Store.Type != "s3" {
		return fmt.Errorf("invalid store type: %s (must be local or s3)", c.Store.Type)
	}
	if c.Store.Type == "s3" && c.Store.S3.Bucket == "" {
		return fmt.Errorf("store.s3.bucket is required when store.type is s3")
	}
	if c.Flush.MaxRetries < 0 {
		return fmt.Errorf("flush.max_retries must be >= 0, got %d", c.Flush.MaxRetries)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML or JSON file, starting from
// DefaultConfig so any field the file omits keeps its default.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("config: unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment if present, for
// LoadFromEnv to pick up afterward. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFromEnv overlays environment variables (SEGMENTSTORE_ prefix) onto cfg.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SEGMENTSTORE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SEGMENTSTORE_STORE_TYPE"); v != "" {
		cfg.Store.Type = v
	}
	if v := os.Getenv("SEGMENTSTORE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("SEGMENTSTORE_S3_BUCKET"); v != "" {
		cfg.Store.S3.Bucket = v
	}
	if v := os.Getenv("SEGMENTSTORE_S3_REGION"); v != "" {
		cfg.Store.S3.Region = v
	}
	if v := os.Getenv("SEGMENTSTORE_S3_ENDPOINT"); v != "" {
		cfg.Store.S3.Endpoint = v
	}
	if v := os.Getenv("SEGMENTSTORE_METADATA_DB_PATH"); v != "" {
		cfg.Metadata.DBPath = v
	}
	if v := os.Getenv("SEGMENTSTORE_WAL_ENABLED"); v != "" {
		cfg.WAL.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SEGMENTSTORE_WAL_DIR"); v != "" {
		cfg.WAL.Dir = v
	}
	if v := os.Getenv("SEGMENTSTORE_ROUTER_PARTITION_COLUMN"); v != "" {
		cfg.Router.PartitionColumn = v
	}
	if v := os.Getenv("SEGMENTSTORE_ROUTER_DEFAULT_PARTITION_KEY"); v != "" {
		cfg.Router.DefaultPartitionKey = v
	}
	if v := os.Getenv("SEGMENTSTORE_GRPC_ADDR"); v != "" {
		cfg.GRPC.Addr = v
	}
	if v := os.Getenv("SEGMENTSTORE_GRPC_ENABLED"); v != "" {
		cfg.GRPC.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("SEGMENTSTORE_FLUSH_MAX_RETRIES"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Flush.MaxRetries)
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Store.Type == "local" {
		dirs = append(dirs, c.Store.Path)
	}
	if c.WAL.Enabled {
		dirs = append(dirs, c.WAL.Dir)
	}
	dirs = append(dirs, filepath.Dir(c.Metadata.DBPath))

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("config: failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
