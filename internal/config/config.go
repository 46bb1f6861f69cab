// Package config provides configuration for the streamhouse service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sherrors "github.com/streamhouse/streamhouse/internal/errors"
	"github.com/streamhouse/streamhouse/pkg/types"
)

// EnvPrefix is the prefix of every environment variable read by LoadFromEnv.
const EnvPrefix = "STREAMHOUSE_"

// Default schedules. The dev profile registers every minute so that new
// partitions become queryable quickly while iterating.
const (
	DefaultSchedule = "rate(1 hour)"
	DevSchedule     = "rate(1 minute)"
)

// Config holds the configuration of one warehouse deployment.
type Config struct {
	// Stage selects per-stage values such as shard counts
	Stage string `json:"stage" yaml:"stage"`

	// Dev switches to the fast development schedule
	Dev bool `json:"dev" yaml:"dev"`

	// Database is the catalog database name
	Database string `json:"database" yaml:"database"`

	// Region is the AWS region for the catalog and storage
	Region string `json:"region" yaml:"region"`

	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	Storage   StorageConfig   `json:"storage" yaml:"storage"`
	Catalog   CatalogConfig   `json:"catalog" yaml:"catalog"`
	Registrar RegistrarConfig `json:"registrar" yaml:"registrar"`
	HTTP      HTTPConfig      `json:"http" yaml:"http"`
	Delivery  DeliveryConfig  `json:"delivery" yaml:"delivery"`

	// Tables declared in the warehouse
	Tables []TableConfig `json:"tables" yaml:"tables"`
}

// StorageConfig holds storage configuration.
type StorageConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage directory (for local type)
	Path string `json:"path" yaml:"path"`

	// Root is the storage root URI. Derived from Path or S3.Bucket when empty.
	Root string `json:"root" yaml:"root"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 storage configuration.
type S3Config struct {
	Bucket string `json:"bucket" yaml:"bucket"`
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
}

// CatalogConfig holds query catalog configuration.
type CatalogConfig struct {
	// Type is the catalog type: athena, sqlite
	Type string `json:"type" yaml:"type"`

	// Path is the SQLite catalog file (for sqlite type)
	Path string `json:"path" yaml:"path"`

	// ResultsLocation is where Athena stages statement results
	ResultsLocation string `json:"results_location" yaml:"results_location"`

	WorkGroup    string        `json:"work_group" yaml:"work_group"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`

	// Timeout bounds each statement submission
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// RegistrarConfig holds the defaults applied to every streaming table.
type RegistrarConfig struct {
	// Schedule is the tick schedule; empty picks DefaultSchedule or DevSchedule
	Schedule string `json:"schedule" yaml:"schedule"`

	// Window is the number of hours registered ahead of each tick
	Window int `json:"window" yaml:"window"`

	// PartitionKey is the partition column name
	PartitionKey string `json:"partition_key" yaml:"partition_key"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	// Addr is the health and trigger endpoint address; empty disables it
	Addr string `json:"addr" yaml:"addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// DeliveryConfig configures the local delivery sink.
type DeliveryConfig struct {
	// Compress writes snappy-compressed objects
	Compress bool `json:"compress" yaml:"compress"`
}

// TableConfig declares one table.
type TableConfig struct {
	Name          string                  `json:"name" yaml:"name"`
	Columns       []types.ColumnDef       `json:"columns" yaml:"columns"`
	PartitionKeys []types.PartitionKeyDef `json:"partition_keys" yaml:"partition_keys"`
	Format        string                  `json:"format" yaml:"format"`

	// Streaming tables get an input stream and a partition registrar
	Streaming bool `json:"streaming" yaml:"streaming"`

	// Shards is the shard count; ShardsByStage overrides it for a stage
	Shards        int            `json:"shards" yaml:"shards"`
	ShardsByStage map[string]int `json:"shards_by_stage" yaml:"shards_by_stage"`

	// Per-table registrar overrides
	PartitionKey string `json:"partition_key" yaml:"partition_key"`
	Window       *int   `json:"window" yaml:"window"`
	Schedule     string `json:"schedule" yaml:"schedule"`
}

// ShardCount returns the shard count for stage.
func (t TableConfig) ShardCount(stage string) int {
	if n, ok := t.ShardsByStage[stage]; ok {
		return n
	}
	return t.Shards
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Stage:    "dev",
		Database: "analytics",
		Region:   "us-east-1",
		DataDir:  "./data/streamhouse",
		Storage: StorageConfig{
			Type: "local",
		},
		Catalog: CatalogConfig{
			Type:         "sqlite",
			PollInterval: 500 * time.Millisecond,
			Timeout:      2 * time.Minute,
		},
		Registrar: RegistrarConfig{
			Window:       12,
			PartitionKey: types.DefaultPartitionKeyName,
		},
		HTTP: HTTPConfig{
			Addr:         ":8090",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Resolve fills derived values: paths under DataDir, the storage root URI,
// the Athena results location and the effective schedule.
func (c *Config) Resolve() error {
	if c.DataDir == "" {
		c.DataDir = "./data/streamhouse"
	}

	if c.Storage.Type == "local" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.DataDir, "lake")
	}
	if c.Storage.Root == "" {
		switch c.Storage.Type {
		case "local":
			abs, err := filepath.Abs(c.Storage.Path)
			if err != nil {
				return fmt.Errorf("resolve storage path: %w", err)
			}
			c.Storage.Root = "file://" + filepath.ToSlash(abs)
		case "s3":
			if c.Storage.S3.Bucket != "" {
				c.Storage.Root = "s3://" + c.Storage.S3.Bucket
			}
		}
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = c.Region
	}

	if c.Catalog.Type == "sqlite" && c.Catalog.Path == "" {
		c.Catalog.Path = filepath.Join(c.DataDir, "catalog.db")
	}
	if c.Catalog.Type == "athena" && c.Catalog.ResultsLocation == "" && c.Storage.S3.Bucket != "" {
		c.Catalog.ResultsLocation = "s3://" + c.Storage.S3.Bucket + "/athena-results/"
	}

	if c.Registrar.Schedule == "" {
		c.Registrar.Schedule = DefaultSchedule
		if c.Dev {
			c.Registrar.Schedule = DevSchedule
		}
	}
	if c.Registrar.PartitionKey == "" {
		c.Registrar.PartitionKey = types.DefaultPartitionKeyName
	}
	return nil
}

// ScheduleOverride is the fixed interval forced on every table, zero unless
// the dev profile is active.
func (c *Config) ScheduleOverride() time.Duration {
	if c.Dev {
		return time.Minute
	}
	return 0
}

// Validate validates the configuration. Errors are configuration errors.
func (c *Config) Validate() error {
	if c.Database == "" {
		return sherrors.Configuration("database is required")
	}
	if !types.ValidIdentifier(c.Database) {
		return sherrors.Configuration("invalid database name %q", c.Database)
	}

	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return sherrors.Configuration("storage.s3.bucket is required when storage type is s3")
		}
	default:
		return sherrors.Configuration("invalid storage type: %s (must be local or s3)", c.Storage.Type)
	}
	if c.Storage.Root == "" {
		return sherrors.Configuration("storage.root could not be resolved")
	}

	switch c.Catalog.Type {
	case "sqlite":
		if c.Catalog.Path == "" {
			return sherrors.Configuration("catalog.path is required when catalog type is sqlite")
		}
	case "athena":
		if c.Catalog.ResultsLocation == "" {
			return sherrors.Configuration("catalog.results_location is required when catalog type is athena")
		}
	default:
		return sherrors.Configuration("invalid catalog type: %s (must be athena or sqlite)", c.Catalog.Type)
	}
	if c.Catalog.Timeout <= 0 {
		return sherrors.Configuration("catalog.timeout must be positive, got %s", c.Catalog.Timeout)
	}

	if c.Registrar.Window < 0 {
		return sherrors.Configuration("registrar.window must be >= 0, got %d", c.Registrar.Window)
	}

	seen := make(map[string]bool, len(c.Tables))
	for i, t := range c.Tables {
		if t.Name == "" {
			return sherrors.Configuration("tables[%d]: name is required", i)
		}
		if seen[t.Name] {
			return sherrors.DuplicateTable(t.Name)
		}
		seen[t.Name] = true

		if !t.Streaming {
			continue
		}
		if n := t.ShardCount(c.Stage); n < 1 {
			return sherrors.Configuration("table %s: shard count for stage %q must be >= 1, got %d", t.Name, c.Stage, n).
				WithDetails(map[string]interface{}{"table": t.Name})
		}
		if t.Window != nil && *t.Window < 0 {
			return sherrors.Configuration("table %s: window must be >= 0, got %d", t.Name, *t.Window).
				WithDetails(map[string]interface{}{"table": t.Name})
		}
		if len(t.PartitionKeys) > 0 {
			return sherrors.Configuration("table %s: streaming tables take partition_key, not partition_keys", t.Name).
				WithDetails(map[string]interface{}{"table": t.Name})
		}
	}
	return nil
}

// jsonDuration decodes a JSON duration written either as a Go duration
// string ("90s", "2m") or as integer nanoseconds.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = jsonDuration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s: want a string such as \"90s\" or integer nanoseconds", data)
	}
	*d = jsonDuration(n)
	return nil
}

// UnmarshalJSON accepts duration strings for the poll interval and timeout.
func (c *CatalogConfig) UnmarshalJSON(data []byte) error {
	type plain CatalogConfig
	aux := struct {
		*plain
		PollInterval *jsonDuration `json:"poll_interval"`
		Timeout      *jsonDuration `json:"timeout"`
	}{
		plain:        (*plain)(c),
		PollInterval: (*jsonDuration)(&c.PollInterval),
		Timeout:      (*jsonDuration)(&c.Timeout),
	}
	return json.Unmarshal(data, &aux)
}

// UnmarshalJSON accepts duration strings for the server timeouts.
func (h *HTTPConfig) UnmarshalJSON(data []byte) error {
	type plain HTTPConfig
	aux := struct {
		*plain
		ReadTimeout  *jsonDuration `json:"read_timeout"`
		WriteTimeout *jsonDuration `json:"write_timeout"`
		IdleTimeout  *jsonDuration `json:"idle_timeout"`
	}{
		plain:        (*plain)(h),
		ReadTimeout:  (*jsonDuration)(&h.ReadTimeout),
		WriteTimeout: (*jsonDuration)(&h.WriteTimeout),
		IdleTimeout:  (*jsonDuration)(&h.IdleTimeout),
	}
	return json.Unmarshal(data, &aux)
}

// LoadFromFile loads configuration from a YAML or JSON file over the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv overlays environment variables with the STREAMHOUSE_ prefix.
// Malformed numeric, boolean or duration values are reported, not ignored.
func LoadFromEnv(cfg *Config) error {
	env := envReader{}

	env.str("STAGE", &cfg.Stage)
	env.boolean("DEV", &cfg.Dev)
	env.str("DATABASE", &cfg.Database)
	env.str("REGION", &cfg.Region)
	env.str("DATA_DIR", &cfg.DataDir)

	// Storage configuration
	env.str("STORAGE_TYPE", &cfg.Storage.Type)
	env.str("STORAGE_PATH", &cfg.Storage.Path)
	env.str("STORAGE_ROOT", &cfg.Storage.Root)
	env.str("S3_BUCKET", &cfg.Storage.S3.Bucket)
	env.str("S3_REGION", &cfg.Storage.S3.Region)
	env.str("S3_ENDPOINT", &cfg.Storage.S3.Endpoint)
	env.boolean("S3_USE_PATH_STYLE", &cfg.Storage.S3.UsePathStyle)

	// Catalog configuration
	env.str("CATALOG_TYPE", &cfg.Catalog.Type)
	env.str("CATALOG_PATH", &cfg.Catalog.Path)
	env.str("CATALOG_RESULTS_LOCATION", &cfg.Catalog.ResultsLocation)
	env.str("CATALOG_WORK_GROUP", &cfg.Catalog.WorkGroup)
	env.duration("CATALOG_POLL_INTERVAL", &cfg.Catalog.PollInterval)
	env.duration("CATALOG_TIMEOUT", &cfg.Catalog.Timeout)

	// Registrar configuration
	env.str("REGISTRAR_SCHEDULE", &cfg.Registrar.Schedule)
	env.integer("REGISTRAR_WINDOW", &cfg.Registrar.Window)
	env.str("REGISTRAR_PARTITION_KEY", &cfg.Registrar.PartitionKey)

	env.str("HTTP_ADDR", &cfg.HTTP.Addr)
	env.boolean("DELIVERY_COMPRESS", &cfg.Delivery.Compress)

	return env.err
}

type envReader struct {
	err error
}

func (r *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	return v, ok && v != ""
}

func (r *envReader) fail(name, v string, err error) {
	if r.err == nil {
		r.err = sherrors.Configuration("%s%s=%q: %v", EnvPrefix, name, v, err)
	}
}

func (r *envReader) str(name string, dst *string) {
	if v, ok := r.lookup(name); ok {
		*dst = v
	}
}

func (r *envReader) boolean(name string, dst *bool) {
	if v, ok := r.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (r *envReader) integer(name string, dst *int) {
	if v, ok := r.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) duration(name string, dst *time.Duration) {
	if v, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// EnsureDirectories creates the local directories the configuration needs.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	if c.Catalog.Type == "sqlite" {
		dirs = append(dirs, filepath.Dir(c.Catalog.Path))
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
