package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"drillx/internal/logging"
	"drillx/internal/pipeline"
	"drillx/pkg/hashing/factory"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "DRILLX_"

// ServerConfig holds listen addresses
type ServerConfig struct {
	GRPCAddress string `yaml:"grpc_address"`
	HTTPAddress string `yaml:"http_address"`
}

// Config is the full drillx configuration
type Config struct {
	Engine    factory.BackendConfig `yaml:"engine"`
	Launch    pipeline.LaunchConfig `yaml:"launch"`
	Logging   logging.LoggingConfig `yaml:"logging"`
	Server    ServerConfig          `yaml:"server"`
	SentryDSN string                `yaml:"sentry_dsn"`
}

// Default returns the built-in configuration. Launch workers are left at
// zero so they are derived from the host.
func Default() *Config {
	return &Config{
		Engine:  *factory.DefaultBackendConfig(),
		Launch:  pipeline.LaunchConfig{BlockSize: pipeline.DefaultLaunchConfig().BlockSize},
		Logging: *logging.DefaultConfig(),
		Server: ServerConfig{
			GRPCAddress: ":8888",
			HTTPAddress: ":8080",
		},
	}
}

// Load reads the project .env file, then path (or the first existing
// file from ConfigPaths when path is empty), then DRILLX_* overrides
func Load(path string) (*Config, error) {
	root := findProjectRoot()
	if err := godotenv.Load(filepath.Join(root, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path == "" {
		for _, candidate := range ConfigPaths(root) {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}
	return LoadFile(path)
}

// LoadFile reads a YAML file over the defaults and applies environment
// overrides. An empty path skips the file.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating the directory if needed
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects sizes that can never run a batch
func (c *Config) Validate() error {
	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if c.Launch.BlockSize < 0 {
		return fmt.Errorf("launch: block_size must not be negative, got %d", c.Launch.BlockSize)
	}
	if c.Launch.Workers < 0 {
		return fmt.Errorf("launch: workers must not be negative, got %d", c.Launch.Workers)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging: unknown format %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
		return nil
	}

	if v, ok := lookup(EnvPrefix + "BACKENDS"); ok && v != "" {
		var order []string
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				order = append(order, name)
			}
		}
		c.Engine.PreferredOrder = order
	}
	str("REMOTE_ADDRESS", &c.Engine.RemoteAddress)
	if v, ok := lookup(EnvPrefix + "DIAL_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sDIAL_TIMEOUT: %w", EnvPrefix, err)
		}
		c.Engine.DialTimeout = d
	}

	for key, dst := range map[string]*int{
		"HEAP_SIZE":      &c.Engine.HeapSize,
		"MAX_BATCH_SIZE": &c.Engine.MaxBatchSize,
		"BLOCK_SIZE":     &c.Launch.BlockSize,
		"WORKERS":        &c.Launch.Workers,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_OUTPUT", &c.Logging.Output)
	str("GRPC_ADDRESS", &c.Server.GRPCAddress)
	str("HTTP_ADDRESS", &c.Server.HTTPAddress)

	if v, ok := lookup("SENTRY_DSN"); ok && v != "" {
		c.SentryDSN = v
	}
	str("SENTRY_DSN", &c.SentryDSN)
	return nil
}

// ConfigPaths returns common configuration file paths
func ConfigPaths(root string) []string {
	homeDir, _ := os.UserHomeDir()
	return []string{
		filepath.Join(root, "drillx.yaml"),
		filepath.Join(homeDir, ".drillx", "config.yaml"),
		"/etc/drillx/config.yaml",
	}
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	// First check CWD for .env file
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	// Then walk up looking for go.mod
	dir := cwd
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return cwd
		}
		dir = parent
	}
}
