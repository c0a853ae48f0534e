// Package config loads engine configuration from defaults, an optional
// YAML file, a .env file, and command-line flags, in that order, each
// layer overriding the previous one.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the engine.
type Config struct {
	DataDir string `yaml:"data_dir"`

	Docker     DockerConfig     `yaml:"docker"`
	Images     ImagesConfig     `yaml:"images"`
	Engine     EngineConfig     `yaml:"engine"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Metadata   MetadataConfig   `yaml:"metadata"`
	Invocation InvocationConfig `yaml:"invocation"`
	Logs       LogsConfig       `yaml:"logs"`
	Identity   IdentityConfig   `yaml:"identity"`
}

// DockerConfig controls how the engine reaches the container runtime.
type DockerConfig struct {
	Host         string        `yaml:"host"` // overrides discovery; empty means auto-discover
	BinaryPath   string        `yaml:"binary_path"`
	BuildTimeout time.Duration `yaml:"build_timeout"`
}

// ImagesConfig controls the image lifecycle manager.
type ImagesConfig struct {
	BaseRuntimeImage string `yaml:"base_runtime_image"`
	TagPrefix        string `yaml:"tag_prefix"`
	BuildLogDir      string `yaml:"build_log_dir"`
	GCKeepPerProject int    `yaml:"gc_keep_per_project"`
}

// EngineConfig controls invocation execution.
type EngineConfig struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
	MaxConcurrent    int           `yaml:"max_concurrent"`
}

// GatewayConfig controls the HTTP server.
type GatewayConfig struct {
	HTTPPort     int   `yaml:"http_port"`
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// MetadataConfig controls the metadata store.
type MetadataConfig struct {
	DBPath string `yaml:"db_path"`
}

// InvocationConfig controls the invocation record store.
type InvocationConfig struct {
	DBPath string `yaml:"db_path"`
}

// LogsConfig controls structured log output and the optional Loki sink.
type LogsConfig struct {
	Level       string        `yaml:"level"`
	JSON        bool          `yaml:"json"`
	LokiURL     string        `yaml:"loki_url"` // empty disables Loki, falling back to a no-op store
	LokiTimeout time.Duration `yaml:"loki_timeout"`
}

// IdentityConfig controls JWKS-based bearer token verification for the
// owner-scoped /stats endpoint.
type IdentityConfig struct {
	JWKSURL      string        `yaml:"jwks_url"`
	RefreshEvery time.Duration `yaml:"refresh_every"`
}

// DefaultConfig returns the baseline configuration before any file, env,
// or flag overrides are applied.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Docker: DockerConfig{
			Host:         "",
			BinaryPath:   "docker",
			BuildTimeout: 5 * time.Minute,
		},
		Images: ImagesConfig{
			BaseRuntimeImage: "clowdy-python-runtime:latest",
			TagPrefix:        "clowdy-project",
			BuildLogDir:      "./data/builds",
			GCKeepPerProject: 3,
		},
		Engine: EngineConfig{
			ExecutionTimeout: 30 * time.Second,
			MaxConcurrent:    16,
		},
		Gateway: GatewayConfig{
			HTTPPort:     8080,
			MaxBodyBytes: 1 << 20, // 1 MiB
		},
		Metadata: MetadataConfig{
			DBPath: "./data/metadata.db",
		},
		Invocation: InvocationConfig{
			DBPath: "./data/invocations.db",
		},
		Logs: LogsConfig{
			Level:       "info",
			JSON:        false,
			LokiURL:     "",
			LokiTimeout: 5 * time.Second,
		},
		Identity: IdentityConfig{
			JWKSURL:      "",
			RefreshEvery: 15 * time.Minute,
		},
	}
}

// Load builds a Config by layering, in order: defaults, the YAML file at
// yamlPath (if it exists), the .env file at envPath (if it exists), then
// flags parsed from args.
func Load(yamlPath, envPath string, args []string) (*Config, error) {
	cfg := DefaultConfig()

	if yamlPath != "" {
		if err := applyYAML(cfg, yamlPath); err != nil {
			return nil, fmt.Errorf("config: loading yaml: %w", err)
		}
	}

	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}
	applyEnv(cfg)

	if err := applyFlags(cfg, args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	return cfg, nil
}

func applyYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CLOWDY_DOCKER_HOST"); v != "" {
		cfg.Docker.Host = v
	}
	if v := os.Getenv("CLOWDY_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("CLOWDY_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.HTTPPort = n
		}
	}
	if v := os.Getenv("CLOWDY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("CLOWDY_LOKI_URL"); v != "" {
		cfg.Logs.LokiURL = v
	}
	if v := os.Getenv("CLOWDY_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Engine.MaxConcurrent = n
		}
	}
}

func applyFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("clowdy-engine", flag.ContinueOnError)
	fs.StringVar(&cfg.Docker.Host, "docker-host", cfg.Docker.Host, "docker endpoint override")
	fs.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "base directory for engine-managed state")
	fs.IntVar(&cfg.Gateway.HTTPPort, "http-port", cfg.Gateway.HTTPPort, "HTTP listen port")
	fs.IntVar(&cfg.Engine.MaxConcurrent, "max-concurrent", cfg.Engine.MaxConcurrent, "max concurrent invocation containers")
	fs.StringVar(&cfg.Metadata.DBPath, "metadata-db", cfg.Metadata.DBPath, "path to the metadata SQLite database")
	fs.StringVar(&cfg.Invocation.DBPath, "invocation-db", cfg.Invocation.DBPath, "path to the invocation record SQLite database")
	fs.StringVar(&cfg.Identity.JWKSURL, "jwks-url", cfg.Identity.JWKSURL, "JWKS endpoint for bearer token verification")
	return fs.Parse(args)
}
