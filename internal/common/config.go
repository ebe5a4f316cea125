package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

const (
	// DefaultEndpoint is used when neither the config nor the
	// environment supplies a coordinator endpoint.
	DefaultEndpoint = "http://localhost:5000"

	// DefaultBatchSize is the number of execution events submitted per flush.
	DefaultBatchSize = 50

	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = 2 * time.Second

	// DefaultMaxOutputLength caps captured stdout/stderr and code snippets.
	DefaultMaxOutputLength = 10000
)

// Config represents the client configuration.
// Immutable after Resolve; construct a new one to change settings.
type Config struct {
	Client  ClientConfig  `toml:"client"`
	Jobs    JobsConfig    `toml:"jobs"`
	Logging LoggingConfig `toml:"logging"`
}

// ClientConfig holds the coordinator connection and batching knobs.
type ClientConfig struct {
	Endpoint        string        `toml:"endpoint"`                    // Coordinator base URL (normalized, no trailing slash)
	APIKey          string        `toml:"api_key" validate:"required"` // Credential sent on every request; mandatory
	OrgID           string        `toml:"org_id"`                      // Optional organization identifier
	AppID           string        `toml:"app_id"`                      // Optional application identifier
	AppVersion      string        `toml:"app_version"`                 // Explicit application version (else inferred)
	BatchSize       int           `toml:"batch_size"`                  // Execution events per flush (default 50)
	FlushInterval   time.Duration `toml:"flush_interval"`              // Periodic flush cadence (default 2s)
	CaptureConsole  bool          `toml:"capture_console"`             // Mirror process stdout/stderr during handler runs
	MaxOutputLength int           `toml:"max_output_length"`           // Truncation limit for captured text (default 10000)
}

// JobsConfig contains configuration for job definition files consumed
// by the standalone runner binary.
type JobsConfig struct {
	DefinitionsDir string `toml:"definitions_dir"` // Directory containing job definition files (TOML/YAML)
}

// LoggingConfig controls the runner binary's logging.
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings are exposed in synapse.toml; technical
// parameters are hardcoded here.
func NewDefaultConfig() *Config {
	return &Config{
		Client: ClientConfig{
			Endpoint:        DefaultEndpoint,
			BatchSize:       DefaultBatchSize,
			FlushInterval:   DefaultFlushInterval,
			CaptureConsole:  true,
			MaxOutputLength: DefaultMaxOutputLength,
		},
		Jobs: JobsConfig{
			DefinitionsDir: "./jobs",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
// An empty path skips the file layer.
func LoadFromFile(path string) (*Config, error) {
	config := NewDefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Resolve(); err != nil {
		return nil, err
	}
	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if endpoint := os.Getenv("SYNAPSE_ENDPOINT"); endpoint != "" {
		config.Client.Endpoint = endpoint
	}
	if apiKey := os.Getenv("SYNAPSE_API_KEY"); apiKey != "" {
		config.Client.APIKey = apiKey
	}
	if orgID := os.Getenv("SYNAPSE_ORG_ID"); orgID != "" {
		config.Client.OrgID = orgID
	}
	if appID := os.Getenv("SYNAPSE_APP_ID"); appID != "" {
		config.Client.AppID = appID
	}
	if appVersion := os.Getenv("SYNAPSE_APP_VERSION"); appVersion != "" {
		config.Client.AppVersion = appVersion
	}
	if batchSize := os.Getenv("SYNAPSE_BATCH_SIZE"); batchSize != "" {
		if bs, err := strconv.Atoi(batchSize); err == nil {
			config.Client.BatchSize = bs
		}
	}
	if flushInterval := os.Getenv("SYNAPSE_FLUSH_INTERVAL"); flushInterval != "" {
		if fi, err := time.ParseDuration(flushInterval); err == nil {
			config.Client.FlushInterval = fi
		}
	}
	if level := os.Getenv("SYNAPSE_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if dir := os.Getenv("SYNAPSE_JOBS_DIR"); dir != "" {
		config.Jobs.DefinitionsDir = dir
	}
}

var configValidator = validator.New()

// Resolve normalizes and validates the full runner configuration.
func (c *Config) Resolve() error {
	return c.Client.Resolve()
}

// ApplyEnvFallbacks fills unset client fields from the environment.
// Used by the embedded client, where explicit constructor values take
// precedence over the environment.
func (c *ClientConfig) ApplyEnvFallbacks() {
	if c.Endpoint == "" {
		c.Endpoint = os.Getenv("SYNAPSE_ENDPOINT")
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv("SYNAPSE_API_KEY")
	}
	if c.OrgID == "" {
		c.OrgID = os.Getenv("SYNAPSE_ORG_ID")
	}
	if c.AppID == "" {
		c.AppID = os.Getenv("SYNAPSE_APP_ID")
	}
	if c.AppVersion == "" {
		c.AppVersion = os.Getenv("SYNAPSE_APP_VERSION")
	}
}

// Resolve normalizes and validates the client configuration. It must
// be called before the config is handed to the client; a missing API
// key or unresolvable endpoint is a fatal construction error raised
// here, before any network activity.
func (c *ClientConfig) Resolve() error {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(strings.TrimSpace(c.Endpoint), "/")
	if c.Endpoint == "" {
		return fmt.Errorf("coordinator endpoint could not be resolved")
	}
	if !strings.HasPrefix(c.Endpoint, "http://") && !strings.HasPrefix(c.Endpoint, "https://") {
		return fmt.Errorf("coordinator endpoint %q must be an http(s) URL", c.Endpoint)
	}

	if err := configValidator.Struct(c); err != nil {
		if _, ok := err.(validator.ValidationErrors); ok {
			return fmt.Errorf("api key is required: %w", err)
		}
		return err
	}

	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxOutputLength <= 0 {
		c.MaxOutputLength = DefaultMaxOutputLength
	}
	return nil
}
