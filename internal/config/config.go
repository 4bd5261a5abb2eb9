package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	// Storage
	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	StoreBackend string `mapstructure:"store_backend" yaml:"store_backend"`
	PostgresURL  string `mapstructure:"postgres_url" yaml:"postgres_url,omitempty"`

	// Normalization and merge
	AliasesFile string   `mapstructure:"aliases_file" yaml:"aliases_file,omitempty"`
	DedupKeys   []string `mapstructure:"dedup_keys" yaml:"dedup_keys"`
	MergePolicy string   `mapstructure:"merge_policy" yaml:"merge_policy"`

	// Anomaly model
	Contamination float64 `mapstructure:"contamination" yaml:"contamination"`
	NumTrees      int     `mapstructure:"num_trees" yaml:"num_trees"`
	MaxSamples    int     `mapstructure:"max_samples" yaml:"max_samples"`
	RandomSeed    uint64  `mapstructure:"random_seed" yaml:"random_seed"`

	// Open-data portal
	DataGovAPIKey     string            `mapstructure:"datagov_api_key" yaml:"datagov_api_key,omitempty"`
	DataGovBaseURL    string            `mapstructure:"datagov_base_url" yaml:"datagov_base_url"`
	DataGovPageSize   int               `mapstructure:"datagov_page_size" yaml:"datagov_page_size"`
	DataGovMaxRecords int               `mapstructure:"datagov_max_records" yaml:"datagov_max_records"`
	DataGovResources  map[string]string `mapstructure:"datagov_resources" yaml:"datagov_resources,omitempty"`
	DataGovRPS        float64           `mapstructure:"datagov_rps" yaml:"datagov_rps"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Server
	ServerAddr  string   `mapstructure:"server_addr" yaml:"server_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Logging
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// HTTPTimeout returns the configured client timeout.
func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

// RetryBaseDelay returns the first backoff step.
func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap.
func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func homeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".satark"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.satark/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := homeDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is fine.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults; callers apply flags on top.
func Load(cfgFile string) (*Global, error) {
	if err := LoadDotEnv(""); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetEnvPrefix("SATARK")
	v.AutomaticEnv()
	// The portal key is also accepted under its conventional name.
	_ = v.BindEnv("datagov_api_key", "SATARK_DATAGOV_API_KEY", "DATA_GOV_API_KEY")

	v.SetDefault("store_backend", "file")
	v.SetDefault("dedup_keys", []string{"state", "district", "pincode", "date"})
	v.SetDefault("merge_policy", "replace-batch")
	v.SetDefault("contamination", 0.1)
	v.SetDefault("num_trees", 100)
	v.SetDefault("max_samples", 256)
	v.SetDefault("random_seed", 42)
	v.SetDefault("datagov_base_url", "https://api.data.gov.in/resource/")
	v.SetDefault("datagov_page_size", 500)
	v.SetDefault("datagov_max_records", 2000)
	v.SetDefault("datagov_rps", 2.0)
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 10)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := homeDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.DataDir == "" {
		dir, err := homeDir()
		if err != nil {
			return nil, err
		}
		c.DataDir = filepath.Join(dir, "data")
	}
	return &c, nil
}
