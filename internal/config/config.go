package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Source   Source        `yaml:"source"`
	Analysis Analysis      `yaml:"analysis"`
	LLM      LLM           `yaml:"llm"`
	Output   Output        `yaml:"output"`
	Server   Server        `yaml:"server"`
	Schedule Schedule      `yaml:"schedule"`
	Logging  Logging       `yaml:"logging"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// Source configures the store feed.
type Source struct {
	Country      string        `yaml:"country"`
	Pages        int           `yaml:"pages"`
	PageDelay    time.Duration `yaml:"page_delay"`
	Timeout      time.Duration `yaml:"timeout"`
	FeedURL      string        `yaml:"feed_url"`
	ListingURL   string        `yaml:"listing_url"`
	ResolveNames bool          `yaml:"resolve_names"`
}

type Analysis struct {
	LookbackDays        int     `yaml:"lookback_days"`
	MinTopicOccurrences int     `yaml:"min_topic_occurrences"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ExtractionBatchSize int     `yaml:"extraction_batch_size"`
	MappingBatchSize    int     `yaml:"mapping_batch_size"`
	Workers             int     `yaml:"workers"`
	MappingCacheSize    int     `yaml:"mapping_cache_size"`
	ValidationContext   int     `yaml:"validation_context"`
}

type LLM struct {
	Provider          string        `yaml:"provider"`
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	MaxTokens         int           `yaml:"max_tokens"`
	Temperature       float64       `yaml:"temperature"`
	MaxRetries        int           `yaml:"max_retries"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// Schedule lists the apps analyzed by the daily scheduler.
type Schedule struct {
	Cron string   `yaml:"cron"`
	Apps []string `yaml:"apps"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for reviewtrends.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "reviewtrends")
}

// DataDir returns the XDG data directory for reviewtrends.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "reviewtrends")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/reviewtrends/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'reviewtrends init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config is invalid: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Source: Source{
			Country:   "us",
			Pages:     10,
			PageDelay: time.Second,
			Timeout:   30 * time.Second,
		},
		Analysis: Analysis{
			LookbackDays:        30,
			MinTopicOccurrences: 5,
			ConfidenceThreshold: 0.70,
			ExtractionBatchSize: 20,
			MappingBatchSize:    10,
			Workers:             2,
			MappingCacheSize:    1024,
			ValidationContext:   20,
		},
		LLM: LLM{
			Provider:       "groq",
			Model:          "llama-3.1-8b-instant",
			APIKeyEnv:      "GROQ_API_KEY",
			MaxTokens:      4096,
			Temperature:    0.3,
			MaxRetries:     3,
			RetryBaseDelay: time.Second,
			Timeout:        120 * time.Second,
		},
		Server:   Server{Port: 8000},
		Schedule: Schedule{Cron: "0 2 * * *"},
		Logging:  Logging{Level: "INFO"},
		LockTTL:  6 * time.Hour,
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects settings no run could work with.
func (c *Config) Validate() error {
	a := c.Analysis
	switch {
	case a.LookbackDays < 0:
		return fmt.Errorf("analysis.lookback_days must not be negative, got %d", a.LookbackDays)
	case a.ConfidenceThreshold < 0 || a.ConfidenceThreshold > 1:
		return fmt.Errorf("analysis.confidence_threshold must be within [0, 1], got %v", a.ConfidenceThreshold)
	case a.MinTopicOccurrences < 1:
		return fmt.Errorf("analysis.min_topic_occurrences must be at least 1, got %d", a.MinTopicOccurrences)
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return expandHome(c.Output.DataDir)
	}
	return DataDir()
}

// DBPath is the SQLite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "reviewtrends.db")
}

// APIKey reads the LLM key from the configured environment variable.
func (c *Config) APIKey() string {
	if c.LLM.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.LLM.APIKeyEnv)
}

func expandHome(p string) string {
	if p == "~" {
		return homeDir()
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(homeDir(), p[2:])
	}
	return p
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
