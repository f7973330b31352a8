package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/DailyDigest/internal/model"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
	Pipeline  Pipeline  `yaml:"pipeline"`
	Timeouts  Timeouts  `yaml:"timeouts"`
	Retry     Retry     `yaml:"retry"`
	Pacing    Pacing    `yaml:"pacing"`
	Providers Providers `yaml:"providers"`
	Kdocs     Kdocs     `yaml:"kdocs"`
	Scheduler Scheduler `yaml:"scheduler"`
	Network   Network   `yaml:"network"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Pipeline struct {
	MaxItemsPerFeed  int           `yaml:"max_items_per_feed"`
	MaxTotalItems    int           `yaml:"max_total_items"`
	WindowDays       int           `yaml:"window_days"`
	TitleSimilarity  float64       `yaml:"title_similarity"`
	PrefilterLimit   int           `yaml:"prefilter_limit"`
	SeenTTL          time.Duration `yaml:"seen_ttl"`
	PushLogRetention int           `yaml:"push_log_retention"`
	SoftLimit        int           `yaml:"soft_limit"`
	HardLimit        int           `yaml:"hard_limit"`
	CompressAttempts int           `yaml:"compress_attempts"`
	TLDRMaxRunes     int           `yaml:"tldr_max_runes"`
	EnrichSnippets   bool          `yaml:"enrich_snippets"`
}

type Timeouts struct {
	Feed    time.Duration `yaml:"feed"`
	Model   time.Duration `yaml:"model"`
	Push    time.Duration `yaml:"push"`
	Content time.Duration `yaml:"content"`
}

type Retry struct {
	MaxRetries int           `yaml:"max_retries"`
	BaseDelay  time.Duration `yaml:"base_delay"`
}

// Pacing is the minimum gap between model calls, per provider family.
type Pacing struct {
	Gemini time.Duration `yaml:"gemini"`
	OpenAI time.Duration `yaml:"openai"`
}

// For returns the gap for a settings provider name.
func (p Pacing) For(provider string) time.Duration {
	if provider == model.ProviderOpenAI {
		return p.OpenAI
	}
	return p.Gemini
}

type Providers struct {
	Gemini ProviderDefaults `yaml:"gemini"`
	OpenAI ProviderDefaults `yaml:"openai"`
}

// For returns the defaults for a settings provider name.
func (p Providers) For(provider string) ProviderDefaults {
	if provider == model.ProviderOpenAI {
		return p.OpenAI
	}
	return p.Gemini
}

type ProviderDefaults struct {
	BaseURL        string `yaml:"base_url"`
	Model          string `yaml:"model"`
	PrefilterModel string `yaml:"prefilter_model"`
}

type Kdocs struct {
	TokenURL      string `yaml:"token_url"`
	APIBase       string `yaml:"api_base"`
	MaxFieldRunes int    `yaml:"max_field_runes"`
}

type Scheduler struct {
	Interval  time.Duration `yaml:"interval"`
	QueueSize int           `yaml:"queue_size"`
}

type Network struct {
	AllowPrivate bool `yaml:"allow_private"`
}

// ConfigDir returns the XDG config directory for dailydigest.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "dailydigest")
}

// DataDir returns the XDG data directory for dailydigest.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "dailydigest")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/dailydigest/config.yaml > ./config.yaml
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
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'dailydigest init' to create a default config",
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

// Default returns the configuration with no file applied.
func Default() *Config {
	cfg, err := parse(nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO", Format: "console"},
		Pipeline: Pipeline{
			MaxItemsPerFeed:  30,
			MaxTotalItems:    200,
			WindowDays:       30,
			TitleSimilarity:  0.75,
			PrefilterLimit:   20,
			SeenTTL:          7 * 24 * time.Hour,
			PushLogRetention: 50,
			SoftLimit:        4800,
			HardLimit:        5000,
			CompressAttempts: 2,
			TLDRMaxRunes:     100,
			EnrichSnippets:   true,
		},
		Timeouts: Timeouts{
			Feed:    20 * time.Second,
			Model:   60 * time.Second,
			Push:    15 * time.Second,
			Content: 15 * time.Second,
		},
		Retry:  Retry{MaxRetries: 3, BaseDelay: time.Second},
		Pacing: Pacing{Gemini: 4 * time.Second, OpenAI: time.Second},
		Providers: Providers{
			Gemini: ProviderDefaults{Model: "gemini-1.5-flash", PrefilterModel: "gemini-1.5-flash-8b"},
			OpenAI: ProviderDefaults{BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini", PrefilterModel: "gpt-4o-mini"},
		},
		Kdocs:     Kdocs{MaxFieldRunes: 4000},
		Scheduler: Scheduler{Interval: time.Hour, QueueSize: 64},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	p := c.Pipeline
	if p.HardLimit <= 0 || p.SoftLimit <= 0 || p.SoftLimit > p.HardLimit {
		return fmt.Errorf("pipeline: soft_limit (%d) must be positive and not exceed hard_limit (%d)", p.SoftLimit, p.HardLimit)
	}
	if p.TitleSimilarity <= 0 || p.TitleSimilarity > 1 {
		return fmt.Errorf("pipeline: title_similarity must be in (0, 1], got %v", p.TitleSimilarity)
	}
	if p.PrefilterLimit <= 0 {
		return fmt.Errorf("pipeline: prefilter_limit must be positive")
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler: interval must be positive")
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite store location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "dailydigest.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
