package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LLMConfig configures the OpenAI-compatible chat completion client and
// the per-stage sampling temperatures.
type LLMConfig struct {
	BaseURL     string       `yaml:"base_url"`
	APIKeyEnv   string       `yaml:"api_key_env"`
	Model       string       `yaml:"model"`
	TimeoutSecs int          `yaml:"timeout_secs"`
	Temperature Temperatures `yaml:"temperature"`
}

// Temperatures holds the sampling temperature for each LLM-backed stage.
type Temperatures struct {
	Planner  float64 `yaml:"planner"`
	Filter   float64 `yaml:"filter"`
	Drafter  float64 `yaml:"drafter"`
	Refiner  float64 `yaml:"refiner"`
	Followup float64 `yaml:"followup"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                `yaml:"type"`
	CacheSize int                   `yaml:"cache_size"`
	OpenAI    *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// TavilyConfig configures the search, crawl and extract provider.
type TavilyConfig struct {
	BaseURL        string   `yaml:"base_url"`
	APIKeyEnv      string   `yaml:"api_key_env"`
	SearchDepth    string   `yaml:"search_depth"`
	MaxResults     int      `yaml:"max_results"`
	IncludeDomains []string `yaml:"include_domains"`
	CrawlTimeout   int      `yaml:"crawl_timeout_secs"`
	CrawlLimit     int      `yaml:"crawl_limit"`
	CrawlDepth     int      `yaml:"crawl_max_depth"`
	CrawlBreadth   int      `yaml:"crawl_max_breadth"`
	SelectPaths    []string `yaml:"select_paths"`
	ExtractDepth   string   `yaml:"extract_depth"`
	ExtractBatch   int      `yaml:"extract_batch_size"`
}

// RankerConfig configures signature construction and similarity ranking.
type RankerConfig struct {
	Strategy       string `yaml:"strategy"`
	SignatureChars int    `yaml:"signature_chars"`
	BatchSize      int    `yaml:"batch_size"`
	TopK           int    `yaml:"top_k"`
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   int    `yaml:"chunk_overlap"`
	ExampleChars   int    `yaml:"example_chars"`
}

// PipelineConfig bounds a single run of the pipeline.
type PipelineConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// LogConfig configures the rotating file log and console output.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Console    bool   `yaml:"console"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM      LLMConfig      `yaml:"llm"`
	Embedder EmbedderConfig `yaml:"embedder"`
	Tavily   TavilyConfig   `yaml:"tavily"`
	Ranker   RankerConfig   `yaml:"ranker"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Log      LogConfig      `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/coderag/config.yaml.
// If neither exists, it writes defaults to ~/.config/coderag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "coderag", "config.yaml"), nil
}

// DefaultSelectPaths are the crawl path filters for source and docs files.
var DefaultSelectPaths = []string{
	`/.*\.ipynb$`,
	`/.*\.py$`,
	`/.*\.(js|ts|tsx)$`,
	`/.*\.(cpp|c|cc|h|hpp)$`,
	`/.*\.(go|rs)$`,
	`/.*\.java$`,
	`/.*\.(md|rst)$`,
	`/.*\.(yaml|yml|toml|json)$`,
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM: LLMConfig{
			Temperature: Temperatures{Planner: 0.3, Filter: 0.2, Drafter: 0.2, Refiner: 0.15, Followup: 0.2},
		},
		Embedder: EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Ranker:   RankerConfig{Strategy: "prefix"},
		Log:      LogConfig{File: filepath.Join("logs", "backend.log"), Console: true},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o"
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.CacheSize == 0 {
		cfg.Embedder.CacheSize = 2048
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 60
		}
	}

	t := &cfg.Tavily
	if t.BaseURL == "" {
		t.BaseURL = "https://api.tavily.com"
	}
	if t.APIKeyEnv == "" {
		t.APIKeyEnv = "TAVILY_API_KEY"
	}
	if t.SearchDepth == "" {
		t.SearchDepth = "advanced"
	}
	if t.MaxResults == 0 {
		t.MaxResults = 6
	}
	if len(t.IncludeDomains) == 0 {
		t.IncludeDomains = []string{"github.com"}
	}
	if t.CrawlTimeout == 0 {
		t.CrawlTimeout = 150
	}
	if t.CrawlLimit == 0 {
		t.CrawlLimit = 500
	}
	if t.CrawlDepth == 0 {
		t.CrawlDepth = 3
	}
	if t.CrawlBreadth == 0 {
		t.CrawlBreadth = 100
	}
	if len(t.SelectPaths) == 0 {
		t.SelectPaths = append([]string(nil), DefaultSelectPaths...)
	}
	if t.ExtractDepth == "" {
		t.ExtractDepth = "advanced"
	}
	if t.ExtractBatch == 0 {
		t.ExtractBatch = 20
	}

	r := &cfg.Ranker
	if r.Strategy == "" {
		r.Strategy = "prefix"
	}
	if r.SignatureChars == 0 {
		r.SignatureChars = 8000
	}
	if r.BatchSize == 0 {
		r.BatchSize = 96
	}
	if r.TopK == 0 {
		r.TopK = 3
	}
	if r.ChunkSize == 0 {
		r.ChunkSize = 1500
	}
	if r.ChunkOverlap == 0 {
		r.ChunkOverlap = 300
	}
	if r.ExampleChars == 0 {
		r.ExampleChars = 8000
	}

	if cfg.Pipeline.MaxSteps == 0 {
		cfg.Pipeline.MaxSteps = 20
	}

	if cfg.Log.File == "" {
		cfg.Log.File = filepath.Join("logs", "backend.log")
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.MaxSizeMB == 0 {
		cfg.Log.MaxSizeMB = 10
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays == 0 {
		cfg.Log.MaxAgeDays = 30
	}
}
