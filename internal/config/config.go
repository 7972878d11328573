// Package config provides configuration loading and structs for the rootcause server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Search    SearchConfig    `yaml:"search"`
	Narrow    NarrowConfig    `yaml:"narrow"`
	Watch     WatchConfig     `yaml:"watch"`
}

// LogConfig configures the optional rotating log file.
type LogConfig struct {
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// StorageConfig holds the data directory and the paths derived from it.
type StorageConfig struct {
	DataDir          string `yaml:"data_dir"`
	IndexDir         string `yaml:"index_dir"`
	DatabasePath     string `yaml:"database_path"`
	KeywordIndexPath string `yaml:"keyword_index_path"`
	IndexType        string `yaml:"index_type"` // memory, faiss or none
	SeedFile         string `yaml:"seed_file"`
}

// EmbeddingConfig selects the embedding provider.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // openai, ollama, onnx or hashing
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Dimensions        int           `yaml:"dimensions"`
	BatchSize         int           `yaml:"batch_size"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	ModelPath         string        `yaml:"model_path"`
	MaxTokens         int           `yaml:"max_tokens"`
}

// LLMConfig selects the model that proposes narrowing questions.
type LLMConfig struct {
	Provider          string        `yaml:"provider"` // openai, ollama or none
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Temperature       *float64      `yaml:"temperature,omitempty"` // nil selects the default; 0 is honored
	MaxTokens         int           `yaml:"max_tokens"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// Enabled reports whether a question provider is configured.
func (l LLMConfig) Enabled() bool {
	return l.Provider != "" && l.Provider != "none"
}

// SearchConfig holds diagnose defaults.
type SearchConfig struct {
	DefaultTopK   int     `yaml:"default_top_k"`
	MaxTopK       int     `yaml:"max_top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// NarrowConfig holds the narrowing dialogue settings.
type NarrowConfig struct {
	MaxSteps        int           `yaml:"max_steps"`
	ShortlistTarget int           `yaml:"shortlist_target"`
	GapThreshold    float64       `yaml:"gap_threshold"`
	MaxAttempts     int           `yaml:"max_attempts"`
	DialogueTTL     time.Duration `yaml:"dialogue_ttl"`
	MaxDialogues    int           `yaml:"max_dialogues"`
}

// WatchConfig holds the auto-ingest directories.
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Load reads and parses the config file at path, applies environment overrides and
// defaults, and expands paths. An empty path yields the defaults with paths relative
// to the working directory.
func Load(path string) (*Config, error) {
	var cfg Config
	configDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		configDir = filepath.Dir(path)
	}

	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	expandPaths(&cfg, configDir)
	return &cfg, nil
}

// ApplyEnv overrides secrets and paths from the environment. lookup is os.LookupEnv
// outside tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("OPENAI_API_KEY"); ok && v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = v
		}
	}
	if v, ok := lookup("DATA_DIR"); ok && v != "" {
		cfg.Storage.DataDir = v
	}
	if v, ok := lookup("FAULTS_CSV"); ok && v != "" {
		cfg.Storage.SeedFile = v
	}
	if v, ok := lookup("EMBED_MODEL"); ok && v != "" {
		cfg.Embedding.Model = v
	}
	if v, ok := lookup("EMBED_BATCH"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("EMBED_BATCH must be a positive integer, got %q", v)
		}
		cfg.Embedding.BatchSize = n
	}
	if v, ok := lookup("OLLAMA_HOST"); ok && v != "" {
		if cfg.Embedding.Provider == "ollama" && cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = v
		}
		if cfg.LLM.Provider == "ollama" && cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = v
		}
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPaths makes storage, model and watch paths absolute. Paths derived from
// data_dir are filled in when unset.
func expandPaths(cfg *Config, configDir string) {
	s := &cfg.Storage
	s.DataDir = expandPath(s.DataDir, configDir)
	derive := func(p *string, name string) {
		if *p == "" {
			*p = filepath.Join(s.DataDir, name)
			return
		}
		*p = expandPath(*p, configDir)
	}
	derive(&s.IndexDir, "index")
	derive(&s.DatabasePath, "catalog.db")
	derive(&s.KeywordIndexPath, "keywords.bleve")
	derive(&s.SeedFile, "faults.csv")
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Log.File != "" {
		cfg.Log.File = expandPath(cfg.Log.File, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}
}

// expandPath converts a path to absolute. A leading "~/" means the home directory;
// other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(configDir, path)
}
