package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.CORSOrigins == nil {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Log.File != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 100
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}

	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Storage.IndexType == "" {
		cfg.Storage.IndexType = "memory"
	}

	e := &cfg.Embedding
	if e.Provider == "" {
		e.Provider = "hashing"
		if e.APIKey != "" {
			e.Provider = "openai"
		}
	}
	if e.Provider == "openai" && e.Model == "" {
		e.Model = "text-embedding-3-small"
	}
	if e.Provider == "ollama" && e.Model == "" {
		e.Model = "nomic-embed-text"
	}
	if e.BatchSize == 0 {
		e.BatchSize = 64
	}
	if e.CacheSize == 0 {
		e.CacheSize = 10000
	}
	if e.Timeout == 0 {
		e.Timeout = 60 * time.Second
	}
	if e.MaxTokens == 0 {
		e.MaxTokens = 256
	}

	l := &cfg.LLM
	if l.Provider == "" {
		l.Provider = "none"
		if l.APIKey != "" {
			l.Provider = "openai"
		}
	}
	if l.Provider == "openai" && l.Model == "" {
		l.Model = "gpt-4o-mini"
	}
	if l.Provider == "ollama" && l.Model == "" {
		l.Model = "llama3.1"
	}
	if l.Temperature == nil {
		temperature := 0.2
		l.Temperature = &temperature
	}
	if l.MaxTokens == 0 {
		l.MaxTokens = 250
	}
	if l.Timeout == 0 {
		l.Timeout = 30 * time.Second
	}

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 50
	}

	n := &cfg.Narrow
	if n.MaxSteps == 0 {
		n.MaxSteps = 6
	}
	if n.ShortlistTarget == 0 {
		n.ShortlistTarget = 1
	}
	if n.GapThreshold == 0 {
		n.GapThreshold = 0.15
	}
	if n.MaxAttempts == 0 {
		n.MaxAttempts = 3
	}
	if n.DialogueTTL == 0 {
		n.DialogueTTL = 30 * time.Minute
	}
	if n.MaxDialogues == 0 {
		n.MaxDialogues = 1024
	}

	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".csv", ".xlsx"}
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 400 * time.Millisecond
	}
}
