package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 5000
	}
	if cfg.Server.ChatTimeout == 0 {
		cfg.Server.ChatTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Transcripts.Dir == "" {
		cfg.Transcripts.Dir = "./transcripts"
	}
	if len(cfg.Transcripts.Languages) == 0 {
		cfg.Transcripts.Languages = []string{"hi", "en"}
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 500
	}
	if cfg.Embedding.Backend == "" {
		cfg.Embedding.Backend = "gemini"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-004"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Backend == "gemini" {
			cfg.Embedding.Dimensions = 768
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 100
	}
	if cfg.Embedding.RPM == 0 && cfg.Embedding.Backend == "gemini" {
		cfg.Embedding.RPM = 5
	}
	if cfg.Embedding.Safety == 0 {
		cfg.Embedding.Safety = time.Second
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Generation.Backend == "" {
		cfg.Generation.Backend = "gemini"
	}
	if cfg.Generation.Model == "" {
		cfg.Generation.Model = "gemini-2.5-flash"
	}
	if cfg.Gemini.APIKeyEnv == "" {
		cfg.Gemini.APIKeyEnv = "GEMINI_API_KEY"
	}
	if cfg.Gemini.MaxRetries == 0 {
		cfg.Gemini.MaxRetries = 5
	}
	if cfg.Vector.Store == "" {
		cfg.Vector.Store = "memory"
	}
	if cfg.Vector.Path == "" {
		cfg.Vector.Path = "./data/vectors.db"
	}
	if cfg.Vector.TopK == 0 {
		cfg.Vector.TopK = 5
	}
	if cfg.Session.Backend == "" {
		cfg.Session.Backend = "memory"
	}
	if cfg.Session.Redis.Addr == "" {
		cfg.Session.Redis.Addr = "localhost:6379"
	}
	if cfg.Session.Redis.Prefix == "" {
		cfg.Session.Redis.Prefix = "kotoba:session:"
	}
	if cfg.Indexing.MinTimeout == 0 {
		cfg.Indexing.MinTimeout = 30 * time.Second
	}
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}

// Default returns a config with every default applied and paths relative to the working
// directory. Used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
