// Package config provides configuration loading and structs for the Kotoba server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool             `yaml:"debug"`
	Server      ServerConfig     `yaml:"server"`
	Transcripts TranscriptConfig `yaml:"transcripts"`
	Chunking    ChunkingConfig   `yaml:"chunking"`
	Embedding   EmbeddingConfig  `yaml:"embedding"`
	Generation  GenerationConfig `yaml:"generation"`
	Gemini      GeminiConfig     `yaml:"gemini"`
	Vector      VectorConfig     `yaml:"vector"`
	Session     SessionConfig    `yaml:"session"`
	Indexing    IndexingConfig   `yaml:"indexing"`
	Watch       WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ChatTimeout     time.Duration `yaml:"chat_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TranscriptConfig locates transcript files and the language preference order.
type TranscriptConfig struct {
	Dir       string   `yaml:"dir"`
	Languages []string `yaml:"languages"`
}

// ChunkingConfig holds word-window sizes. Overlap is a pointer so that 0 can be set explicitly.
type ChunkingConfig struct {
	Size    int  `yaml:"size"`
	Overlap *int `yaml:"overlap,omitempty"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	// Backend is one of gemini, onnx, hash.
	Backend    string `yaml:"backend"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BatchSize  int    `yaml:"batch_size"`
	// RPM is the embedding request quota per minute; 0 disables spacing.
	RPM       int           `yaml:"rpm"`
	Safety    time.Duration `yaml:"safety"`
	CacheSize int           `yaml:"cache_size"`

	// ONNX backend.
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	MaxTokens     int    `yaml:"max_tokens"`
}

// GenerationConfig selects the answer generator.
type GenerationConfig struct {
	// Backend is gemini or echo.
	Backend         string   `yaml:"backend"`
	Model           string   `yaml:"model"`
	Temperature     *float64 `yaml:"temperature,omitempty"`
	MaxOutputTokens int      `yaml:"max_output_tokens"`
	RPM             int      `yaml:"rpm"`
}

// GeminiConfig holds Gemini API client settings. The key itself is read from the environment.
type GeminiConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	MaxRetries int    `yaml:"max_retries"`
}

// APIKey returns the Gemini key from the configured environment variable.
func (g *GeminiConfig) APIKey() string {
	return strings.TrimSpace(os.Getenv(g.APIKeyEnv))
}

// VectorConfig selects the vector store.
type VectorConfig struct {
	// Store is memory or sqlite.
	Store string `yaml:"store"`
	Path  string `yaml:"path"`
	TopK  int    `yaml:"top_k"`
}

// SessionConfig selects the session registry.
type SessionConfig struct {
	// Backend is memory or redis.
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds connection settings for the redis session registry.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// IndexingConfig bounds how long one indexing run may take. Timeout, when set, overrides the
// computed budget.
type IndexingConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	MinTimeout time.Duration `yaml:"min_timeout"`
}

// WatchConfig controls indexing of transcript files dropped into the transcripts directory.
type WatchConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Debounce time.Duration `yaml:"debounce"`
	// Sync indexes files already present when the watcher starts; defaults to true when unset.
	Sync *bool `yaml:"sync"`
}

// SyncOrDefault returns whether existing files are indexed on start.
func (w *WatchConfig) SyncOrDefault() bool {
	if w.Sync != nil {
		return *w.Sync
	}
	return true
}

// OverlapOrDefault returns the configured overlap, or 100 words capped at a fifth of Size.
func (c *ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return min(100, c.Size/5)
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Transcripts.Dir = expandPath(cfg.Transcripts.Dir, configDir)
	cfg.Vector.Path = expandPath(cfg.Vector.Path, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.TokenizerPath != "" {
		cfg.Embedding.TokenizerPath = expandPath(cfg.Embedding.TokenizerPath, configDir)
	}

	return &cfg, nil
}

// LoadEnv loads KEY=value pairs from the .env files that exist, without overriding variables
// already set in the environment. Missing files are skipped.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
