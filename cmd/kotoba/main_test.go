package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

func intPtr(n int) *int { return &n }

func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Transcripts: config.TranscriptConfig{Dir: filepath.Join(dir, "transcripts")},
		Embedding:   config.EmbeddingConfig{Backend: "hash", Dimensions: 32},
		Generation:  config.GenerationConfig{Backend: "echo"},
		Vector:      config.VectorConfig{Store: "sqlite", Path: filepath.Join(dir, "data", "vectors.db")},
		Chunking:    config.ChunkingConfig{Size: 8, Overlap: intPtr(2)},
	}
	config.ApplyDefaults(cfg)
	if err := os.MkdirAll(cfg.Transcripts.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	return cfg
}

const srt = `1
00:00:01,000 --> 00:00:03,000
welcome back to the channel

2
00:00:03,500 --> 00:00:07,250
today we compare three sorting algorithms

3
00:00:08,000 --> 00:00:12,000
quicksort is usually fastest in practice
`

func TestInitializeComponents_Offline(t *testing.T) {
	cfg := offlineConfig(t)
	if err := os.WriteFile(filepath.Join(cfg.Transcripts.Dir, "sortvid.en.srt"), []byte(srt), 0600); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("initializeComponents: %v", err)
	}
	res, err := c.Service.Process(ctx, "sortvid")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ChunksCreated == 0 {
		t.Errorf("result = %+v", res)
	}
	ans, err := c.Service.Answer(ctx, "sortvid", "which algorithm is fastest?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if !strings.Contains(ans.Answer, "quicksort") {
		t.Errorf("answer = %q", ans.Answer)
	}
	if c.Info.DiskUsage == nil {
		t.Error("sqlite store should report disk usage")
	}
	c.Close()

	// A second process over the same store sees the source without re-indexing.
	c2, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer c2.Close()
	if !c2.Service.Ready(ctx, "sortvid") {
		t.Error("source not restored from durable store")
	}
}

func TestInitializeComponents_Errors(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"missing api key", func(c *config.Config) {
			c.Embedding.Backend = "gemini"
			c.Gemini.APIKeyEnv = "KOTOBA_TEST_UNSET_KEY"
		}, "KOTOBA_TEST_UNSET_KEY"},
		{"unknown embedding", func(c *config.Config) { c.Embedding.Backend = "word2vec" }, "unknown embedding backend"},
		{"unknown generator", func(c *config.Config) { c.Generation.Backend = "gpt" }, "unknown generation backend"},
		{"unknown store", func(c *config.Config) { c.Vector.Store = "faiss" }, "unknown store type"},
		{"unknown session", func(c *config.Config) { c.Session.Backend = "etcd" }, "unknown session backend"},
		{"bad chunking", func(c *config.Config) { c.Chunking.Overlap = intPtr(c.Chunking.Size) }, "invalid chunking"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := offlineConfig(t)
			tt.mutate(cfg)
			_, err := initializeComponents(ctx, cfg, zap.NewNop(), false)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestReadTranscriptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sortvid.en.srt")
	if err := os.WriteFile(path, []byte(srt), 0600); err != nil {
		t.Fatal(err)
	}
	id, segs, err := readTranscriptFile(path, "")
	if err != nil || id != "sortvid" || len(segs) != 3 {
		t.Fatalf("readTranscriptFile = %q, %d segments, %v", id, len(segs), err)
	}
	if segs[1].Start != 3.5 {
		t.Errorf("second segment start = %v", segs[1].Start)
	}
	if id, _, _ := readTranscriptFile(path, "custom"); id != "custom" {
		t.Errorf("explicit id ignored: %q", id)
	}

	odd := filepath.Join(dir, "no good name.srt")
	if err := os.WriteFile(odd, []byte(srt), 0600); err != nil {
		t.Fatal(err)
	}
	id1, _, err := readTranscriptFile(odd, "")
	if err != nil {
		t.Fatal(err)
	}
	id2, _, _ := readTranscriptFile(odd, "")
	if id1 != id2 || !strings.HasPrefix(id1, "file_") {
		t.Errorf("unusable file name should map to a stable hashed id, got %q and %q", id1, id2)
	}

	broken := filepath.Join(dir, "broken.srt")
	if err := os.WriteFile(broken, []byte("1\n00:00:xx,000 --> 00:00:01,000\nhi\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readTranscriptFile(broken, ""); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("malformed file: err = %v, want ErrInvalidInput", err)
	}
}

func TestLoadConfig_cwdFallback(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  port: 7001\n"), 0600); err != nil {
		t.Fatal(err)
	}
	chdir(t, dir)
	cfg, path, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 7001 || filepath.Base(path) != "config.yaml" {
		t.Errorf("loaded %s port %d", path, cfg.Server.Port)
	}
}

func TestLoadConfig_defaultsWhenMissing(t *testing.T) {
	chdir(t, t.TempDir())
	if _, err := os.Stat(defaultConfigPath); err == nil {
		t.Skip("a system config exists")
	}
	cfg, path, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	if path != "" || cfg.Server.Port != 5000 {
		t.Errorf("loaded %q port %d", path, cfg.Server.Port)
	}
}

func TestLoadConfig_explicitMissing(t *testing.T) {
	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("explicit missing config should fail")
	}
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatal(err)
		}
	})
}
