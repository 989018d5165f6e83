// Package config resolves wavault configuration from a yaml file,
// environment variables, and CLI flags, tracking where each value came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath      string
	CLIDatabaseURL  string
	CLIEmbeddingURL string
}

// ResolvedConfig holds the two settings wavault needs. The database URL is
// required everywhere; the embedding URL is required only for the vector
// strategy and the embed backfill, and its absence means degraded mode.
type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DatabaseURL  ResolvedValue `json:"database_url"`
	EmbeddingURL ResolvedValue `json:"embedding_url"`
}

type fileConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Embedding   struct {
		URL string `yaml:"url"`
	} `yaml:"embedding"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wavault", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DatabaseURL, cfg.DatabaseURL, SourceConfig, path)
		apply(&out.EmbeddingURL, cfg.Embedding.URL, SourceConfig, path)
	}

	applyEnv(&out.DatabaseURL, "WAVAULT_DATABASE_URL")
	applyEnv(&out.DatabaseURL, "DATABASE_URL")
	applyEnv(&out.EmbeddingURL, "WAVAULT_EMBEDDING_URL")
	applyEnv(&out.EmbeddingURL, "EMBEDDING_URL")

	if v := strings.TrimSpace(opts.CLIDatabaseURL); v != "" {
		out.DatabaseURL = ResolvedValue{Value: v, Source: SourceCLI, From: "--db"}
	}
	if v := strings.TrimSpace(opts.CLIEmbeddingURL); v != "" {
		out.EmbeddingURL = ResolvedValue{Value: v, Source: SourceCLI, From: "--embedding-url"}
	}

	return out, nil
}

// Validate checks that the settings required by the current command are
// present. A missing embedding URL is an error only when needEmbedding is set.
func (c ResolvedConfig) Validate(needEmbedding bool) error {
	if c.DatabaseURL.Value == "" {
		return fmt.Errorf("database URL is required (set WAVAULT_DATABASE_URL, database_url in %s, or --db)", c.ConfigPath)
	}
	if needEmbedding && c.EmbeddingURL.Value == "" {
		return fmt.Errorf("embedding URL is required for this command (set WAVAULT_EMBEDDING_URL or embedding.url in %s)", c.ConfigPath)
	}
	return nil
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

func apply(dst *ResolvedValue, value string, source ValueSource, from string) {
	v := strings.TrimSpace(value)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: key}
	}
}
