package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/moreskylab/Sentio/embeddings/hashing"
	"github.com/moreskylab/Sentio/embeddings/ollama"
	"github.com/viant/scy/cred/secret"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOllama   = "ollama"
	ProviderOpenAI   = "openai"
	ProviderVertexAI = "vertexai"
	ProviderHashing  = "hashing"

	SyncInline = "inline"
	SyncAsync  = "async"
)

// Config defines the service graph.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Articles  StoreConfig     `yaml:"articles"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Sync      SyncConfig      `yaml:"sync"`
	HTTP      HTTPConfig      `yaml:"http"`
	MCPServer MCPServerConfig `yaml:"mcpServer"`
}

// IndexConfig defines the vector index location.
type IndexConfig struct {
	DSN      string `yaml:"dsn"`
	Table    string `yaml:"table"`
	MergeKey *bool  `yaml:"mergeKey"`
}

// StoreConfig defines the article store.
type StoreConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
	Secret string `yaml:"secret,omitempty"`
	Table  string `yaml:"table"`
}

// EmbedderConfig selects and configures the embedding provider.
type EmbedderConfig struct {
	Provider  string      `yaml:"provider"`
	Model     string      `yaml:"model"`
	BaseURL   string      `yaml:"baseURL"`
	APIKey    string      `yaml:"apiKey,omitempty"`
	Project   string      `yaml:"project"`
	Location  string      `yaml:"location"`
	Dim       int         `yaml:"dim"`
	Cache     CacheConfig `yaml:"cache"`
	BatchSize int         `yaml:"batchSize"`
}

// CacheConfig bounds the query embedding cache and where it is persisted.
type CacheConfig struct {
	Size     int    `yaml:"size"`
	Snapshot string `yaml:"snapshot"`
}

// SyncConfig controls how article events reach the index.
type SyncConfig struct {
	Mode   string `yaml:"mode"`
	Buffer int    `yaml:"buffer"`
	Strict bool   `yaml:"strict"`
}

// HTTPConfig defines the JSON API listener.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// MCPServerConfig defines MCP server settings.
type MCPServerConfig struct {
	Addr string `yaml:"addr"`
	Port int    `yaml:"port"`
}

// DefaultConfig returns a single-host setup: SQLite files under data/sentio
// and a local Ollama model.
func DefaultConfig() *Config {
	return &Config{
		Index:    IndexConfig{DSN: "data/sentio/index.sqlite"},
		Articles: StoreConfig{DSN: "data/sentio/articles.sqlite"},
		Embedder: EmbedderConfig{Provider: ProviderOllama, Model: ollama.DefaultModel, Cache: CacheConfig{Size: 1024}},
		Sync:     SyncConfig{Mode: SyncInline, Buffer: 256},
		HTTP:     HTTPConfig{Addr: ":8000"},
	}
}

// LoadConfig reads a YAML config over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	path, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if err := cfg.Init(context.Background()); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Init expands paths and secrets, then validates.
func (c *Config) Init(ctx context.Context) error {
	if err := c.ExpandPaths(); err != nil {
		return err
	}
	var err error
	if c.Articles.Secret != "" {
		if c.Articles.DSN, err = ExpandDSNWithSecret(ctx, c.Articles.DSN, c.Articles.Secret); err != nil {
			return err
		}
	}
	if c.Embedder.Provider == ProviderHashing && c.Embedder.Dim == 0 {
		c.Embedder.Dim = hashing.DefaultDim
	}
	return c.Validate()
}

// ExpandPaths resolves a leading ~ in the index DSN, the cache snapshot and a
// file based articles DSN. Expanded paths are left unchanged.
func (c *Config) ExpandPaths() error {
	var err error
	if c.Index.DSN, err = expandUserPath(c.Index.DSN); err != nil {
		return err
	}
	if c.Embedder.Cache.Snapshot, err = expandUserPath(c.Embedder.Cache.Snapshot); err != nil {
		return err
	}
	if c.Articles.DSN, err = expandStoreDSN(c.Articles.DSN, c.Articles.Driver); err != nil {
		return err
	}
	return nil
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Index.DSN) == "" {
		return fmt.Errorf("config: index.dsn is required")
	}
	if strings.TrimSpace(c.Articles.DSN) == "" {
		return fmt.Errorf("config: articles.dsn is required")
	}
	switch c.Embedder.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderHashing:
	case ProviderVertexAI:
		if c.Embedder.Project == "" {
			return fmt.Errorf("config: embedder.project is required for vertexai")
		}
	default:
		return fmt.Errorf("config: unsupported embedder provider %q", c.Embedder.Provider)
	}
	switch c.Sync.Mode {
	case "", SyncInline, SyncAsync:
	default:
		return fmt.Errorf("config: unsupported sync mode %q", c.Sync.Mode)
	}
	return nil
}

func expandUserPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return path, nil
	}
	if strings.HasPrefix(trimmed, "file:") {
		rest := strings.TrimPrefix(trimmed, "file:")
		if strings.HasPrefix(rest, "~") {
			expanded, err := expandUserPath(rest)
			if err != nil {
				return "", err
			}
			return "file:" + expanded, nil
		}
		return path, nil
	}
	if trimmed[0] != '~' {
		return path, nil
	}
	if trimmed != "~" && !strings.HasPrefix(trimmed, "~/") {
		return "", fmt.Errorf("config: unsupported ~user path: %s", path)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(trimmed, "~")), nil
}

func expandStoreDSN(dsn, driver string) (string, error) {
	if dsn == "" {
		return dsn, nil
	}
	// Expand user path only for sqlite-like DSNs or plain paths.
	if driver == "sqlite" || dsn[0] == '~' || strings.HasPrefix(dsn, "file:") {
		return expandUserPath(dsn)
	}
	return dsn, nil
}

// ExpandDSNWithSecret loads a secret and expands placeholders in the DSN.
func ExpandDSNWithSecret(ctx context.Context, dsn, secretRef string) (string, error) {
	secretRef = strings.TrimSpace(secretRef)
	if secretRef == "" {
		return dsn, nil
	}
	if strings.TrimSpace(dsn) == "" {
		return "", fmt.Errorf("secret %q provided but dsn is empty", secretRef)
	}
	sec, err := secret.New().Lookup(ctx, secret.Resource(secretRef))
	if err != nil {
		return "", err
	}
	return sec.Expand(dsn), nil
}
