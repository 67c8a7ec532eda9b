package config

import (
	"fmt"
	"os"
	"time"

	"github.com/structa/switchboard/internal/capability"
)

const (
	EnvEmbedURL   = "SWITCHBOARD_EMBED_URL"
	EnvVectorURL  = "SWITCHBOARD_VECTOR_URL"
	EnvLexicalURL = "SWITCHBOARD_LEXICAL_URL"
	EnvRerankURL  = "SWITCHBOARD_RERANK_URL"
)

// CapabilityConfig configures the retrieval-side capability endpoints and
// their shared-resource policy.
type CapabilityConfig struct {
	EmbedURL   string `toml:"embed_url"`
	VectorURL  string `toml:"vector_url"`
	LexicalURL string `toml:"lexical_url"`
	RerankURL  string `toml:"rerank_url"`
	Timeout    string `toml:"timeout"`
	MaxTries   uint   `toml:"max_tries"`

	EmbedCacheTTL string `toml:"embed_cache_ttl"`

	MaxEmbed    int `toml:"max_embed"`
	MaxSearch   int `toml:"max_search"`
	MaxRerank   int `toml:"max_rerank"`
	MaxGenerate int `toml:"max_generate"`
}

// Merge overwrites non-zero fields from overlay.
func (c *CapabilityConfig) Merge(overlay *CapabilityConfig) {
	for dst, src := range map[*string]string{
		&c.EmbedURL:      overlay.EmbedURL,
		&c.VectorURL:     overlay.VectorURL,
		&c.LexicalURL:    overlay.LexicalURL,
		&c.RerankURL:     overlay.RerankURL,
		&c.Timeout:       overlay.Timeout,
		&c.EmbedCacheTTL: overlay.EmbedCacheTTL,
	} {
		if src != "" {
			*dst = src
		}
	}
	if overlay.MaxTries != 0 {
		c.MaxTries = overlay.MaxTries
	}
	if overlay.MaxEmbed != 0 {
		c.MaxEmbed = overlay.MaxEmbed
	}
	if overlay.MaxSearch != 0 {
		c.MaxSearch = overlay.MaxSearch
	}
	if overlay.MaxRerank != 0 {
		c.MaxRerank = overlay.MaxRerank
	}
	if overlay.MaxGenerate != 0 {
		c.MaxGenerate = overlay.MaxGenerate
	}
}

// Finalize applies defaults and environment overrides, then validates.
func (c *CapabilityConfig) Finalize() error {
	if c.Timeout == "" {
		c.Timeout = "10s"
	}
	if c.MaxTries == 0 {
		c.MaxTries = 3
	}
	if c.EmbedCacheTTL == "" {
		c.EmbedCacheTTL = "10m"
	}

	for env, dst := range map[string]*string{
		EnvEmbedURL:   &c.EmbedURL,
		EnvVectorURL:  &c.VectorURL,
		EnvLexicalURL: &c.LexicalURL,
		EnvRerankURL:  &c.RerankURL,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	for name, value := range map[string]string{
		"timeout":         c.Timeout,
		"embed_cache_ttl": c.EmbedCacheTTL,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// HTTPSettings converts to the capability HTTP client config.
func (c *CapabilityConfig) HTTPSettings() capability.HTTPConfig {
	timeout, _ := time.ParseDuration(c.Timeout)
	return capability.HTTPConfig{
		EmbedURL:   c.EmbedURL,
		VectorURL:  c.VectorURL,
		LexicalURL: c.LexicalURL,
		RerankURL:  c.RerankURL,
		Timeout:    timeout,
		MaxTries:   c.MaxTries,
	}
}

// LimitSettings converts to the per-dependency concurrency caps.
func (c *CapabilityConfig) LimitSettings() capability.Limits {
	return capability.Limits{
		Embed:    c.MaxEmbed,
		Search:   c.MaxSearch,
		Rerank:   c.MaxRerank,
		Generate: c.MaxGenerate,
	}
}

// EmbedCacheTTLDuration returns the embedding cache TTL.
func (c *CapabilityConfig) EmbedCacheTTLDuration() time.Duration {
	d, _ := time.ParseDuration(c.EmbedCacheTTL)
	return d
}

// GenerationConfig configures the text-generation capability.
type GenerationConfig struct {
	Model     string `toml:"model"`
	MaxTokens int64  `toml:"max_tokens"`
}

// Merge overwrites non-zero fields from overlay.
func (c *GenerationConfig) Merge(overlay *GenerationConfig) {
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.MaxTokens != 0 {
		c.MaxTokens = overlay.MaxTokens
	}
}

// Finalize applies defaults.
func (c *GenerationConfig) Finalize() error {
	if c.Model == "" {
		c.Model = "claude-sonnet-4-5"
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 2048
	}
	return nil
}

// CheckpointConfig configures the workflow checkpoint sink.
type CheckpointConfig struct {
	// Path is the JSONL snapshot file; empty disables checkpointing.
	Path string `toml:"path"`
	// QueueDepth bounds the async sink's buffer.
	QueueDepth int `toml:"queue_depth"`
}

// Merge overwrites non-zero fields from overlay.
func (c *CheckpointConfig) Merge(overlay *CheckpointConfig) {
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
	if overlay.QueueDepth != 0 {
		c.QueueDepth = overlay.QueueDepth
	}
}

// Finalize applies defaults.
func (c *CheckpointConfig) Finalize() {
	if c.QueueDepth == 0 {
		c.QueueDepth = 256
	}
}

// DomainsConfig points at the knowledge-domain table.
type DomainsConfig struct {
	// Path overrides the embedded domain table; empty uses the default.
	Path string `toml:"path"`
}

// Merge overwrites non-zero fields from overlay.
func (c *DomainsConfig) Merge(overlay *DomainsConfig) {
	if overlay.Path != "" {
		c.Path = overlay.Path
	}
}

// Finalize is a no-op; an empty path selects the embedded table.
func (c *DomainsConfig) Finalize() {}
