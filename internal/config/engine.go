package config

import (
	"fmt"
	"time"

	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/engine"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/retrieval"
	"github.com/structa/switchboard/internal/synthesis"
)

// EngineConfig configures the workflow executor's timing.
type EngineConfig struct {
	DefaultTimeout string `toml:"default_timeout"`
	FanOutTimeout  string `toml:"fanout_timeout"`
	ClassifyBudget string `toml:"classify_budget"`
	RetrieveBudget string `toml:"retrieve_budget"`
	CrossRefBudget string `toml:"crossref_budget"`
	SynthBudget    string `toml:"synthesize_budget"`
	ValidateBudget string `toml:"validate_budget"`
}

// Merge overwrites non-zero fields from overlay.
func (c *EngineConfig) Merge(overlay *EngineConfig) {
	for dst, src := range map[*string]string{
		&c.DefaultTimeout: overlay.DefaultTimeout,
		&c.FanOutTimeout:  overlay.FanOutTimeout,
		&c.ClassifyBudget: overlay.ClassifyBudget,
		&c.RetrieveBudget: overlay.RetrieveBudget,
		&c.CrossRefBudget: overlay.CrossRefBudget,
		&c.SynthBudget:    overlay.SynthBudget,
		&c.ValidateBudget: overlay.ValidateBudget,
	} {
		if src != "" {
			*dst = src
		}
	}
}

// Finalize applies defaults and validates all durations.
func (c *EngineConfig) Finalize() error {
	defaults := engine.DefaultConfig()
	apply := func(field *string, fallback time.Duration) {
		if *field == "" {
			*field = fallback.String()
		}
	}
	apply(&c.DefaultTimeout, defaults.DefaultTimeout)
	apply(&c.FanOutTimeout, defaults.FanOutTimeout)
	apply(&c.ClassifyBudget, defaults.Budgets.Classify)
	apply(&c.RetrieveBudget, defaults.Budgets.Retrieve)
	apply(&c.CrossRefBudget, defaults.Budgets.CrossReference)
	apply(&c.SynthBudget, defaults.Budgets.Synthesize)
	apply(&c.ValidateBudget, defaults.Budgets.Validate)

	for name, value := range map[string]string{
		"default_timeout":   c.DefaultTimeout,
		"fanout_timeout":    c.FanOutTimeout,
		"classify_budget":   c.ClassifyBudget,
		"retrieve_budget":   c.RetrieveBudget,
		"crossref_budget":   c.CrossRefBudget,
		"synthesize_budget": c.SynthBudget,
		"validate_budget":   c.ValidateBudget,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// EngineSettings converts to the executor's config type.
func (c *EngineConfig) EngineSettings() engine.Config {
	d := func(s string) time.Duration {
		v, _ := time.ParseDuration(s)
		return v
	}
	return engine.Config{
		DefaultTimeout: d(c.DefaultTimeout),
		FanOutTimeout:  d(c.FanOutTimeout),
		Budgets: engine.Budgets{
			Classify:       d(c.ClassifyBudget),
			Retrieve:       d(c.RetrieveBudget),
			CrossReference: d(c.CrossRefBudget),
			Synthesize:     d(c.SynthBudget),
			Validate:       d(c.ValidateBudget),
		},
	}
}

// RetrievalConfig configures the hybrid retriever and reranking stage.
type RetrievalConfig struct {
	VectorWeight   float64 `toml:"vector_weight"`
	LexicalWeight  float64 `toml:"lexical_weight"`
	Limit          int     `toml:"limit"`
	MinScore       float64 `toml:"min_score"`
	MaxPerDocument int     `toml:"max_per_document"`
}

// Merge overwrites non-zero fields from overlay.
func (c *RetrievalConfig) Merge(overlay *RetrievalConfig) {
	if overlay.VectorWeight != 0 {
		c.VectorWeight = overlay.VectorWeight
	}
	if overlay.LexicalWeight != 0 {
		c.LexicalWeight = overlay.LexicalWeight
	}
	if overlay.Limit != 0 {
		c.Limit = overlay.Limit
	}
	if overlay.MinScore != 0 {
		c.MinScore = overlay.MinScore
	}
	if overlay.MaxPerDocument != 0 {
		c.MaxPerDocument = overlay.MaxPerDocument
	}
}

// Finalize applies defaults and validates the weights.
func (c *RetrievalConfig) Finalize() error {
	hybrid := retrieval.DefaultHybridConfig()
	rerank := retrieval.DefaultRerankConfig()

	if c.VectorWeight == 0 && c.LexicalWeight == 0 {
		c.VectorWeight = hybrid.VectorWeight
		c.LexicalWeight = hybrid.LexicalWeight
	}
	if c.Limit == 0 {
		c.Limit = 10
	}
	if c.MinScore == 0 {
		c.MinScore = rerank.MinScore
	}
	if c.MaxPerDocument == 0 {
		c.MaxPerDocument = rerank.MaxPerDocument
	}

	if c.VectorWeight < 0 || c.LexicalWeight < 0 {
		return fmt.Errorf("weights must be non-negative: vector %v, lexical %v", c.VectorWeight, c.LexicalWeight)
	}
	return nil
}

// HybridSettings converts to the retriever's config type.
func (c *RetrievalConfig) HybridSettings() retrieval.HybridConfig {
	return retrieval.HybridConfig{VectorWeight: c.VectorWeight, LexicalWeight: c.LexicalWeight}
}

// RerankSettings converts to the reranking stage's config type.
func (c *RetrievalConfig) RerankSettings() retrieval.RerankConfig {
	return retrieval.RerankConfig{MinScore: c.MinScore, MaxPerDocument: c.MaxPerDocument}
}

// CrossRefConfig configures conflict detection and resolution.
type CrossRefConfig struct {
	OverlapThreshold float64 `toml:"overlap_threshold"`
	Strategy         string  `toml:"strategy"`
}

// Merge overwrites non-zero fields from overlay.
func (c *CrossRefConfig) Merge(overlay *CrossRefConfig) {
	if overlay.OverlapThreshold != 0 {
		c.OverlapThreshold = overlay.OverlapThreshold
	}
	if overlay.Strategy != "" {
		c.Strategy = overlay.Strategy
	}
}

// Finalize applies defaults and validates the strategy tag.
func (c *CrossRefConfig) Finalize() error {
	defaults := crossref.DefaultConfig()
	if c.OverlapThreshold == 0 {
		c.OverlapThreshold = defaults.OverlapThreshold
	}
	if c.Strategy == "" {
		c.Strategy = string(defaults.Strategy)
	}

	switch qa.Strategy(c.Strategy) {
	case qa.StrategyPreferNewer, qa.StrategyPreferHigherScore, qa.StrategyFlagUnresolved:
		return nil
	default:
		return fmt.Errorf("unknown strategy %q", c.Strategy)
	}
}

// ResolverSettings converts to the resolver's config type.
func (c *CrossRefConfig) ResolverSettings() crossref.Config {
	return crossref.Config{
		OverlapThreshold: c.OverlapThreshold,
		Strategy:         qa.Strategy(c.Strategy),
	}
}

// ValidateConfig configures the guardrail stage.
type ValidateConfig struct {
	AcceptThreshold    float64  `toml:"accept_threshold"`
	FallbackThreshold  float64  `toml:"fallback_threshold"`
	DisallowedPatterns []string `toml:"disallowed_patterns"`
}

// Merge overwrites non-zero fields from overlay.
func (c *ValidateConfig) Merge(overlay *ValidateConfig) {
	if overlay.AcceptThreshold != 0 {
		c.AcceptThreshold = overlay.AcceptThreshold
	}
	if overlay.FallbackThreshold != 0 {
		c.FallbackThreshold = overlay.FallbackThreshold
	}
	if len(overlay.DisallowedPatterns) > 0 {
		c.DisallowedPatterns = overlay.DisallowedPatterns
	}
}

// Finalize applies defaults and checks threshold ordering.
func (c *ValidateConfig) Finalize() error {
	defaults := synthesis.DefaultValidateConfig()
	if c.AcceptThreshold == 0 {
		c.AcceptThreshold = defaults.AcceptThreshold
	}
	if c.FallbackThreshold == 0 {
		c.FallbackThreshold = defaults.FallbackThreshold
	}

	if c.FallbackThreshold >= c.AcceptThreshold {
		return fmt.Errorf("fallback_threshold %v must be below accept_threshold %v", c.FallbackThreshold, c.AcceptThreshold)
	}
	return nil
}

// ValidatorSettings converts to the guardrail stage's config type.
func (c *ValidateConfig) ValidatorSettings() synthesis.ValidateConfig {
	return synthesis.ValidateConfig{
		AcceptThreshold:    c.AcceptThreshold,
		FallbackThreshold:  c.FallbackThreshold,
		DisallowedPatterns: c.DisallowedPatterns,
	}
}
