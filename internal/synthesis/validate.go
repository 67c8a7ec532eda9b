package synthesis

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/structa/switchboard/internal/qa"
)

// FallbackText is the canned response returned when the workflow cannot
// produce a grounded answer. It carries no citations; citations are never
// fabricated to mask a retrieval shortfall.
const FallbackText = "I don't have enough grounded information in the documentation to answer this reliably. Please refine the question or narrow it to a specific product and version."

// Decision is the validation gate's verdict on a synthesized answer.
type Decision int

// Validation decisions.
const (
	DecisionAccept Decision = iota
	DecisionRegenerate
	DecisionFallback
)

func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionRegenerate:
		return "regenerate"
	default:
		return "fallback"
	}
}

// ValidateConfig carries the guardrail thresholds and content screens.
// Thresholds are deployment configuration to be tuned empirically.
type ValidateConfig struct {
	// AcceptThreshold is the minimum confidence for an answer to pass.
	AcceptThreshold float64
	// FallbackThreshold is the confidence floor below which regeneration
	// is not worth attempting.
	FallbackThreshold float64
	// DisallowedPatterns are regular expressions whose match anywhere in
	// the answer text forces an immediate fallback.
	DisallowedPatterns []string
}

// DefaultValidateConfig returns the standard thresholds.
func DefaultValidateConfig() ValidateConfig {
	return ValidateConfig{AcceptThreshold: 0.6, FallbackThreshold: 0.25}
}

// Validator checks citation grounding, screens disallowed content, and
// computes the answer's confidence score.
type Validator struct {
	cfg      ValidateConfig
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// NewValidator compiles the disallowed-content patterns and returns a
// Validator.
func NewValidator(cfg ValidateConfig, logger *slog.Logger) (*Validator, error) {
	if cfg.AcceptThreshold == 0 && cfg.FallbackThreshold == 0 {
		cfg = ValidateConfig{
			AcceptThreshold:    DefaultValidateConfig().AcceptThreshold,
			FallbackThreshold:  DefaultValidateConfig().FallbackThreshold,
			DisallowedPatterns: cfg.DisallowedPatterns,
		}
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.DisallowedPatterns))
	for _, p := range cfg.DisallowedPatterns {
		compiled, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile disallowed pattern %q: %w", p, err)
		}
		patterns = append(patterns, compiled)
	}

	return &Validator{cfg: cfg, patterns: patterns, logger: logger.With("system", "validator")}, nil
}

// Validate stamps the answer and decides its fate. Confidence is the
// citation coverage ratio multiplied by the mean combined score of the
// cited candidates. regenerated marks that this query already spent its
// single regeneration; a failing answer then falls back unconditionally.
func (v *Validator) Validate(answer qa.Answer, mc qa.MergedContext, regenerated bool) (qa.Answer, Decision) {
	answer.Citations = resolvable(answer.Citations, mc)

	if v.disallowed(answer.Text) {
		answer.Confidence = 0
		answer.Status = qa.StatusFallback
		return answer, DecisionFallback
	}

	answer.Confidence = coverage(answer) * meanCitedScore(answer, mc)

	switch {
	case answer.Confidence >= v.cfg.AcceptThreshold:
		if regenerated {
			answer.Status = qa.StatusRegenerated
		} else {
			answer.Status = qa.StatusAccepted
		}
		return answer, DecisionAccept

	case answer.Confidence >= v.cfg.FallbackThreshold && !regenerated:
		return answer, DecisionRegenerate

	default:
		answer.Status = qa.StatusFallback
		return answer, DecisionFallback
	}
}

// Fallback returns the canned terminal answer.
func Fallback() qa.Answer {
	return qa.Answer{
		Text:   FallbackText,
		Status: qa.StatusFallback,
	}
}

// resolvable keeps only citations whose marker and chunk both resolve to
// the merged context entry they claim.
func resolvable(citations []qa.Citation, mc qa.MergedContext) []qa.Citation {
	var kept []qa.Citation
	for _, c := range citations {
		if c.Index < 1 || c.Index > len(mc.Citations) {
			continue
		}
		if mc.Citations[c.Index-1].ChunkID != c.ChunkID {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (v *Validator) disallowed(text string) bool {
	for _, p := range v.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// coverage is the fraction of the answer's claims carrying an inline
// citation marker. Claims are sentence-grained.
func coverage(answer qa.Answer) float64 {
	sentences := splitClaims(answer.Text)
	if len(sentences) == 0 {
		return 0
	}

	var cited int
	for _, s := range sentences {
		if markerPattern.MatchString(s) {
			cited++
		}
	}
	return float64(cited) / float64(len(sentences))
}

// meanCitedScore averages the combined score of the candidates the answer
// actually cites.
func meanCitedScore(answer qa.Answer, mc qa.MergedContext) float64 {
	if len(answer.Citations) == 0 {
		return 0
	}

	var sum float64
	for _, c := range answer.Citations {
		sum += mc.Citations[c.Index-1].CombinedScore
	}
	return sum / float64(len(answer.Citations))
}

var claimBoundary = regexp.MustCompile(`[.!?]\s+|\n+`)

// splitClaims breaks answer text into sentence-grained claims, ignoring
// fragments too short to assert anything.
func splitClaims(text string) []string {
	var claims []string
	for _, part := range claimBoundary.Split(text, -1) {
		part = strings.TrimSpace(part)
		if len(strings.Fields(part)) >= 3 {
			claims = append(claims, part)
		}
	}
	return claims
}
