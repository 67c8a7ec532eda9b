// Package synthesis assembles the final answer from merged context via the
// text-generation capability and gates it through the validation/guardrail
// stage before it may leave the workflow.
package synthesis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/qa"
)

// ErrSynthesisFailed is returned when the generation capability is
// unreachable or produced nothing usable. Synthesis is mandatory, so the
// executor treats this as fatal for the query.
var ErrSynthesisFailed = errors.New("synthesis failed")

// markerPattern matches inline citation markers like [3].
var markerPattern = regexp.MustCompile(`\[(\d+)\]`)

// Synthesizer produces answer text grounded in a MergedContext.
type Synthesizer struct {
	gen    capability.Generator
	logger *slog.Logger
}

// NewSynthesizer builds a Synthesizer over the generation capability.
func NewSynthesizer(gen capability.Generator, logger *slog.Logger) *Synthesizer {
	return &Synthesizer{gen: gen, logger: logger.With("system", "synthesis")}
}

const regenerationNote = `

Your previous draft failed citation review. Every factual sentence must
carry an inline [n] citation from the context. Omit anything you cannot
ground.`

// Synthesize calls the generation capability with the merged context and
// returns an unvalidated answer. Citation markers that do not resolve to a
// context entry are stripped from the text rather than surfaced — the
// stage never invents citations to candidates absent from its input.
// Every detected conflict is surfaced as a caveat line referencing both
// sides.
func (s *Synthesizer) Synthesize(ctx context.Context, q qa.Query, mc qa.MergedContext, regeneration bool) (qa.Answer, error) {
	prompt := "Question: " + q.Text + "\n\n" + mc.Prompt
	if regeneration {
		prompt += regenerationNote
	}

	text, err := s.gen.Generate(ctx, prompt, mc.Citations)
	if err != nil {
		return qa.Answer{}, fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
	}
	if strings.TrimSpace(text) == "" {
		return qa.Answer{}, fmt.Errorf("%w: empty generation", ErrSynthesisFailed)
	}

	answer := s.extractCitations(text, mc)
	answer = addConflictCaveats(answer, mc)

	s.logger.DebugContext(ctx, "synthesis complete",
		"correlation_id", q.CorrelationID,
		"citations", len(answer.Citations),
		"regeneration", regeneration,
	)

	return answer, nil
}

// extractCitations parses inline [n] markers, keeps those resolving to a
// context entry, and removes the rest from the text.
func (s *Synthesizer) extractCitations(text string, mc qa.MergedContext) qa.Answer {
	seen := make(map[int]bool)
	var citations []qa.Citation

	cleaned := markerPattern.ReplaceAllStringFunc(text, func(marker string) string {
		n, err := strconv.Atoi(strings.Trim(marker, "[]"))
		if err != nil || n < 1 || n > len(mc.Citations) {
			return ""
		}
		if !seen[n] {
			seen[n] = true
			c := mc.Citations[n-1]
			citations = append(citations, qa.Citation{
				Index:      n,
				ChunkID:    c.ChunkID,
				DocumentID: c.DocumentID,
			})
		}
		return marker
	})

	return qa.Answer{Text: strings.TrimSpace(cleaned), Citations: citations}
}

// addConflictCaveats appends one caveat line per detected conflict so
// contradicting sources are surfaced instead of silently blended, and
// ensures both sides appear in the citation list. Resolved conflicts
// state which source the answer follows and why; unresolved ones warn
// the reader to verify independently.
func addConflictCaveats(answer qa.Answer, mc qa.MergedContext) qa.Answer {
	cited := make(map[int]bool, len(answer.Citations))
	for _, c := range answer.Citations {
		cited[c.Index] = true
	}

	for _, conflict := range mc.Conflicts {
		a, b := conflict.A+1, conflict.B+1

		if conflict.Unresolved() {
			answer.Text += fmt.Sprintf(
				"\n\nCaveat: sources [%d] and [%d] disagree on this point; verify against the current release before relying on either.",
				a, b,
			)
		} else {
			answer.Text += fmt.Sprintf(
				"\n\nCaveat: sources [%d] and [%d] disagree on this point; the answer follows [%d] as the %s.",
				a, b, conflict.Winner+1, winnerReason(conflict.Strategy),
			)
		}

		for _, n := range []int{a, b} {
			if !cited[n] {
				cited[n] = true
				c := mc.Citations[n-1]
				answer.Citations = append(answer.Citations, qa.Citation{
					Index:      n,
					ChunkID:    c.ChunkID,
					DocumentID: c.DocumentID,
				})
			}
		}
	}

	return answer
}

// winnerReason phrases the resolution strategy for a caveat line.
func winnerReason(strategy qa.Strategy) string {
	switch strategy {
	case qa.StrategyPreferNewer:
		return "more recently published source"
	default:
		return "stronger retrieval match"
	}
}
