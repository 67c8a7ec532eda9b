// Package crossref correlates candidate sets from multiple specialists:
// it deduplicates citations across domains, detects contradicting
// candidates, resolves each conflict by the configured strategy, and
// assembles the prompt context handed to synthesis.
package crossref

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/structa/switchboard/internal/qa"
)

// Config carries the resolver's tuning values. Both are deployment
// configuration, never hard-coded at call sites.
type Config struct {
	// OverlapThreshold is the minimum token overlap (Jaccard over
	// non-numeric tokens) for two candidates to be considered statements
	// of the same fact.
	OverlapThreshold float64
	// Strategy selects the head of the resolution chain; the chain always
	// falls through newer → higher score → unresolved.
	Strategy qa.Strategy
}

// DefaultConfig returns the standard threshold and strategy.
func DefaultConfig() Config {
	return Config{OverlapThreshold: 0.5, Strategy: qa.StrategyPreferNewer}
}

// Resolver merges specialist results into a single cited context.
type Resolver struct {
	cfg    Config
	logger *slog.Logger
}

// New builds a Resolver.
func New(cfg Config, logger *slog.Logger) *Resolver {
	if cfg.OverlapThreshold == 0 {
		cfg.OverlapThreshold = DefaultConfig().OverlapThreshold
	}
	if cfg.Strategy == "" {
		cfg.Strategy = DefaultConfig().Strategy
	}
	return &Resolver{cfg: cfg, logger: logger.With("system", "crossref")}
}

// Resolve merges two or more specialist results. The output is independent
// of the order results arrived in: candidates are keyed and sorted by
// stable identifiers before conflicts are detected.
func (r *Resolver) Resolve(results []qa.SpecialistResult) qa.MergedContext {
	citations := union(results)
	conflicts := r.detectConflicts(citations)

	return qa.MergedContext{
		Citations: citations,
		Conflicts: conflicts,
		Prompt:    assembleContext(citations),
	}
}

// Passthrough builds a MergedContext from a single specialist's result,
// skipping conflict detection entirely.
func Passthrough(result qa.SpecialistResult) qa.MergedContext {
	citations := union([]qa.SpecialistResult{result})
	return qa.MergedContext{
		Citations: citations,
		Prompt:    assembleContext(citations),
	}
}

// union collects all candidates across specialists, deduplicating by chunk
// identifier (the higher combined score wins) and ordering by combined
// score descending with chunk id as the stable tie-break.
func union(results []qa.SpecialistResult) []qa.Candidate {
	byChunk := make(map[string]qa.Candidate)
	for _, res := range results {
		for _, c := range res.Candidates {
			if existing, ok := byChunk[c.ChunkID]; !ok || c.CombinedScore > existing.CombinedScore {
				byChunk[c.ChunkID] = c
			}
		}
	}

	merged := make([]qa.Candidate, 0, len(byChunk))
	for _, c := range byChunk {
		merged = append(merged, c)
	}

	slices.SortFunc(merged, func(a, b qa.Candidate) int {
		if c := cmp.Compare(b.CombinedScore, a.CombinedScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})

	return merged
}

// detectConflicts finds pairs of candidates from different source
// documents that assert the same fact with differing key figures: their
// non-numeric token overlap clears the threshold while their numeric
// tokens disagree.
func (r *Resolver) detectConflicts(citations []qa.Candidate) []qa.Conflict {
	var conflicts []qa.Conflict

	for i := 0; i < len(citations); i++ {
		for j := i + 1; j < len(citations); j++ {
			a, b := citations[i], citations[j]
			if a.DocumentID == b.DocumentID {
				continue
			}

			aWords, aFigures := tokenize(a.Text)
			bWords, bFigures := tokenize(b.Text)

			if jaccard(aWords, bWords) < r.cfg.OverlapThreshold {
				continue
			}
			if len(aFigures) == 0 || len(bFigures) == 0 || equalSets(aFigures, bFigures) {
				continue
			}

			conflicts = append(conflicts, r.resolve(citations, i, j))
		}
	}

	return conflicts
}

// resolve settles one conflict starting at the configured strategy:
// prefer-newer falls through to score when publication dates cannot
// decide, prefer-higher-score skips the date comparison, and
// flag-unresolved never resolves at all. The winner is recorded as an
// index into the citation set; -1 flags the conflict unresolved,
// surfacing both sides to synthesis with a caveat.
func (r *Resolver) resolve(citations []qa.Candidate, i, j int) qa.Conflict {
	a, b := citations[i], citations[j]
	conflict := qa.Conflict{A: i, B: j}

	if r.cfg.Strategy == qa.StrategyFlagUnresolved {
		conflict.Strategy = qa.StrategyFlagUnresolved
		conflict.Winner = -1
		return conflict
	}

	if r.cfg.Strategy == qa.StrategyPreferNewer {
		aDate, bDate := a.Metadata.Published, b.Metadata.Published
		if !aDate.IsZero() && !bDate.IsZero() && !aDate.Equal(bDate) {
			conflict.Strategy = qa.StrategyPreferNewer
			if aDate.After(bDate) {
				conflict.Winner = i
			} else {
				conflict.Winner = j
			}
			return conflict
		}
	}

	if a.CombinedScore != b.CombinedScore {
		conflict.Strategy = qa.StrategyPreferHigherScore
		if a.CombinedScore > b.CombinedScore {
			conflict.Winner = i
		} else {
			conflict.Winner = j
		}
		return conflict
	}

	conflict.Strategy = qa.StrategyFlagUnresolved
	conflict.Winner = -1
	return conflict
}

// assembleContext renders the citation pool as the numbered context block
// synthesis prompts with. Markers are 1-based to match inline [n]
// citations in generated answers.
func assembleContext(citations []qa.Candidate) string {
	var b strings.Builder
	for i, c := range citations {
		fmt.Fprintf(&b, "[%d] %s %s", i+1, c.Metadata.Product, c.Metadata.Version)
		if c.Metadata.Section != "" {
			fmt.Fprintf(&b, " — %s", c.Metadata.Section)
		}
		fmt.Fprintf(&b, "\n%s\n\n", c.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func tokenize(text string) (words, figures map[string]struct{}) {
	words = make(map[string]struct{})
	figures = make(map[string]struct{})

	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r == '.' || r == '-')
	}) {
		tok = strings.Trim(tok, ".-")
		if tok == "" {
			continue
		}
		if strings.ContainsAny(tok, "0123456789") {
			figures[tok] = struct{}{}
		} else {
			words[tok] = struct{}{}
		}
	}
	return words, figures
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	var intersection int
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}

	return float64(intersection) / float64(len(a)+len(b)-intersection)
}

func equalSets(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for tok := range a {
		if _, ok := b[tok]; !ok {
			return false
		}
	}
	return true
}
