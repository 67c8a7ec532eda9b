// Package retrieval implements the hybrid ranked-retrieval algorithm:
// concurrent vector and lexical search merged into one deterministic
// ordering, followed by a reranking stage with score cutoff and source
// diversity enforcement.
package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/qa"
)

// ErrRetrievalFailed is returned when both search methods fail.
var ErrRetrievalFailed = errors.New("retrieval failed")

// HybridConfig carries the merge weights. Weights apply to each method's
// native score; a candidate found by only one method keeps that method's
// score scaled by its weight.
type HybridConfig struct {
	VectorWeight  float64
	LexicalWeight float64
}

// DefaultHybridConfig returns the standard 0.7 vector / 0.3 lexical split.
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{VectorWeight: 0.7, LexicalWeight: 0.3}
}

// Hybrid combines vector similarity and lexical term-overlap search against
// the chunk corpus. Safe for concurrent use.
type Hybrid struct {
	embedder capability.Embedder
	vector   capability.VectorSearcher
	lexical  capability.LexicalSearcher
	cfg      HybridConfig
	logger   *slog.Logger
}

// NewHybrid builds a Hybrid retriever over the given capability clients.
func NewHybrid(
	embedder capability.Embedder,
	vector capability.VectorSearcher,
	lexical capability.LexicalSearcher,
	cfg HybridConfig,
	logger *slog.Logger,
) *Hybrid {
	if cfg.VectorWeight == 0 && cfg.LexicalWeight == 0 {
		cfg = DefaultHybridConfig()
	}
	return &Hybrid{
		embedder: embedder,
		vector:   vector,
		lexical:  lexical,
		cfg:      cfg,
		logger:   logger.With("system", "retriever"),
	}
}

// Retrieve issues both search methods concurrently, merges by chunk
// identifier, and returns up to limit candidates ordered by combined score
// descending with a stable tie-break (lexical score, then chunk id). One
// method failing degrades to the other's results; both failing is an error.
func (h *Hybrid) Retrieve(ctx context.Context, text string, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	var (
		vecResults []qa.Candidate
		vecErr     error
		lexResults []qa.Candidate
		lexErr     error
	)

	// Both branches always run to completion; degradation is decided
	// after the join, so errgroup's fail-fast path is bypassed by
	// capturing errors instead of returning them.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		vecResults, vecErr = h.vectorSearch(gctx, text, filters, limit)
		return nil
	})

	g.Go(func() error {
		lexResults, lexErr = h.lexical.SearchTerms(gctx, text, filters, limit)
		return nil
	})

	g.Wait()

	if vecErr != nil && lexErr != nil {
		return nil, fmt.Errorf("%w: vector: %w; lexical: %w", ErrRetrievalFailed, vecErr, lexErr)
	}
	if vecErr != nil {
		h.logger.WarnContext(ctx, "vector search failed, lexical only", "error", vecErr)
	}
	if lexErr != nil {
		h.logger.WarnContext(ctx, "lexical search failed, vector only", "error", lexErr)
	}

	return h.merge(vecResults, lexResults, limit), nil
}

func (h *Hybrid) vectorSearch(ctx context.Context, text string, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	vector, err := h.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	return h.vector.Search(ctx, vector, filters, limit)
}

// merge joins the two result sets by chunk identifier. A candidate present
// in both gets combined = wv*vector + wl*lexical; a candidate unique to one
// method keeps that method's weighted score. The output ordering is fully
// deterministic for identical inputs.
func (h *Hybrid) merge(vec, lex []qa.Candidate, limit int) []qa.Candidate {
	byChunk := make(map[string]qa.Candidate, len(vec)+len(lex))

	for _, c := range vec {
		c.LexicalScore = 0
		byChunk[c.ChunkID] = c
	}

	for _, c := range lex {
		if existing, ok := byChunk[c.ChunkID]; ok {
			existing.LexicalScore = c.LexicalScore
			byChunk[c.ChunkID] = existing
			continue
		}
		c.VectorScore = 0
		byChunk[c.ChunkID] = c
	}

	merged := make([]qa.Candidate, 0, len(byChunk))
	for _, c := range byChunk {
		c.CombinedScore = h.cfg.VectorWeight*c.VectorScore + h.cfg.LexicalWeight*c.LexicalScore
		merged = append(merged, c)
	}

	slices.SortFunc(merged, func(a, b qa.Candidate) int {
		if c := cmp.Compare(b.CombinedScore, a.CombinedScore); c != 0 {
			return c
		}
		if c := cmp.Compare(b.LexicalScore, a.LexicalScore); c != 0 {
			return c
		}
		return cmp.Compare(a.ChunkID, b.ChunkID)
	})

	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
