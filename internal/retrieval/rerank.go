package retrieval

import (
	"context"
	"log/slog"

	"github.com/structa/switchboard/internal/capability"
	"github.com/structa/switchboard/internal/qa"
)

// RerankConfig carries the reranking stage's post-processing knobs.
type RerankConfig struct {
	// MinScore drops candidates whose combined score falls below it.
	MinScore float64
	// MaxPerDocument caps how many candidates from one source document may
	// appear before further ones are demoted to the tail.
	MaxPerDocument int
}

// DefaultRerankConfig returns the standard cutoff and diversity cap.
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{MinScore: 0.1, MaxPerDocument: 2}
}

// Reranker reorders a retrieved candidate set using the cross-encoder
// reranking capability, in one batched call per specialist. On reranker
// failure or timeout it falls back to the hybrid retriever's ordering
// unchanged, degrading rather than failing the specialist.
type Reranker struct {
	client capability.Reranker
	cfg    RerankConfig
	logger *slog.Logger
}

// NewReranker builds a Reranker. client may be nil, which permanently
// selects the fallback path.
func NewReranker(client capability.Reranker, cfg RerankConfig, logger *slog.Logger) *Reranker {
	if cfg.MaxPerDocument == 0 {
		cfg.MaxPerDocument = DefaultRerankConfig().MaxPerDocument
	}
	return &Reranker{
		client: client,
		cfg:    cfg,
		logger: logger.With("system", "reranker"),
	}
}

// Rerank returns the candidates in relevance order with the score cutoff
// and per-document diversity cap applied. The input slice is not mutated.
func (r *Reranker) Rerank(ctx context.Context, candidates []qa.Candidate, queryText string) []qa.Candidate {
	if len(candidates) == 0 {
		return nil
	}

	if r.client == nil {
		return candidates
	}

	reranked, err := r.client.Rerank(ctx, candidates, queryText)
	if err != nil {
		r.logger.WarnContext(ctx, "rerank failed, using retriever order", "error", err)
		return candidates
	}

	return r.postProcess(reranked)
}

// postProcess enforces the minimum combined score (below-threshold
// candidates are dropped, not merely reordered) and demotes candidates
// whose source document already placed MaxPerDocument higher-ranked
// results.
func (r *Reranker) postProcess(candidates []qa.Candidate) []qa.Candidate {
	kept := make([]qa.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.CombinedScore >= r.cfg.MinScore {
			kept = append(kept, c)
		}
	}

	perDoc := make(map[string]int, len(kept))
	ordered := make([]qa.Candidate, 0, len(kept))
	var demoted []qa.Candidate

	for _, c := range kept {
		if perDoc[c.DocumentID] >= r.cfg.MaxPerDocument {
			demoted = append(demoted, c)
			continue
		}
		perDoc[c.DocumentID]++
		ordered = append(ordered, c)
	}

	return append(ordered, demoted...)
}
