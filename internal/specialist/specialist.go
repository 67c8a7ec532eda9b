// Package specialist implements the domain-scoped retrieval agents, the
// registry that dispatches to them, and the parallel fan-out that invokes
// several specialists for one query.
package specialist

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/structa/switchboard/internal/classify"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/retrieval"
)

// Agent is one knowledge domain's retrieval capability. Implementations
// are idempotent and side-effect-free; retrying is always safe.
type Agent interface {
	Retrieve(ctx context.Context, q qa.Query) qa.SpecialistResult
}

// retrievalAgent wraps the hybrid retriever and reranking stage with
// domain-specific query rewriting and domain-scoped metadata filters.
type retrievalAgent struct {
	domain    classify.Domain
	retriever *retrieval.Hybrid
	reranker  *retrieval.Reranker
	limit     int
	logger    *slog.Logger
}

// NewAgent builds a retrieval agent for domain. limit bounds the candidate
// set fetched per search method.
func NewAgent(
	domain classify.Domain,
	retriever *retrieval.Hybrid,
	reranker *retrieval.Reranker,
	limit int,
	logger *slog.Logger,
) Agent {
	if limit <= 0 {
		limit = 10
	}
	return &retrievalAgent{
		domain:    domain,
		retriever: retriever,
		reranker:  reranker,
		limit:     limit,
		logger:    logger.With("system", "specialist", "domain", domain.Key),
	}
}

func (a *retrievalAgent) Retrieve(ctx context.Context, q qa.Query) qa.SpecialistResult {
	result := qa.SpecialistResult{Specialist: a.domain.Key}

	text := a.rewrite(q.Text)
	filters := q.Filters.Merge(qa.Filters{Product: a.domain.Product})

	candidates, err := a.retriever.Retrieve(ctx, text, filters, a.limit)
	if err != nil {
		result.Error = fmt.Sprintf("retrieve: %v", err)
		return result
	}

	result.Candidates = a.reranker.Rerank(ctx, candidates, q.Text)
	result.Confidence = localConfidence(result.Candidates)

	a.logger.DebugContext(ctx, "specialist retrieval complete",
		"correlation_id", q.CorrelationID,
		"candidates", len(result.Candidates),
		"confidence", result.Confidence,
	)

	return result
}

// errorCodePattern matches bare diagnostic codes like "ERR-1042" or
// "0x80070005" that retrieve poorly without a domain qualifier.
var errorCodePattern = regexp.MustCompile(`\b([A-Z]{2,6}-\d{2,6}|0x[0-9A-Fa-f]{4,8})\b`)

// rewrite expands the raw query into a domain-qualified search string:
// bare error codes get the product name and "error code" appended, and
// queries that never mention the product are prefixed with it so lexical
// search lands in the right corpus slice.
func (a *retrievalAgent) rewrite(text string) string {
	if a.domain.Product == "" {
		return text
	}

	rewritten := text
	if code := errorCodePattern.FindString(text); code != "" {
		rewritten = fmt.Sprintf("%s %s error code %s", rewritten, a.domain.Product, code)
	}

	if !strings.Contains(strings.ToLower(rewritten), strings.ToLower(a.domain.Product)) {
		rewritten = a.domain.Product + " " + rewritten
	}

	return rewritten
}

// localConfidence is the mean combined score of the top candidates, the
// specialist's own estimate of how well its corpus covered the query.
func localConfidence(candidates []qa.Candidate) float64 {
	if len(candidates) == 0 {
		return 0
	}

	top := candidates
	if len(top) > 5 {
		top = top[:5]
	}

	var sum float64
	for _, c := range top {
		sum += c.CombinedScore
	}
	return sum / float64(len(top))
}
