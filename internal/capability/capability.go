// Package capability defines the engine's boundary to its downstream
// dependencies: embedding, vector search, lexical search, reranking, and
// text generation. Each is a remote call with its own latency and failure
// profile; the orchestration core consumes them as stateless interfaces
// that are safe for concurrent use across all in-flight queries.
package capability

import (
	"context"
	"errors"

	"github.com/structa/switchboard/internal/qa"
)

// Sentinel errors for capability calls.
var (
	ErrUnavailable = errors.New("capability unavailable")
	ErrBadResponse = errors.New("capability returned malformed response")
)

// Embedder turns query text into a provider-defined fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSearcher runs similarity search over the chunk corpus. Filters are
// applied at the source, before scoring.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, filters qa.Filters, limit int) ([]qa.Candidate, error)
}

// LexicalSearcher runs term-overlap search over the chunk corpus.
type LexicalSearcher interface {
	SearchTerms(ctx context.Context, text string, filters qa.Filters, limit int) ([]qa.Candidate, error)
}

// Reranker reorders a candidate set by cross-encoder relevance against the
// query. Called once per specialist with the full batch, never per
// candidate.
type Reranker interface {
	Rerank(ctx context.Context, candidates []qa.Candidate, queryText string) ([]qa.Candidate, error)
}

// Generator produces answer text from a prompt and its grounding chunks.
type Generator interface {
	Generate(ctx context.Context, prompt string, contextChunks []qa.Candidate) (string, error)
}

// Clients bundles the capability set the engine is constructed with.
// All fields except Reranker are required; a nil Reranker permanently
// selects the retriever-order fallback path.
type Clients struct {
	Embedder  Embedder
	Vector    VectorSearcher
	Lexical   LexicalSearcher
	Reranker  Reranker
	Generator Generator
}
