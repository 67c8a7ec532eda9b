package capability

import (
	"context"

	"github.com/alitto/pond/v2"

	"github.com/structa/switchboard/internal/qa"
)

// Limits caps in-flight calls per downstream dependency, process-wide and
// independent of per-query concurrency, so a slow capability is never
// overwhelmed by query fan-out. Zero values fall back to defaults.
type Limits struct {
	Embed    int
	Search   int
	Rerank   int
	Generate int
}

func (l Limits) withDefaults() Limits {
	if l.Embed == 0 {
		l.Embed = 16
	}
	if l.Search == 0 {
		l.Search = 32
	}
	if l.Rerank == 0 {
		l.Rerank = 8
	}
	if l.Generate == 0 {
		l.Generate = 4
	}
	return l
}

// Limit wraps each client in c with a bounded worker pool. The vector and
// lexical searchers share the search pool since they typically front the
// same corpus store.
func Limit(c Clients, l Limits) Clients {
	l = l.withDefaults()

	embedPool := pond.NewResultPool[[]float32](l.Embed)
	searchPool := pond.NewResultPool[[]qa.Candidate](l.Search)
	rerankPool := pond.NewResultPool[[]qa.Candidate](l.Rerank)
	generatePool := pond.NewResultPool[string](l.Generate)

	out := c
	if c.Embedder != nil {
		out.Embedder = &limitedEmbedder{inner: c.Embedder, pool: embedPool}
	}
	if c.Vector != nil {
		out.Vector = &limitedVectorSearcher{inner: c.Vector, pool: searchPool}
	}
	if c.Lexical != nil {
		out.Lexical = &limitedLexicalSearcher{inner: c.Lexical, pool: searchPool}
	}
	if c.Reranker != nil {
		out.Reranker = &limitedReranker{inner: c.Reranker, pool: rerankPool}
	}
	if c.Generator != nil {
		out.Generator = &limitedGenerator{inner: c.Generator, pool: generatePool}
	}
	return out
}

type limitedEmbedder struct {
	inner Embedder
	pool  pond.ResultPool[[]float32]
}

func (e *limitedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.pool.SubmitErr(func() ([]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return e.inner.Embed(ctx, text)
	}).Wait()
}

type limitedVectorSearcher struct {
	inner VectorSearcher
	pool  pond.ResultPool[[]qa.Candidate]
}

func (s *limitedVectorSearcher) Search(ctx context.Context, vector []float32, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	return s.pool.SubmitErr(func() ([]qa.Candidate, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.inner.Search(ctx, vector, filters, limit)
	}).Wait()
}

type limitedLexicalSearcher struct {
	inner LexicalSearcher
	pool  pond.ResultPool[[]qa.Candidate]
}

func (s *limitedLexicalSearcher) SearchTerms(ctx context.Context, text string, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	return s.pool.SubmitErr(func() ([]qa.Candidate, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return s.inner.SearchTerms(ctx, text, filters, limit)
	}).Wait()
}

type limitedReranker struct {
	inner Reranker
	pool  pond.ResultPool[[]qa.Candidate]
}

func (r *limitedReranker) Rerank(ctx context.Context, candidates []qa.Candidate, queryText string) ([]qa.Candidate, error) {
	return r.pool.SubmitErr(func() ([]qa.Candidate, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return r.inner.Rerank(ctx, candidates, queryText)
	}).Wait()
}

type limitedGenerator struct {
	inner Generator
	pool  pond.ResultPool[string]
}

func (g *limitedGenerator) Generate(ctx context.Context, prompt string, contextChunks []qa.Candidate) (string, error) {
	return g.pool.SubmitErr(func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return g.inner.Generate(ctx, prompt, contextChunks)
	}).Wait()
}
