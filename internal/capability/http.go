package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/structa/switchboard/internal/qa"
)

// HTTPConfig configures the JSON-over-HTTP capability clients.
type HTTPConfig struct {
	EmbedURL   string
	VectorURL  string
	LexicalURL string
	RerankURL  string
	Timeout    time.Duration
	MaxTries   uint
}

// NewHTTPClients builds the retrieval-side capability clients against the
// configured endpoints. The returned bundle has no Generator; generation is
// wired separately (see NewAnthropicGenerator).
func NewHTTPClients(cfg HTTPConfig) Clients {
	hc := &http.Client{Timeout: cfg.Timeout}
	tries := cfg.MaxTries
	if tries == 0 {
		tries = 3
	}

	return Clients{
		Embedder: &httpEmbedder{client: hc, url: cfg.EmbedURL, tries: tries},
		Vector:   &httpVectorSearcher{client: hc, url: cfg.VectorURL, tries: tries},
		Lexical:  &httpLexicalSearcher{client: hc, url: cfg.LexicalURL, tries: tries},
		Reranker: &httpReranker{client: hc, url: cfg.RerankURL, tries: tries},
	}
}

// postJSON issues one POST with a JSON body and decodes the JSON response
// into out, retrying transient failures with exponential backoff. The
// caller's context bounds the whole retry loop, so a node budget expiring
// cancels any in-flight retry.
func postJSON(ctx context.Context, client *http.Client, url string, in, out any, tries uint) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, resp.Body)
			return struct{}{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return struct{}{}, backoff.Permanent(fmt.Errorf("%w: %w", ErrBadResponse, err))
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(tries),
	)
	return err
}

type httpEmbedder struct {
	client *http.Client
	url    string
	tries  uint
}

func (e *httpEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	req := struct {
		Text string `json:"text"`
	}{Text: text}

	var resp struct {
		Vector []float32 `json:"vector"`
	}

	if err := postJSON(ctx, e.client, e.url, req, &resp, e.tries); err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	if len(resp.Vector) == 0 {
		return nil, fmt.Errorf("embed: %w: empty vector", ErrBadResponse)
	}
	return resp.Vector, nil
}

type httpVectorSearcher struct {
	client *http.Client
	url    string
	tries  uint
}

func (s *httpVectorSearcher) Search(ctx context.Context, vector []float32, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	req := struct {
		Vector  []float32  `json:"vector"`
		Filters qa.Filters `json:"filters"`
		Limit   int        `json:"limit"`
	}{Vector: vector, Filters: filters, Limit: limit}

	var resp struct {
		Candidates []qa.Candidate `json:"candidates"`
	}

	if err := postJSON(ctx, s.client, s.url, req, &resp, s.tries); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return resp.Candidates, nil
}

type httpLexicalSearcher struct {
	client *http.Client
	url    string
	tries  uint
}

func (s *httpLexicalSearcher) SearchTerms(ctx context.Context, text string, filters qa.Filters, limit int) ([]qa.Candidate, error) {
	req := struct {
		Text    string     `json:"text"`
		Filters qa.Filters `json:"filters"`
		Limit   int        `json:"limit"`
	}{Text: text, Filters: filters, Limit: limit}

	var resp struct {
		Candidates []qa.Candidate `json:"candidates"`
	}

	if err := postJSON(ctx, s.client, s.url, req, &resp, s.tries); err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	return resp.Candidates, nil
}

type httpReranker struct {
	client *http.Client
	url    string
	tries  uint
}

func (r *httpReranker) Rerank(ctx context.Context, candidates []qa.Candidate, queryText string) ([]qa.Candidate, error) {
	req := struct {
		Query      string         `json:"query"`
		Candidates []qa.Candidate `json:"candidates"`
	}{Query: queryText, Candidates: candidates}

	var resp struct {
		Candidates []qa.Candidate `json:"candidates"`
	}

	if err := postJSON(ctx, r.client, r.url, req, &resp, r.tries); err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(resp.Candidates) != len(candidates) {
		return nil, fmt.Errorf("rerank: %w: got %d candidates, sent %d", ErrBadResponse, len(resp.Candidates), len(candidates))
	}
	return resp.Candidates, nil
}
