// Package qa defines the core data model shared across the orchestration
// engine: the inbound Query, classification output, retrieval candidates,
// specialist results, merged context, and the final Answer.
package qa

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxQueryLength bounds inbound query text per the external contract.
const MaxQueryLength = 2000

// Sentinel errors for query validation. These are contract errors raised
// synchronously before a workflow starts, distinct from runtime dependency
// failures, which always surface as a fallback Answer instead.
var (
	ErrEmptyQuery   = errors.New("query text is empty")
	ErrQueryTooLong = errors.New("query text exceeds maximum length")
)

// Filters narrows retrieval to matching chunk metadata. Zero-valued fields
// are unconstrained. Filters are hard: they are applied at the search
// capability before scoring, never as a soft ranking signal.
type Filters struct {
	Product string `json:"product,omitempty"`
	Version string `json:"version,omitempty"`
	DocType string `json:"doc_type,omitempty"`
}

// Merge returns f overlaid with non-zero fields from other. Used by
// specialists to combine caller-supplied filters with domain scoping;
// the domain scope wins on conflict.
func (f Filters) Merge(other Filters) Filters {
	if other.Product != "" {
		f.Product = other.Product
	}
	if other.Version != "" {
		f.Version = other.Version
	}
	if other.DocType != "" {
		f.DocType = other.DocType
	}
	return f
}

// Query is the immutable input to a workflow execution. It is created at
// entry and flows by reference through every node; no component mutates it.
type Query struct {
	Text          string    `json:"text"`
	Filters       Filters   `json:"filters"`
	CorrelationID string    `json:"correlation_id"`
	Deadline      time.Time `json:"deadline"`
}

// NewQuery validates text, stamps a correlation identifier when the caller
// did not supply one, and derives the absolute deadline from timeout.
func NewQuery(text string, filters Filters, correlationID string, deadline time.Time) (Query, error) {
	q := Query{
		Text:          text,
		Filters:       filters,
		CorrelationID: correlationID,
		Deadline:      deadline,
	}

	if err := q.Validate(); err != nil {
		return Query{}, err
	}

	if q.CorrelationID == "" {
		q.CorrelationID = uuid.NewString()
	}

	return q, nil
}

// Validate enforces the inbound contract: non-empty text of bounded length.
func (q Query) Validate() error {
	if q.Text == "" {
		return ErrEmptyQuery
	}
	if len(q.Text) > MaxQueryLength {
		return fmt.Errorf("%w: %d > %d", ErrQueryTooLong, len(q.Text), MaxQueryLength)
	}
	return nil
}
