package qa

import "time"

// Intent categorizes what the user is trying to accomplish.
type Intent string

// Intent categories produced by the classifier.
const (
	IntentTroubleshooting Intent = "troubleshooting"
	IntentConfiguration   Intent = "configuration"
	IntentComparison      Intent = "comparison"
	IntentGeneral         Intent = "general"
)

// Complexity tiers a query by how much orchestration it needs.
type Complexity string

// Complexity tiers produced by the classifier.
const (
	ComplexitySimple       Complexity = "simple"
	ComplexityMultiHop     Complexity = "multi-hop"
	ComplexityCrossProduct Complexity = "cross-product"
)

// Classification is the intent classifier's read-only output. An empty
// Products set means "route to the default specialist", never a failure.
type Classification struct {
	Intent     Intent     `json:"intent"`
	Products   []string   `json:"products"`
	Complexity Complexity `json:"complexity"`
}

// Metadata describes the provenance of a retrieved chunk. Published is the
// source document's publication date when known; the zero value means
// absent and disables prefer-newer conflict resolution for that chunk.
type Metadata struct {
	Product   string    `json:"product"`
	Version   string    `json:"version"`
	DocType   string    `json:"doc_type,omitempty"`
	Section   string    `json:"section,omitempty"`
	Page      int       `json:"page,omitempty"`
	Published time.Time `json:"published,omitzero"`
}

// Candidate is one retrieved chunk with its scoring breakdown. Within one
// retrieval call chunk identifiers are unique; the hybrid retriever dedups
// on merge.
type Candidate struct {
	ChunkID       string   `json:"chunk_id"`
	DocumentID    string   `json:"document_id"`
	Text          string   `json:"text"`
	VectorScore   float64  `json:"vector_score"`
	LexicalScore  float64  `json:"lexical_score"`
	CombinedScore float64  `json:"combined_score"`
	Metadata      Metadata `json:"metadata"`
}

// SpecialistResult is one specialist's reranked candidate sequence. A
// specialist that failed contributes an empty candidate list and a non-empty
// Error instead of failing the route.
type SpecialistResult struct {
	Specialist string      `json:"specialist"`
	Candidates []Candidate `json:"candidates"`
	Confidence float64     `json:"confidence"`
	Error      string      `json:"error,omitempty"`
}

// Failed reports whether this specialist produced no usable result.
func (r SpecialistResult) Failed() bool {
	return r.Error != ""
}

// Strategy tags how a detected conflict was (or was not) resolved.
type Strategy string

// Conflict resolution strategies.
const (
	StrategyPreferNewer       Strategy = "prefer-newer"
	StrategyPreferHigherScore Strategy = "prefer-higher-score"
	StrategyFlagUnresolved    Strategy = "flag-unresolved"
)

// Conflict pairs two candidates asserting the same fact with differing
// values. Winner indexes into MergedContext.Citations when the conflict was
// resolved; -1 marks it unresolved and surfaces both sides to synthesis
// with a caveat.
type Conflict struct {
	A        int      `json:"a"`
	B        int      `json:"b"`
	Strategy Strategy `json:"strategy"`
	Winner   int      `json:"winner"`
}

// Unresolved reports whether the conflict could not be settled.
func (c Conflict) Unresolved() bool {
	return c.Winner < 0
}

// MergedContext is the cross-reference resolver's output: the deduplicated
// citation pool, detected conflicts, and the assembled prompt context fed
// to synthesis.
type MergedContext struct {
	Citations []Candidate `json:"citations"`
	Conflicts []Conflict  `json:"conflicts"`
	Prompt    string      `json:"prompt"`
}

// Status stamps how an answer reached its terminal state.
type Status string

// Validation statuses.
const (
	StatusAccepted    Status = "accepted"
	StatusRegenerated Status = "regenerated"
	StatusFallback    Status = "fallback"
)

// Citation ties an answer claim back to a retrieved candidate. Index is the
// 1-based marker as it appears in the answer text.
type Citation struct {
	Index      int    `json:"index"`
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
}

// Answer is the workflow's sole output. Execute always returns one: either
// an accepted synthesis, a regenerated-then-accepted synthesis, or the
// canned fallback. Citations never reference candidates absent from the
// MergedContext that produced the answer.
type Answer struct {
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Confidence float64    `json:"confidence"`
	Status     Status     `json:"status"`
}
