package synthesis_test

import (
	"testing"

	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/synthesis"
)

func validator(t *testing.T, cfg synthesis.ValidateConfig) *synthesis.Validator {
	t.Helper()
	v, err := synthesis.NewValidator(cfg, discard())
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}
	return v
}

func highScoreContext() qa.MergedContext {
	return qa.MergedContext{
		Citations: []qa.Candidate{
			{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9},
			{ChunkID: "c2", DocumentID: "d2", CombinedScore: 0.9},
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	v := validator(t, synthesis.DefaultValidateConfig())

	answer := qa.Answer{
		Text: "Set the timeout to 30 minutes [1]. Then restart the service [2].",
		Citations: []qa.Citation{
			{Index: 1, ChunkID: "c1", DocumentID: "d1"},
			{Index: 2, ChunkID: "c2", DocumentID: "d2"},
		},
	}

	got, decision := v.Validate(answer, highScoreContext(), false)
	if decision != synthesis.DecisionAccept {
		t.Fatalf("got decision %v, want accept (confidence %v)", decision, got.Confidence)
	}
	if got.Status != qa.StatusAccepted {
		t.Errorf("got status %q, want accepted", got.Status)
	}
}

func TestValidateAcceptAfterRegeneration(t *testing.T) {
	v := validator(t, synthesis.DefaultValidateConfig())

	answer := qa.Answer{
		Text:      "Set the timeout to 30 minutes [1].",
		Citations: []qa.Citation{{Index: 1, ChunkID: "c1", DocumentID: "d1"}},
	}

	got, decision := v.Validate(answer, highScoreContext(), true)
	if decision != synthesis.DecisionAccept {
		t.Fatalf("got decision %v, want accept", decision)
	}
	if got.Status != qa.StatusRegenerated {
		t.Errorf("got status %q, want regenerated", got.Status)
	}
}

func TestValidateRegenerateOnMiddlingConfidence(t *testing.T) {
	v := validator(t, synthesis.DefaultValidateConfig())

	// Half the claims uncited: coverage 0.5, mean score 0.9, confidence 0.45.
	answer := qa.Answer{
		Text:      "Set the timeout to 30 minutes [1]. This part has no grounding at all.",
		Citations: []qa.Citation{{Index: 1, ChunkID: "c1", DocumentID: "d1"}},
	}

	_, decision := v.Validate(answer, highScoreContext(), false)
	if decision != synthesis.DecisionRegenerate {
		t.Fatalf("got decision %v, want regenerate", decision)
	}

	// The same answer after the single regeneration must fall back.
	got, decision := v.Validate(answer, highScoreContext(), true)
	if decision != synthesis.DecisionFallback {
		t.Fatalf("got decision %v, want fallback after regeneration", decision)
	}
	if got.Status != qa.StatusFallback {
		t.Errorf("got status %q, want fallback", got.Status)
	}
}

func TestValidateFallbackOnNoCitations(t *testing.T) {
	v := validator(t, synthesis.DefaultValidateConfig())

	answer := qa.Answer{Text: "This answer cites nothing that can be verified anywhere."}

	got, decision := v.Validate(answer, highScoreContext(), false)
	if decision != synthesis.DecisionFallback {
		t.Fatalf("got decision %v, want fallback", decision)
	}
	if got.Confidence != 0 {
		t.Errorf("got confidence %v, want 0", got.Confidence)
	}
}

func TestValidateDropsUnresolvableCitations(t *testing.T) {
	v := validator(t, synthesis.DefaultValidateConfig())

	answer := qa.Answer{
		Text: "A claim with a forged citation [1].",
		Citations: []qa.Citation{
			{Index: 1, ChunkID: "not-in-context", DocumentID: "d9"},
			{Index: 9, ChunkID: "c1", DocumentID: "d1"},
		},
	}

	got, _ := v.Validate(answer, highScoreContext(), false)
	if len(got.Citations) != 0 {
		t.Errorf("got citations %+v, want all unresolvable ones dropped", got.Citations)
	}
}

func TestValidateDisallowedContent(t *testing.T) {
	v := validator(t, synthesis.ValidateConfig{
		AcceptThreshold:    0.6,
		FallbackThreshold:  0.25,
		DisallowedPatterns: []string{`(?i)api[_-]?key`},
	})

	answer := qa.Answer{
		Text:      "Paste your API_KEY into the config file [1].",
		Citations: []qa.Citation{{Index: 1, ChunkID: "c1", DocumentID: "d1"}},
	}

	got, decision := v.Validate(answer, highScoreContext(), false)
	if decision != synthesis.DecisionFallback {
		t.Fatalf("got decision %v, want fallback for disallowed content", decision)
	}
	if got.Confidence != 0 || got.Status != qa.StatusFallback {
		t.Errorf("got confidence %v status %q, want zeroed fallback", got.Confidence, got.Status)
	}
}

func TestNewValidatorRejectsBadPattern(t *testing.T) {
	if _, err := synthesis.NewValidator(synthesis.ValidateConfig{
		AcceptThreshold:    0.6,
		FallbackThreshold:  0.25,
		DisallowedPatterns: []string{`([`},
	}, discard()); err == nil {
		t.Error("expected an error for an uncompilable pattern")
	}
}

func TestFallbackAnswer(t *testing.T) {
	fb := synthesis.Fallback()
	if fb.Status != qa.StatusFallback {
		t.Errorf("got status %q, want fallback", fb.Status)
	}
	if len(fb.Citations) != 0 {
		t.Errorf("fallback must not carry citations, got %d", len(fb.Citations))
	}
	if fb.Text != synthesis.FallbackText {
		t.Errorf("got %q, want the canned text", fb.Text)
	}
}
