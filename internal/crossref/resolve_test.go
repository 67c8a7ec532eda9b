package crossref_test

import (
	"log/slog"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/qa"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func resolver(t *testing.T, strategy qa.Strategy) *crossref.Resolver {
	t.Helper()
	return crossref.New(crossref.Config{OverlapThreshold: 0.5, Strategy: strategy}, discard())
}

func published(year int) qa.Metadata {
	return qa.Metadata{Product: "Product A", Version: "1.0", Published: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func TestResolveDetectsNumericConflict(t *testing.T) {
	// Same statement, different figure, different source documents.
	a := qa.Candidate{
		ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9,
		Text:     "The default session timeout is 30 minutes for all clients.",
		Metadata: published(2024),
	}
	b := qa.Candidate{
		ChunkID: "c2", DocumentID: "d2", CombinedScore: 0.8,
		Text:     "The default session timeout is 60 minutes for all clients.",
		Metadata: published(2023),
	}

	mc := resolver(t, qa.StrategyPreferNewer).Resolve([]qa.SpecialistResult{
		{Specialist: "product-a", Candidates: []qa.Candidate{a}},
		{Specialist: "product-b", Candidates: []qa.Candidate{b}},
	})

	if len(mc.Conflicts) != 1 {
		t.Fatalf("got %d conflicts, want 1", len(mc.Conflicts))
	}

	conflict := mc.Conflicts[0]
	if conflict.Strategy != qa.StrategyPreferNewer {
		t.Errorf("got strategy %q, want prefer-newer", conflict.Strategy)
	}
	if mc.Citations[conflict.Winner].ChunkID != "c1" {
		t.Errorf("got winner %q, want the newer chunk c1", mc.Citations[conflict.Winner].ChunkID)
	}
}

func TestResolveNoConflictCases(t *testing.T) {
	tests := []struct {
		name string
		a, b qa.Candidate
	}{
		{
			"same document never conflicts",
			qa.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "The limit is 10 requests per second."},
			qa.Candidate{ChunkID: "c2", DocumentID: "d1", Text: "The limit is 20 requests per second."},
		},
		{
			"unrelated statements",
			qa.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "Certificates rotate every 90 days automatically."},
			qa.Candidate{ChunkID: "c2", DocumentID: "d2", Text: "The dashboard refreshes charts in 5 second intervals."},
		},
		{
			"matching figures agree",
			qa.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "The default session timeout is 30 minutes."},
			qa.Candidate{ChunkID: "c2", DocumentID: "d2", Text: "The default session timeout is 30 minutes."},
		},
		{
			"no figures at all",
			qa.Candidate{ChunkID: "c1", DocumentID: "d1", Text: "Sessions expire after the configured idle timeout."},
			qa.Candidate{ChunkID: "c2", DocumentID: "d2", Text: "Sessions expire after the configured idle timeout elapses."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := resolver(t, qa.StrategyPreferNewer).Resolve([]qa.SpecialistResult{
				{Candidates: []qa.Candidate{tt.a}},
				{Candidates: []qa.Candidate{tt.b}},
			})
			if len(mc.Conflicts) != 0 {
				t.Errorf("got %d conflicts, want none", len(mc.Conflicts))
			}
		})
	}
}

func TestResolveStrategyChain(t *testing.T) {
	base := "The default session timeout is %s minutes for all clients."
	conflicting := func(chunk, doc, figure string, score float64, pub time.Time) qa.Candidate {
		return qa.Candidate{
			ChunkID: chunk, DocumentID: doc, CombinedScore: score,
			Text:     strings.Replace(base, "%s", figure, 1),
			Metadata: qa.Metadata{Published: pub},
		}
	}

	t.Run("missing dates fall through to score", func(t *testing.T) {
		a := conflicting("c1", "d1", "30", 0.9, time.Time{})
		b := conflicting("c2", "d2", "60", 0.7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

		mc := resolver(t, qa.StrategyPreferNewer).Resolve([]qa.SpecialistResult{
			{Candidates: []qa.Candidate{a, b}},
		})
		if len(mc.Conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(mc.Conflicts))
		}
		conflict := mc.Conflicts[0]
		if conflict.Strategy != qa.StrategyPreferHigherScore {
			t.Errorf("got strategy %q, want prefer-higher-score", conflict.Strategy)
		}
		if mc.Citations[conflict.Winner].ChunkID != "c1" {
			t.Errorf("got winner %q, want the higher-scored chunk", mc.Citations[conflict.Winner].ChunkID)
		}
	})

	t.Run("flag-unresolved never resolves", func(t *testing.T) {
		// Dates and scores would both decide this pair; the configured
		// strategy must still leave it unresolved.
		a := conflicting("c1", "d1", "30", 0.9, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
		b := conflicting("c2", "d2", "60", 0.7, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC))

		mc := resolver(t, qa.StrategyFlagUnresolved).Resolve([]qa.SpecialistResult{
			{Candidates: []qa.Candidate{a, b}},
		})
		if len(mc.Conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(mc.Conflicts))
		}
		conflict := mc.Conflicts[0]
		if conflict.Strategy != qa.StrategyFlagUnresolved {
			t.Errorf("got strategy %q, want flag-unresolved", conflict.Strategy)
		}
		if !conflict.Unresolved() {
			t.Errorf("got winner %d, want the conflict left unresolved", conflict.Winner)
		}
	})

	t.Run("prefer-higher-score ignores dates", func(t *testing.T) {
		// The lower-scored candidate is the newer one; the configured
		// strategy must pick by score regardless.
		a := conflicting("c1", "d1", "30", 0.9, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC))
		b := conflicting("c2", "d2", "60", 0.7, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

		mc := resolver(t, qa.StrategyPreferHigherScore).Resolve([]qa.SpecialistResult{
			{Candidates: []qa.Candidate{a, b}},
		})
		if len(mc.Conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(mc.Conflicts))
		}
		conflict := mc.Conflicts[0]
		if conflict.Strategy != qa.StrategyPreferHigherScore {
			t.Errorf("got strategy %q, want prefer-higher-score", conflict.Strategy)
		}
		if mc.Citations[conflict.Winner].ChunkID != "c1" {
			t.Errorf("got winner %q, want the higher-scored chunk", mc.Citations[conflict.Winner].ChunkID)
		}
	})

	t.Run("equal everything flags unresolved", func(t *testing.T) {
		a := conflicting("c1", "d1", "30", 0.8, time.Time{})
		b := conflicting("c2", "d2", "60", 0.8, time.Time{})

		mc := resolver(t, qa.StrategyPreferNewer).Resolve([]qa.SpecialistResult{
			{Candidates: []qa.Candidate{a, b}},
		})
		if len(mc.Conflicts) != 1 {
			t.Fatalf("got %d conflicts, want 1", len(mc.Conflicts))
		}
		conflict := mc.Conflicts[0]
		if conflict.Strategy != qa.StrategyFlagUnresolved {
			t.Errorf("got strategy %q, want flag-unresolved", conflict.Strategy)
		}
		if !conflict.Unresolved() {
			t.Error("conflict should be unresolved")
		}
	})
}

func TestResolveOrderIndependent(t *testing.T) {
	r := resolver(t, qa.StrategyPreferNewer)

	first := qa.SpecialistResult{Specialist: "product-a", Candidates: []qa.Candidate{
		{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9, Text: "The retry budget is 3 attempts per call."},
		{ChunkID: "c2", DocumentID: "d1", CombinedScore: 0.5, Text: "Retries back off exponentially."},
	}}
	second := qa.SpecialistResult{Specialist: "product-b", Candidates: []qa.Candidate{
		{ChunkID: "c3", DocumentID: "d2", CombinedScore: 0.7, Text: "The retry budget is 5 attempts per call."},
	}}

	forward := r.Resolve([]qa.SpecialistResult{first, second})
	reversed := r.Resolve([]qa.SpecialistResult{second, first})

	if diff := cmp.Diff(forward, reversed); diff != "" {
		t.Errorf("result depends on arrival order (-forward +reversed):\n%s", diff)
	}
}

func TestUnionDeduplicatesByChunk(t *testing.T) {
	r := resolver(t, qa.StrategyPreferNewer)

	mc := r.Resolve([]qa.SpecialistResult{
		{Candidates: []qa.Candidate{{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.4, Text: "shared chunk"}}},
		{Candidates: []qa.Candidate{{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9, Text: "shared chunk"}}},
	})

	if len(mc.Citations) != 1 {
		t.Fatalf("got %d citations, want 1", len(mc.Citations))
	}
	if mc.Citations[0].CombinedScore != 0.9 {
		t.Errorf("got score %v, want the higher duplicate kept", mc.Citations[0].CombinedScore)
	}
}

func TestAssembledPromptNumbersCitations(t *testing.T) {
	r := resolver(t, qa.StrategyPreferNewer)

	mc := r.Resolve([]qa.SpecialistResult{{Candidates: []qa.Candidate{
		{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9, Text: "first chunk", Metadata: qa.Metadata{Product: "Product A", Version: "2.1", Section: "Auth"}},
		{ChunkID: "c2", DocumentID: "d2", CombinedScore: 0.5, Text: "second chunk", Metadata: qa.Metadata{Product: "Product B", Version: "1.0"}},
	}}})

	for _, marker := range []string{"[1] Product A 2.1", "[2] Product B 1.0", "first chunk", "second chunk"} {
		if !strings.Contains(mc.Prompt, marker) {
			t.Errorf("prompt missing %q:\n%s", marker, mc.Prompt)
		}
	}

	order := []int{strings.Index(mc.Prompt, "[1]"), strings.Index(mc.Prompt, "[2]")}
	if !slices.IsSorted(order) {
		t.Error("prompt markers out of order")
	}
}

func TestPassthroughSkipsConflicts(t *testing.T) {
	mc := crossref.Passthrough(qa.SpecialistResult{Candidates: []qa.Candidate{
		{ChunkID: "c1", DocumentID: "d1", CombinedScore: 0.9, Text: "The timeout is 30 minutes."},
		{ChunkID: "c2", DocumentID: "d2", CombinedScore: 0.8, Text: "The timeout is 60 minutes."},
	}})

	if len(mc.Conflicts) != 0 {
		t.Errorf("passthrough ran conflict detection: %d conflicts", len(mc.Conflicts))
	}
	if len(mc.Citations) != 2 {
		t.Errorf("got %d citations, want 2", len(mc.Citations))
	}
	if mc.Prompt == "" {
		t.Error("passthrough produced an empty prompt")
	}
}
