package engine_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/structa/switchboard/internal/checkpoint"
	"github.com/structa/switchboard/internal/classify"
	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/engine"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/specialist"
	"github.com/structa/switchboard/internal/synthesis"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type scriptedGenerator struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (g *scriptedGenerator) Generate(context.Context, string, []qa.Candidate) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return "", g.err
	}

	i := g.calls
	g.calls++
	if i >= len(g.responses) {
		i = len(g.responses) - 1
	}
	return g.responses[i], nil
}

func (g *scriptedGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubAgent struct {
	result qa.SpecialistResult
}

func (a *stubAgent) Retrieve(context.Context, qa.Query) qa.SpecialistResult {
	return a.result
}

type memorySink struct {
	mu    sync.Mutex
	snaps []checkpoint.Snapshot
}

func (s *memorySink) Persist(_ context.Context, snap checkpoint.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps = append(s.snaps, snap)
	return nil
}

func (s *memorySink) steps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := make([]string, len(s.snaps))
	for i, snap := range s.snaps {
		steps[i] = snap.Step
	}
	return steps
}

// fixture assembles an engine whose specialists and generator are scripted
// while classification, routing, cross-referencing, and validation run for
// real.
type fixture struct {
	gen  *scriptedGenerator
	sink *memorySink
}

func newEngine(t *testing.T, agents map[string]qa.SpecialistResult, gen *scriptedGenerator) (*engine.Engine, *fixture) {
	t.Helper()

	table, err := classify.LoadTable("")
	if err != nil {
		t.Fatalf("load domain table: %v", err)
	}

	registry := specialist.NewRegistry(table.DefaultKey())
	for _, d := range table.Domains {
		result, ok := agents[d.Key]
		if !ok {
			result = qa.SpecialistResult{Specialist: d.Key, Error: "not scripted"}
		}
		registry.Register(d.Key, d.Product, &stubAgent{result: result})
	}

	validator, err := synthesis.NewValidator(synthesis.DefaultValidateConfig(), discard())
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}

	sink := &memorySink{}

	eng := engine.New(
		classify.New(table, nil, discard()),
		registry,
		crossref.New(crossref.DefaultConfig(), discard()),
		synthesis.NewSynthesizer(gen, discard()),
		validator,
		sink,
		nil,
		engine.DefaultConfig(),
		discard(),
	)

	return eng, &fixture{gen: gen, sink: sink}
}

func successResult(key, doc string, score float64) qa.SpecialistResult {
	return qa.SpecialistResult{
		Specialist: key,
		Candidates: []qa.Candidate{
			{ChunkID: key + "-1", DocumentID: doc, Text: "grounded content", CombinedScore: score},
		},
		Confidence: score,
	}
}

func TestExecuteHappyPath(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"Restart the agent after clearing the cache [1]."}}
	eng, fx := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{Text: "Product A crashes on startup"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if answer.Status != qa.StatusAccepted {
		t.Errorf("got status %q, want accepted", answer.Status)
	}
	if len(answer.Citations) == 0 {
		t.Error("accepted answer carries no citations")
	}

	want := []string{"received", "classified", "routed", "retrieved", "synthesized", "validated", "accepted"}
	if diff := cmp.Diff(want, fx.sink.steps()); diff != "" {
		t.Errorf("checkpoint trail mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteCrossProductRunsCrossReference(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"Both products support mutual TLS [1]."}}
	eng, fx := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
		"product-b": successResult("product-b", "doc-b", 0.8),
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{Text: "compare Product A and Product B TLS support"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if answer.Status != qa.StatusAccepted {
		t.Errorf("got status %q, want accepted", answer.Status)
	}

	want := []string{"received", "classified", "routed", "retrieved", "cross_referenced", "synthesized", "validated", "accepted"}
	if diff := cmp.Diff(want, fx.sink.steps()); diff != "" {
		t.Errorf("checkpoint trail mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteRegeneratesOnceThenAccepts(t *testing.T) {
	// First draft: one of two claims cited, confidence 0.45 with a 0.9
	// score, inside the regeneration band. Second draft: fully cited.
	gen := &scriptedGenerator{responses: []string{
		"The cache lives under the data directory [1]. I believe restarts also help somehow.",
		"The cache lives under the data directory [1].",
	}}
	eng, fx := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{Text: "where does Product A keep its cache"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if answer.Status != qa.StatusRegenerated {
		t.Errorf("got status %q, want regenerated", answer.Status)
	}
	if gen.callCount() != 2 {
		t.Errorf("got %d generation calls, want 2", gen.callCount())
	}

	want := []string{
		"received", "classified", "routed", "retrieved", "synthesized", "validated",
		"regenerating", "synthesized", "validated", "accepted",
	}
	if diff := cmp.Diff(want, fx.sink.steps()); diff != "" {
		t.Errorf("checkpoint trail mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteSecondFailureFallsBack(t *testing.T) {
	poorDraft := "The cache lives under the data directory [1]. I believe restarts also help somehow."
	gen := &scriptedGenerator{responses: []string{poorDraft, poorDraft}}
	eng, _ := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{Text: "where does Product A keep its cache"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if answer.Status != qa.StatusFallback {
		t.Errorf("got status %q, want fallback", answer.Status)
	}
	if answer.Text != synthesis.FallbackText {
		t.Errorf("got %q, want the rejected draft replaced by the canned text", answer.Text)
	}
	if len(answer.Citations) != 0 {
		t.Errorf("got %d citations, want the rejected draft's citations discarded", len(answer.Citations))
	}
	if gen.callCount() != 2 {
		t.Errorf("got %d generation calls, want exactly one regeneration", gen.callCount())
	}
}

func TestExecuteAllSpecialistsFailed(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"should never be used"}}
	eng, _ := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": {Specialist: "product-a", Error: "corpus unreachable"},
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{Text: "Product A crashes on startup"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if answer.Status != qa.StatusFallback {
		t.Errorf("got status %q, want fallback", answer.Status)
	}
	if answer.Text != synthesis.FallbackText {
		t.Errorf("got %q, want the canned fallback text", answer.Text)
	}
	if gen.callCount() != 0 {
		t.Errorf("synthesis ran %d times after total retrieval failure", gen.callCount())
	}
}

func TestExecuteExpiredDeadlineFailsFast(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"should never be used"}}
	eng, fx := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
	}, gen)

	answer, err := eng.Execute(context.Background(), qa.Query{
		Text:     "Product A crashes on startup",
		Deadline: time.Now().Add(-time.Second),
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	if answer.Status != qa.StatusFallback {
		t.Errorf("got status %q, want fallback", answer.Status)
	}
	if gen.callCount() != 0 {
		t.Errorf("generation ran %d times past the deadline", gen.callCount())
	}

	want := []string{"received", "fallback"}
	if diff := cmp.Diff(want, fx.sink.steps()); diff != "" {
		t.Errorf("checkpoint trail mismatch (-want +got):\n%s", diff)
	}
}

func TestExecuteRejectsInvalidQuery(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"unused"}}
	eng, fx := newEngine(t, nil, gen)

	if _, err := eng.Execute(context.Background(), qa.Query{}); !errors.Is(err, qa.ErrEmptyQuery) {
		t.Errorf("got %v, want %v", err, qa.ErrEmptyQuery)
	}
	if len(fx.sink.steps()) != 0 {
		t.Error("invalid query still produced checkpoints")
	}
}

func TestExecuteStampsCorrelationID(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"A cited claim for the record [1]."}}
	eng, fx := newEngine(t, map[string]qa.SpecialistResult{
		"product-a": successResult("product-a", "doc-a", 0.9),
	}, gen)

	if _, err := eng.Execute(context.Background(), qa.Query{Text: "Product A install steps"}); err != nil {
		t.Fatalf("execute failed: %v", err)
	}

	fx.sink.mu.Lock()
	defer fx.sink.mu.Unlock()
	for _, snap := range fx.sink.snaps {
		if snap.CorrelationID == "" {
			t.Fatal("checkpoint missing correlation id")
		}
		if snap.CorrelationID != fx.sink.snaps[0].CorrelationID {
			t.Fatal("correlation id changed mid-workflow")
		}
	}
}

func TestTransitionsStayLegal(t *testing.T) {
	for from, edges := range engine.Transitions {
		if from.Terminal() {
			t.Errorf("terminal step %q declares outgoing edges", from)
		}
		for _, to := range edges {
			if to == from {
				t.Errorf("self edge on %q", from)
			}
		}
	}

	if _, ok := engine.Transitions[engine.StepAccepted]; ok {
		t.Error("accepted must have no outgoing edges")
	}
	if _, ok := engine.Transitions[engine.StepFallback]; ok {
		t.Error("fallback must have no outgoing edges")
	}
}
