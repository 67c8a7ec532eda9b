// Package engine implements the workflow executor: an explicit tagged-state
// machine that sequences classification, routing, specialist fan-out,
// cross-referencing, synthesis, and validation for one query, with
// per-node budgets derived from the query deadline and a checkpoint
// emitted after every transition.
package engine

import (
	"time"

	"github.com/structa/switchboard/internal/qa"
)

// Step names a workflow state. Steps mark completed milestones: entering a
// step runs that step's work.
type Step string

// Workflow steps. Received is the only initial step; Accepted and Fallback
// are the only terminal steps.
const (
	StepReceived        Step = "received"
	StepClassified      Step = "classified"
	StepRouted          Step = "routed"
	StepRetrieved       Step = "retrieved"
	StepCrossReferenced Step = "cross_referenced"
	StepSynthesized     Step = "synthesized"
	StepValidated       Step = "validated"
	StepRegenerating    Step = "regenerating"
	StepAccepted        Step = "accepted"
	StepFallback        Step = "fallback"
)

// Terminal reports whether the workflow halts at this step.
func (s Step) Terminal() bool {
	return s == StepAccepted || s == StepFallback
}

// Transitions is the legal edge set of the workflow graph. Selectors may
// only return steps listed here for the current step; the executor treats
// any other return as a bug and falls back. Every step additionally admits
// an emergency edge to Fallback.
var Transitions = map[Step][]Step{
	StepReceived:        {StepClassified},
	StepClassified:      {StepRouted},
	StepRouted:          {StepRetrieved},
	StepRetrieved:       {StepCrossReferenced, StepSynthesized},
	StepCrossReferenced: {StepSynthesized},
	StepSynthesized:     {StepValidated},
	StepValidated:       {StepAccepted, StepRegenerating, StepFallback},
	StepRegenerating:    {StepSynthesized},
}

// StepLatency records one transition's outcome for the per-step log.
type StepLatency struct {
	Step     Step          `json:"step"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// State is the mutable envelope threading through the executor. Exactly
// one exists per in-flight query, exclusively owned by that query's task
// for its lifetime — no locking is required. It is checkpointed after each
// completed transition and destroyed at a terminal step.
type State struct {
	Query          qa.Query              `json:"query"`
	Classification *qa.Classification    `json:"classification,omitempty"`
	RoutedTo       []string              `json:"routed_to,omitempty"`
	Specialists    []qa.SpecialistResult `json:"specialists,omitempty"`
	Merged         *qa.MergedContext     `json:"merged,omitempty"`
	Answer         *qa.Answer            `json:"answer,omitempty"`
	Decision       string                `json:"decision,omitempty"`
	Step           Step                  `json:"step"`
	StepCount      int                   `json:"step_count"`
	Regenerated    bool                  `json:"regenerated"`
	Latencies      []StepLatency         `json:"latencies"`
}

// successes returns the specialist results that produced candidates.
func (s *State) successes() []qa.SpecialistResult {
	var ok []qa.SpecialistResult
	for _, r := range s.Specialists {
		if !r.Failed() && len(r.Candidates) > 0 {
			ok = append(ok, r)
		}
	}
	return ok
}

// allSpecialistsFailed reports whether no specialist returned a usable
// result at all.
func (s *State) allSpecialistsFailed() bool {
	for _, r := range s.Specialists {
		if !r.Failed() {
			return false
		}
	}
	return len(s.Specialists) > 0
}
