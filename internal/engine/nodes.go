package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/specialist"
	"github.com/structa/switchboard/internal/synthesis"
)

// Sentinel errors for fatal-for-this-query failures. These short-circuit
// to the Fallback terminal step; they never escape Execute.
var (
	ErrAllSpecialistsFailed = errors.New("all specialists failed")
	ErrIllegalTransition    = errors.New("illegal workflow transition")
)

// node pairs a step's entry action with the selector that picks the next
// step once the action completed. A nil enter is a pure routing step.
// Entry actions return an error only for fatal-for-this-query failures;
// node-local degradable failures are absorbed inside the action.
type node struct {
	enter  func(ctx context.Context, e *Engine, s *State) error
	next   func(e *Engine, s *State) Step
	budget func(e *Engine) budgetKind
}

type budgetKind int

const (
	budgetNone budgetKind = iota
	budgetClassify
	budgetRetrieve
	budgetCrossReference
	budgetSynthesize
	budgetValidate
)

func nodes() map[Step]node {
	return map[Step]node{
		StepReceived: {
			next: func(*Engine, *State) Step { return StepClassified },
		},
		StepClassified: {
			enter: enterClassified,
			next:  func(*Engine, *State) Step { return StepRouted },
			budget: func(*Engine) budgetKind { return budgetClassify },
		},
		StepRouted: {
			enter: enterRouted,
			next:  func(*Engine, *State) Step { return StepRetrieved },
		},
		StepRetrieved: {
			enter: enterRetrieved,
			next: func(_ *Engine, s *State) Step {
				if len(s.successes()) >= 2 {
					return StepCrossReferenced
				}
				return StepSynthesized
			},
			budget: func(*Engine) budgetKind { return budgetRetrieve },
		},
		StepCrossReferenced: {
			enter: enterCrossReferenced,
			next:  func(*Engine, *State) Step { return StepSynthesized },
			budget: func(*Engine) budgetKind { return budgetCrossReference },
		},
		StepSynthesized: {
			enter: enterSynthesized,
			next:  func(*Engine, *State) Step { return StepValidated },
			budget: func(*Engine) budgetKind { return budgetSynthesize },
		},
		StepValidated: {
			enter: enterValidated,
			next: func(_ *Engine, s *State) Step {
				switch s.Decision {
				case synthesis.DecisionAccept.String():
					return StepAccepted
				case synthesis.DecisionRegenerate.String():
					return StepRegenerating
				default:
					return StepFallback
				}
			},
			budget: func(*Engine) budgetKind { return budgetValidate },
		},
		StepRegenerating: {
			enter: func(_ context.Context, _ *Engine, s *State) error {
				s.Regenerated = true
				return nil
			},
			next: func(*Engine, *State) Step { return StepSynthesized },
		},
		StepAccepted: {},
		StepFallback: {
			enter: enterFallback,
		},
	}
}

func enterClassified(ctx context.Context, e *Engine, s *State) error {
	c := e.classifier.Classify(ctx, s.Query.Text)
	s.Classification = &c
	return nil
}

func enterRouted(_ context.Context, e *Engine, s *State) error {
	s.RoutedTo = e.registry.Route(*s.Classification)
	return nil
}

func enterRetrieved(ctx context.Context, e *Engine, s *State) error {
	s.Specialists = specialist.FanOut(ctx, e.registry, s.RoutedTo, s.Query, e.cfg.FanOutTimeout, e.logger)
	if s.allSpecialistsFailed() {
		return fmt.Errorf("%w: %d routed", ErrAllSpecialistsFailed, len(s.RoutedTo))
	}
	return nil
}

func enterCrossReferenced(_ context.Context, e *Engine, s *State) error {
	merged := e.resolver.Resolve(s.successes())
	s.Merged = &merged
	return nil
}

func enterSynthesized(ctx context.Context, e *Engine, s *State) error {
	// Single-specialist path: the cross-reference step was skipped, so
	// the merged context is built trivially here.
	if s.Merged == nil {
		successes := s.successes()
		var single qa.SpecialistResult
		if len(successes) > 0 {
			single = successes[0]
		}
		merged := crossref.Passthrough(single)
		s.Merged = &merged
	}

	answer, err := e.synthesizer.Synthesize(ctx, s.Query, *s.Merged, s.Regenerated)
	if err != nil {
		return err
	}
	s.Answer = &answer
	return nil
}

func enterValidated(_ context.Context, e *Engine, s *State) error {
	answer, decision := e.validator.Validate(*s.Answer, *s.Merged, s.Regenerated)
	s.Answer = &answer
	s.Decision = decision.String()
	return nil
}

// enterFallback discards whatever draft is in flight. A rejected synthesis
// must never reach the caller, even stamped as fallback.
func enterFallback(_ context.Context, _ *Engine, s *State) error {
	fb := synthesis.Fallback()
	s.Answer = &fb
	return nil
}
