package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/structa/switchboard/internal/checkpoint"
	"github.com/structa/switchboard/internal/classify"
	"github.com/structa/switchboard/internal/crossref"
	"github.com/structa/switchboard/internal/qa"
	"github.com/structa/switchboard/internal/specialist"
	"github.com/structa/switchboard/internal/synthesis"
)

// Budgets caps each node's share of the query deadline. A node's effective
// budget is the smaller of its cap and the remaining deadline; a zero cap
// means "whatever remains".
type Budgets struct {
	Classify       time.Duration
	Retrieve       time.Duration
	CrossReference time.Duration
	Synthesize     time.Duration
	Validate       time.Duration
}

func (b Budgets) forKind(k budgetKind) time.Duration {
	switch k {
	case budgetClassify:
		return b.Classify
	case budgetRetrieve:
		return b.Retrieve
	case budgetCrossReference:
		return b.CrossReference
	case budgetSynthesize:
		return b.Synthesize
	case budgetValidate:
		return b.Validate
	default:
		return 0
	}
}

// Config carries the executor's timing knobs.
type Config struct {
	// DefaultTimeout applies when a query carries no deadline.
	DefaultTimeout time.Duration
	// FanOutTimeout bounds the aggregate specialist fan-out.
	FanOutTimeout time.Duration
	// Budgets are the per-node caps.
	Budgets Budgets
}

// DefaultConfig returns workable timing defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTimeout: 30 * time.Second,
		FanOutTimeout:  10 * time.Second,
		Budgets: Budgets{
			Classify:       2 * time.Second,
			Retrieve:       12 * time.Second,
			CrossReference: 2 * time.Second,
			Synthesize:     15 * time.Second,
			Validate:       2 * time.Second,
		},
	}
}

// Engine executes the query-answering workflow. It holds no mutable state
// of its own beyond injected, concurrency-safe collaborators; one Engine
// serves all in-flight queries.
type Engine struct {
	classifier  *classify.Classifier
	registry    *specialist.Registry
	resolver    *crossref.Resolver
	synthesizer *synthesis.Synthesizer
	validator   *synthesis.Validator
	checkpoints checkpoint.Sink
	clock       clockwork.Clock
	cfg         Config
	logger      *slog.Logger
	nodes       map[Step]node
}

// New wires an Engine from its collaborators. sink may be nil (no
// checkpointing); clock may be nil (wall clock).
func New(
	classifier *classify.Classifier,
	registry *specialist.Registry,
	resolver *crossref.Resolver,
	synthesizer *synthesis.Synthesizer,
	validator *synthesis.Validator,
	sink checkpoint.Sink,
	clock clockwork.Clock,
	cfg Config,
	logger *slog.Logger,
) *Engine {
	if sink == nil {
		sink = checkpoint.Nop{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = DefaultConfig().DefaultTimeout
	}

	return &Engine{
		classifier:  classifier,
		registry:    registry,
		resolver:    resolver,
		synthesizer: synthesizer,
		validator:   validator,
		checkpoints: sink,
		clock:       clock,
		cfg:         cfg,
		logger:      logger.With("system", "engine"),
		nodes:       nodes(),
	}
}

// Execute runs the workflow for one query and always returns an Answer for
// downstream-dependency failures; the error return is reserved for
// contract violations (malformed Query), raised before any node runs.
func (e *Engine) Execute(ctx context.Context, q qa.Query) (qa.Answer, error) {
	if err := q.Validate(); err != nil {
		return qa.Answer{}, err
	}
	if q.CorrelationID == "" {
		validated, err := qa.NewQuery(q.Text, q.Filters, "", q.Deadline)
		if err != nil {
			return qa.Answer{}, err
		}
		q = validated
	}
	if q.Deadline.IsZero() {
		q.Deadline = e.clock.Now().Add(e.cfg.DefaultTimeout)
	}

	ctx, cancel := context.WithDeadline(ctx, q.Deadline)
	defer cancel()

	s := &State{Query: q, Step: StepReceived}
	e.persist(ctx, s)

	for !s.Step.Terminal() {
		next := e.selectNext(s)
		e.run(ctx, s, next)
		e.persist(ctx, s)
	}

	e.logger.InfoContext(ctx, "workflow complete",
		"correlation_id", q.CorrelationID,
		"status", s.Answer.Status,
		"confidence", s.Answer.Confidence,
		"steps", s.StepCount,
	)

	return *s.Answer, nil
}

// selectNext picks the next step via the current node's selector, guarding
// against selectors that leave the legal edge set.
func (e *Engine) selectNext(s *State) Step {
	n, ok := e.nodes[s.Step]
	if !ok || n.next == nil {
		return StepFallback
	}

	next := n.next(e, s)
	if next != StepFallback && !slices.Contains(Transitions[s.Step], next) {
		e.logger.Error("illegal transition",
			"correlation_id", s.Query.CorrelationID,
			"from", s.Step,
			"to", next,
			"error", ErrIllegalTransition,
		)
		return StepFallback
	}
	return next
}

// run enters next: it derives the node budget from the remaining deadline,
// fails fast into the fallback path when the deadline is already spent,
// executes the entry action, and records the transition. Fatal action
// errors divert the workflow to Fallback without running remaining nodes.
func (e *Engine) run(ctx context.Context, s *State, next Step) {
	remaining := s.Query.Deadline.Sub(e.clock.Now())
	if remaining <= 0 && next != StepFallback {
		e.logger.WarnContext(ctx, "deadline exhausted, failing fast",
			"correlation_id", s.Query.CorrelationID,
			"at", next,
		)
		s.Latencies = append(s.Latencies, StepLatency{Step: next, Error: context.DeadlineExceeded.Error()})
		s.Step = StepFallback
		s.StepCount++
		enterFallback(ctx, e, s)
		return
	}

	n := e.nodes[next]

	nodeCtx := ctx
	if n.budget != nil {
		if limit := e.cfg.Budgets.forKind(n.budget(e)); limit > 0 && limit < remaining {
			var cancel context.CancelFunc
			nodeCtx, cancel = context.WithTimeout(ctx, limit)
			defer cancel()
		}
	}

	start := e.clock.Now()
	var err error
	if n.enter != nil {
		err = n.enter(nodeCtx, e, s)
	}

	latency := StepLatency{Step: next, Duration: e.clock.Since(start)}
	if err != nil {
		latency.Error = err.Error()
	}
	s.Latencies = append(s.Latencies, latency)
	s.StepCount++

	if err != nil {
		e.logger.WarnContext(ctx, "fatal node failure, short-circuiting to fallback",
			"correlation_id", s.Query.CorrelationID,
			"step", next,
			"error", err,
		)
		s.Step = StepFallback
		enterFallback(ctx, e, s)
		return
	}

	s.Step = next
}

// persist checkpoints the state snapshot, best-effort. A failing sink is
// logged and ignored; checkpointing exists for external inspection, not
// crash recovery.
func (e *Engine) persist(ctx context.Context, s *State) {
	raw, err := json.Marshal(s)
	if err != nil {
		e.logger.Warn("checkpoint encode failed", "correlation_id", s.Query.CorrelationID, "error", err)
		return
	}

	snap := checkpoint.Snapshot{
		CorrelationID: s.Query.CorrelationID,
		Step:          string(s.Step),
		StepCount:     s.StepCount,
		TakenAt:       e.clock.Now(),
		State:         raw,
	}

	if err := e.checkpoints.Persist(ctx, snap); err != nil {
		e.logger.Warn("checkpoint persist failed", "correlation_id", s.Query.CorrelationID, "error", err)
	}
}
