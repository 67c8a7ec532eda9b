// Package checkpoint persists workflow state snapshots after every node
// transition. The sink is write-only and best-effort: it exists so an
// external supervisor can inspect or replay a workflow, and its failures
// must never fail or stall the workflow that feeds it.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Snapshot is one persisted state transition.
type Snapshot struct {
	CorrelationID string          `json:"correlation_id"`
	Step          string          `json:"step"`
	StepCount     int             `json:"step_count"`
	TakenAt       time.Time       `json:"taken_at"`
	State         json.RawMessage `json:"state"`
}

// Sink receives snapshots. Implementations must be safe for concurrent use
// across in-flight queries.
type Sink interface {
	Persist(ctx context.Context, snap Snapshot) error
}

// Nop discards every snapshot.
type Nop struct{}

// Persist implements Sink.
func (Nop) Persist(context.Context, Snapshot) error { return nil }

// FileSink appends snapshots as JSON lines to a single file.
type FileSink struct {
	mu   sync.Mutex
	file *os.File
}

// NewFileSink opens (creating if needed) the append-only snapshot file.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint file: %w", err)
	}
	return &FileSink{file: f}, nil
}

// Persist appends one snapshot line.
func (s *FileSink) Persist(_ context.Context, snap Snapshot) error {
	line, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Async decouples a sink behind a bounded queue so a slow or failing sink
// cannot stall the workflow. Snapshots are dropped (and counted) when the
// queue is full.
type Async struct {
	inner  Sink
	queue  chan Snapshot
	done   chan struct{}
	logger *slog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewAsync starts the drain goroutine over inner with the given queue
// depth.
func NewAsync(inner Sink, depth int, logger *slog.Logger) *Async {
	if depth <= 0 {
		depth = 256
	}

	a := &Async{
		inner:  inner,
		queue:  make(chan Snapshot, depth),
		done:   make(chan struct{}),
		logger: logger.With("system", "checkpoint"),
	}
	go a.drain()
	return a
}

// Persist enqueues the snapshot without blocking. A full or closed queue
// drops it; a query racing a shutdown loses its snapshot, never its
// workflow.
func (a *Async) Persist(_ context.Context, snap Snapshot) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.dropped++
		return nil
	}

	select {
	case a.queue <- snap:
	default:
		a.dropped++
		a.logger.Warn("checkpoint queue full, snapshot dropped",
			"correlation_id", snap.CorrelationID,
			"step", snap.Step,
		)
	}
	return nil
}

// Dropped reports how many snapshots were discarded due to backpressure.
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close stops accepting snapshots and waits for the queue to drain.
// Close is idempotent and safe to call concurrently with Persist.
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		<-a.done
		return
	}
	a.closed = true
	a.mu.Unlock()

	close(a.queue)
	<-a.done
}

func (a *Async) drain() {
	defer close(a.done)
	for snap := range a.queue {
		if err := a.inner.Persist(context.Background(), snap); err != nil {
			a.logger.Warn("checkpoint persist failed",
				"correlation_id", snap.CorrelationID,
				"step", snap.Step,
				"error", err,
			)
		}
	}
}
