package specialist

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/structa/switchboard/internal/qa"
)

// FanOut invokes the named specialists concurrently and joins on all of
// them or on the aggregate timeout, whichever comes first. A specialist
// that errors, times out, or is not registered contributes a result with
// Error set and no candidates; the caller proceeds with whatever
// succeeded. Results come back in the order of keys, independent of
// completion order.
func FanOut(
	ctx context.Context,
	reg *Registry,
	keys []string,
	q qa.Query,
	timeout time.Duration,
	logger *slog.Logger,
) []qa.SpecialistResult {
	fanCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fanCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	results := make([]qa.SpecialistResult, len(keys))

	g, gctx := errgroup.WithContext(fanCtx)
	for i, key := range keys {
		g.Go(func() error {
			agent, err := reg.Lookup(key)
			if err != nil {
				results[i] = qa.SpecialistResult{Specialist: key, Error: err.Error()}
				return nil
			}

			results[i] = agent.Retrieve(gctx, q)
			if results[i].Failed() {
				logger.WarnContext(ctx, "specialist degraded",
					"correlation_id", q.CorrelationID,
					"specialist", key,
					"error", results[i].Error,
				)
			}
			return nil
		})
	}
	g.Wait()

	// A specialist cancelled by the fan-out timeout may have returned a
	// zero result; stamp those so downstream sees an explicit failure.
	for i, key := range keys {
		if results[i].Specialist == "" {
			results[i] = qa.SpecialistResult{Specialist: key, Error: context.DeadlineExceeded.Error()}
		}
	}

	return results
}
