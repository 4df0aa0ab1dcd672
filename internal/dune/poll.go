package dune

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/web3-frozen/onchain-ingest/internal/metrics"
)

// PollOptions sizes the wait budget for one execution:
// MaxAttempts x Interval.
type PollOptions struct {
	MaxAttempts int
	Interval    time.Duration
}

// Budget is the longest Poll will wait.
func (o PollOptions) Budget() time.Duration {
	return time.Duration(o.MaxAttempts) * o.Interval
}

// Poll waits Interval and then fetches the execution status, up to
// MaxAttempts times. It returns as soon as the execution completes, a
// *ExecutionError when it fails and a *PollTimeoutError when the budget is
// exhausted. A failed status fetch aborts the poll.
func (c *Client) Poll(ctx context.Context, job *QueryJob, opts PollOptions) (*ResultSet, error) {
	if job == nil || job.ExecutionID == "" {
		return nil, fmt.Errorf("dune poll: job has no execution id")
	}
	if opts.MaxAttempts <= 0 {
		return nil, fmt.Errorf("dune poll: max attempts must be positive, got %d", opts.MaxAttempts)
	}

	query := strconv.Itoa(job.QueryID)
	start := time.Now()

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		if err := c.wait(ctx, opts.Interval); err != nil {
			return nil, fmt.Errorf("dune poll %s: %w", job.ExecutionID, err)
		}

		resp, body, err := c.fetchStatus(ctx, job.ExecutionID)
		if err != nil {
			metrics.PollAttemptsTotal.WithLabelValues(query, "error").Inc()
			return nil, fmt.Errorf("dune poll %s attempt %d: %w", job.ExecutionID, attempt, err)
		}

		state := nextState(resp.State, attempt, opts.MaxAttempts)
		metrics.PollAttemptsTotal.WithLabelValues(query, state.String()).Inc()
		c.logger.Debug("dune poll", "execution_id", job.ExecutionID, "attempt", attempt, "state", resp.State)
		if !state.Terminal() {
			continue
		}

		switch state {
		case StateCompleted:
			metrics.PollWaitSeconds.WithLabelValues(query).Observe(time.Since(start).Seconds())
			rs := &ResultSet{ExecutionID: job.ExecutionID}
			if resp.Result != nil {
				rs.Rows = resp.Result.Rows
			}
			c.logger.Info("dune execution completed",
				"execution_id", job.ExecutionID,
				"attempts", attempt,
				"rows", len(rs.Rows),
			)
			return rs, nil
		case StateFailed:
			return nil, &ExecutionError{ExecutionID: job.ExecutionID, Payload: string(body)}
		case StateTimedOut:
			return nil, &PollTimeoutError{
				ExecutionID: job.ExecutionID,
				Attempts:    attempt,
				Budget:      opts.Budget(),
			}
		}
	}
	// unreachable: the last attempt always yields a terminal state
	return nil, &PollTimeoutError{ExecutionID: job.ExecutionID, Attempts: opts.MaxAttempts, Budget: opts.Budget()}
}
