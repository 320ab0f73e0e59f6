package queue

import "context"

// Transport delivers one operation to the remote service. A nil error means
// the remote confirmed delivery; anything else is a failed attempt.
type Transport interface {
	Deliver(ctx context.Context, op Operation) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, op Operation) error

// Deliver implements Transport.
func (f TransportFunc) Deliver(ctx context.Context, op Operation) error {
	return f(ctx, op)
}

// Process drains eligible operations through t, one at a time, in order.
//
// Each delivered operation is removed. The first failed delivery is
// recorded with MarkFailure and ends the pass, so later operations are
// never delivered ahead of it. A delivery cut short by ctx cancellation is
// not counted as a failed attempt. Transport errors are not returned; the
// returned error reports only bookkeeping failures or cancellation.
func (q *Queue) Process(ctx context.Context, t Transport) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		op, ok := q.Dequeue()
		if !ok {
			return processed, nil
		}

		if err := t.Deliver(ctx, op); err != nil {
			if ctx.Err() != nil {
				// Interrupted by shutdown, not a delivery verdict.
				return processed, ctx.Err()
			}
			q.logger.Warn("delivery failed",
				"op_id", op.ID,
				"verb", op.Verb,
				"resource", op.Resource,
				"retries", op.Retries,
				"error", err,
			)
			if _, markErr := q.MarkFailure(ctx, op.ID); markErr != nil && !IsNotFound(markErr) {
				return processed, markErr
			}
			return processed, nil
		}

		if err := q.MarkSuccess(ctx, op.ID); err != nil && !IsNotFound(err) {
			return processed, err
		}
		processed++
	}
}
