package harness

import (
	"context"
	"errors"

	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/value"
)

var errScriptedFailure = errors.New("scripted delivery failure")

// scriptedTransport accepts every delivery unless a fail step armed it.
// Each attempt is written to the trace as a "deliver" event.
type scriptedTransport struct {
	h         *Harness
	pass      int // deliveries to let through before failing
	failing   int // deliveries to fail after that
	delivered []string
}

func (t *scriptedTransport) script(after, count int) {
	t.pass = after
	t.failing = count
}

// Deliver implements queue.Transport.
func (t *scriptedTransport) Deliver(_ context.Context, op queue.Operation) error {
	ev := TraceEvent{
		Step: "deliver",
		Args: value.ObjectOf(
			value.O("id", value.String(op.ID)),
			value.O("verb", value.String(op.Verb)),
			value.O("resource", value.String(op.Resource)),
			value.O("attempt", value.Int(op.Retries+1)),
		),
		Outcome: OutcomeOK,
	}

	var err error
	switch {
	case t.pass > 0:
		t.pass--
	case t.failing > 0:
		t.failing--
		err = errScriptedFailure
		ev.Outcome = OutcomeFailed
	}

	t.h.record(&ev)
	if err == nil {
		t.delivered = append(t.delivered, op.Resource)
	}
	return err
}
