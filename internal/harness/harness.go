package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/initiative/internal/coordinator"
	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/medium/sqlite"
	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/schema"
	"github.com/roach88/initiative/internal/testutil"
	"github.com/roach88/initiative/internal/value"
)

// Harness is the scenario execution engine.
// It owns one medium and rebuilds the store, queue and coordinator over it
// on restart, the way a host process would after a crash.
type Harness struct {
	medium    *sqlite.Medium
	clock     *testutil.ManualClock
	ids       *testutil.SequenceIDGenerator
	logger    *slog.Logger
	validator entity.Validator

	store     *entity.Store
	queue     *queue.Queue
	coord     *coordinator.Coordinator
	transport *scriptedTransport
	online    bool

	seq    int64
	result *Result
}

// Run executes a scenario and returns the result.
//
// Each scenario runs over a fresh in-memory SQLite medium. Failed step
// expectations and assertions are reported in Result.Errors; the returned
// error is reserved for failures to set the run up.
func Run(scenario *Scenario) (*Result, error) {
	var opts []sqlite.Option
	if scenario.Capacity > 0 {
		opts = append(opts, sqlite.WithCapacity(scenario.Capacity))
	}
	m, err := sqlite.Open(":memory:", opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory medium: %w", err)
	}
	defer m.Close()

	start := scenario.Start
	if start == 0 {
		start = DefaultStart
	}

	h := &Harness{
		medium: m,
		clock:  testutil.NewManualClock(start),
		ids:    testutil.NewSequenceIDGenerator("op"),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		online: scenario.Online == nil || *scenario.Online,
		result: NewResult(),
	}
	h.transport = &scriptedTransport{h: h}

	if scenario.Schema {
		v, err := schema.New()
		if err != nil {
			return nil, fmt.Errorf("failed to load schemas: %w", err)
		}
		h.validator = v
	}

	ctx := context.Background()
	if err := h.open(ctx); err != nil {
		return nil, err
	}

	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		h.record(&ev)
		h.check(i, step, ev, err)
	}

	actx := &AssertionContext{
		Ctx:       ctx,
		Store:     h.store,
		Queue:     h.queue,
		Delivered: h.transport.delivered,
	}
	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(msg)
	}

	return h.result, nil
}

// open builds the store, queue and coordinator over the shared medium.
func (h *Harness) open(ctx context.Context) error {
	storeOpts := []entity.Option{
		entity.WithClock(h.clock),
		entity.WithLogger(h.logger),
	}
	if h.validator != nil {
		storeOpts = append(storeOpts, entity.WithValidator(h.validator))
	}
	h.store = entity.New(h.medium, storeOpts...)

	q, err := queue.Open(ctx, h.medium,
		queue.WithClock(h.clock),
		queue.WithIDGenerator(h.ids),
		queue.WithLogger(h.logger),
	)
	if err != nil {
		return fmt.Errorf("failed to open queue: %w", err)
	}
	h.queue = q

	h.coord = coordinator.New(q, h.transport,
		coordinator.WithClock(h.clock),
		coordinator.WithLogger(h.logger),
	)
	if !h.online {
		h.coord.SetOnline(false)
	}
	return nil
}

// record stamps ev with the next sequence number and appends it.
func (h *Harness) record(ev *TraceEvent) {
	h.seq++
	ev.Seq = h.seq
	h.result.AddTrace(*ev)
}

// execute runs one step. The returned event is not yet recorded.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Step: step.Action, Outcome: OutcomeOK, Result: value.Object{}}

	var err error
	switch step.Action {
	case StepSave:
		err = h.save(ctx, step, &ev)
	case StepDelete:
		err = h.delete(ctx, step, &ev)
	case StepEnqueue:
		err = h.enqueue(ctx, step, &ev)
	case StepSync:
		h.sync(ctx, &ev)
	case StepFail:
		ev.Args = value.ObjectOf(
			value.O("after", value.Int(step.After)),
			value.O("count", value.Int(step.Count)),
		)
		h.transport.script(step.After, step.Count)
	case StepAdvance:
		ev.Args = value.ObjectOf(value.O("ms", value.Int(step.Ms)))
		ev.Result["now"] = value.Int(h.clock.Advance(step.Ms))
	case StepOnline, StepOffline:
		h.online = step.Action == StepOnline
		h.coord.SetOnline(h.online)
		ev.Result["online"] = value.Bool(h.online)
	case StepRestart:
		if err = h.open(ctx); err == nil {
			ev.Result["pending"] = value.Int(h.queue.Len())
		}
	case StepCorrupt:
		ev.Args = entityArgs(step)
		key := entity.DefaultNamespace + "entity:" + step.Kind + ":" + step.ID
		err = h.medium.Set(ctx, key, step.Raw)
	case StepLegacy:
		err = h.medium.Set(ctx, entity.DefaultLegacyKey, step.Raw)
	case StepMigrate:
		var report entity.MigrationReport
		if report, err = h.store.MigrateLegacy(ctx); err == nil {
			ev.Result["migrated"] = value.Int(report.Migrated)
			ev.Result["skipped"] = value.Int(report.Skipped)
			ev.Result["failed"] = value.Int(report.Failed)
		}
	default:
		err = fmt.Errorf("unknown action %q", step.Action)
	}

	if err != nil {
		ev.Outcome = OutcomeError
		ev.Result = value.ObjectOf(value.O("code", value.String(errorCode(err))))
	}
	return ev, err
}

func entityArgs(step Step) value.Object {
	return value.ObjectOf(
		value.O("kind", value.String(step.Kind)),
		value.O("id", value.String(step.ID)),
	)
}

func (h *Harness) save(ctx context.Context, step Step, ev *TraceEvent) error {
	ev.Args = entityArgs(step)

	var data value.Object
	if step.Data != nil {
		v, err := value.FromAny(step.Data)
		if err != nil {
			return fmt.Errorf("data: %w", err)
		}
		data = v.(value.Object)
		ev.Args["data"] = data
	}

	rec, err := h.store.Save(ctx, step.Kind, step.ID, data)
	if err != nil {
		return err
	}
	ev.Result["version"] = value.Int(rec.Version)
	ev.Result["lastModified"] = value.Int(rec.LastModified)
	return nil
}

func (h *Harness) delete(ctx context.Context, step Step, ev *TraceEvent) error {
	ev.Args = entityArgs(step)

	rec, err := h.store.Delete(ctx, step.Kind, step.ID)
	if err != nil {
		return err
	}
	ev.Result["version"] = value.Int(rec.Version)
	ev.Result["deleted"] = value.Bool(rec.Deleted)
	return nil
}

func (h *Harness) enqueue(ctx context.Context, step Step, ev *TraceEvent) error {
	ev.Args = value.ObjectOf(
		value.O("verb", value.String(step.Verb)),
		value.O("resource", value.String(step.Resource)),
	)

	var payload value.Value = value.Null{}
	if step.Payload != nil {
		v, err := value.FromAny(step.Payload)
		if err != nil {
			return fmt.Errorf("payload: %w", err)
		}
		payload = v
		ev.Args["payload"] = payload
	}

	op, err := h.queue.Enqueue(ctx, queue.Verb(step.Verb), step.Resource, payload)
	if err != nil {
		return err
	}
	ev.Result["id"] = value.String(op.ID)
	return nil
}

func (h *Harness) sync(ctx context.Context, ev *TraceEvent) {
	processed, ran := h.coord.Sync(ctx)
	status := h.coord.Status()

	ev.Result["ran"] = value.Bool(ran)
	ev.Result["processed"] = value.Int(processed)
	ev.Result["pending"] = value.Int(status.Pending)
	if ran && status.LastError != "" {
		ev.Result["lastError"] = value.String(status.LastError)
	}
}

// check compares a step's outcome with its expect clause.
func (h *Harness) check(i int, step Step, ev TraceEvent, err error) {
	prefix := fmt.Sprintf("step %d (%s)", i, step.Action)

	if step.Expect == nil || step.Expect.Error == "" {
		if err != nil {
			h.result.AddError(fmt.Sprintf("%s: unexpected error: %v", prefix, err))
			return
		}
	} else {
		if err == nil {
			h.result.AddError(fmt.Sprintf("%s: expected error %s, got success", prefix, step.Expect.Error))
			return
		}
		if code := errorCode(err); code != step.Expect.Error {
			h.result.AddError(fmt.Sprintf("%s: expected error %s, got %s (%v)", prefix, step.Expect.Error, code, err))
			return
		}
	}

	if step.Expect == nil {
		return
	}
	for _, field := range sortedFields(step.Expect.Result) {
		want := step.Expect.Result[field]
		got, ok := ev.Result[field]
		if !ok {
			h.result.AddError(fmt.Sprintf("%s: result field %q missing", prefix, field))
			continue
		}
		if !valuesEqual(got, want) {
			h.result.AddError(fmt.Sprintf("%s: result field %q = %s, want %v", prefix, field, render(got), want))
		}
	}
}

// errorCode extracts the typed error code, or "ERROR" for anything else.
func errorCode(err error) string {
	var ee *entity.Error
	if errors.As(err, &ee) {
		return string(ee.Code)
	}
	var qe *queue.Error
	if errors.As(err, &qe) {
		return string(qe.Code)
	}
	return "ERROR"
}
