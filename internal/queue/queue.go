package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"

	"github.com/roach88/initiative/internal/clock"
	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/value"
)

// DefaultNamespace prefixes the snapshot key.
const DefaultNamespace = "initiative:"

// snapshotKey is appended to the namespace.
const snapshotKey = "sync-queue"

// Queue is the durable FIFO of pending operations.
//
// Thread-safety: all methods are safe for concurrent use. Process never
// holds the internal lock while a transport call is in flight.
type Queue struct {
	mu          sync.Mutex
	m           medium.Medium
	ns          string
	clock       clock.Clock
	ids         IDGenerator
	logger      *slog.Logger
	backoffBase int64
	backoffMax  int64

	ops []Operation
}

// Option configures a Queue.
type Option func(*Queue)

// WithNamespace sets the key prefix (default DefaultNamespace).
func WithNamespace(ns string) Option {
	return func(q *Queue) {
		q.ns = ns
	}
}

// WithClock sets the clock used for eligibility and backoff.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		q.clock = c
	}
}

// WithIDGenerator sets the operation ID source (default UUIDv7Generator).
func WithIDGenerator(g IDGenerator) Option {
	return func(q *Queue) {
		q.ids = g
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = l
	}
}

// WithBackoff sets the retry delay base and cap in milliseconds.
// Non-positive values keep the defaults.
func WithBackoff(baseMs, maxMs int64) Option {
	return func(q *Queue) {
		if baseMs > 0 {
			q.backoffBase = baseMs
		}
		if maxMs > 0 {
			q.backoffMax = maxMs
		}
	}
}

// Open loads the queue persisted in m, or starts an empty one.
//
// An unreadable snapshot is copied to
// <namespace>quarantine:sync-queue:<epoch-ms>, removed, and the queue
// starts empty. Only medium failures are returned as errors.
func Open(ctx context.Context, m medium.Medium, opts ...Option) (*Queue, error) {
	q := &Queue{
		m:           m,
		ns:          DefaultNamespace,
		clock:       clock.System{},
		ids:         UUIDv7Generator{},
		logger:      slog.Default(),
		backoffBase: DefaultBackoffBase,
		backoffMax:  DefaultBackoffMax,
		ops:         make([]Operation, 0),
	}
	for _, opt := range opts {
		opt(q)
	}

	raw, ok, err := m.Get(ctx, q.key())
	if err != nil {
		return nil, storageError("", "load", err)
	}
	if !ok {
		return q, nil
	}

	ops, err := decodeSnapshot(raw)
	if err != nil {
		qkey := q.ns + "quarantine:" + snapshotKey + ":" + strconv.FormatInt(q.clock.NowMillis(), 10)
		q.logger.Error("queue snapshot unreadable, starting empty",
			"key", q.key(),
			"quarantine_key", qkey,
			"error", err,
		)
		if err := m.Set(ctx, qkey, raw); err != nil {
			return nil, storageError("", "quarantine", err)
		}
		if err := m.Remove(ctx, q.key()); err != nil {
			return nil, storageError("", "reset", err)
		}
		return q, nil
	}

	q.ops = ops
	q.logger.Debug("queue loaded", "pending", len(ops))
	return q, nil
}

func (q *Queue) key() string {
	return q.ns + snapshotKey
}

// persist writes next as the full snapshot and, only on success, adopts it.
// Called with q.mu held.
func (q *Queue) persist(ctx context.Context, opID, op string, next []Operation) error {
	if len(next) == 0 {
		if err := q.m.Remove(ctx, q.key()); err != nil {
			return storageError(opID, op, err)
		}
		q.ops = next
		return nil
	}

	encoded, err := encodeSnapshot(next)
	if err != nil {
		return &Error{Code: ErrCodeInvalid, Message: "snapshot not encodable", OpID: opID, Err: err}
	}
	if err := q.m.Set(ctx, q.key(), encoded); err != nil {
		return storageError(opID, op, err)
	}
	q.ops = next
	return nil
}

func (q *Queue) indexOf(id string) int {
	for i, op := range q.ops {
		if op.ID == id {
			return i
		}
	}
	return -1
}

// Enqueue appends a new operation, eligible immediately.
func (q *Queue) Enqueue(ctx context.Context, verb Verb, resource string, payload value.Value) (Operation, error) {
	if !verb.Valid() {
		return Operation{}, &Error{Code: ErrCodeInvalid, Message: "unknown verb " + strconv.Quote(string(verb))}
	}
	if resource == "" {
		return Operation{}, &Error{Code: ErrCodeInvalid, Message: "resource is required"}
	}
	if payload == nil {
		payload = value.Null{}
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.NowMillis()
	op := Operation{
		ID:          q.ids.Generate(),
		Verb:        verb,
		Resource:    resource,
		Payload:     payload,
		NextRetryAt: now,
		CreatedAt:   now,
	}

	next := make([]Operation, len(q.ops), len(q.ops)+1)
	copy(next, q.ops)
	next = append(next, op)
	if err := q.persist(ctx, op.ID, "enqueue", next); err != nil {
		return Operation{}, err
	}

	q.logger.Debug("operation enqueued", "op_id", op.ID, "verb", op.Verb, "resource", op.Resource)
	return op, nil
}

// Dequeue returns the head operation if it is eligible now. It does not
// remove it. While the head is backing off nothing is returned.
func (q *Queue) Dequeue() (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.ops) == 0 {
		return Operation{}, false
	}
	head := q.ops[0]
	if head.NextRetryAt > q.clock.NowMillis() {
		return Operation{}, false
	}
	return head, true
}

// Get returns the queued operation with id.
func (q *Queue) Get(id string) (Operation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if i := q.indexOf(id); i >= 0 {
		return q.ops[i], true
	}
	return Operation{}, false
}

// Pending returns every queued operation in queue order.
func (q *Queue) Pending() []Operation {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Operation, len(q.ops))
	copy(out, q.ops)
	return out
}

// Len returns the number of queued operations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

// MarkSuccess permanently removes the operation.
func (q *Queue) MarkSuccess(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return notFound(id)
	}

	next := make([]Operation, 0, len(q.ops)-1)
	next = append(next, q.ops[:i]...)
	next = append(next, q.ops[i+1:]...)
	if err := q.persist(ctx, id, "mark success", next); err != nil {
		return err
	}

	q.logger.Debug("operation delivered", "op_id", id)
	return nil
}

// MarkFailure records a failed attempt: the attempt count goes up by one
// and the operation becomes eligible again after the backoff delay. It
// keeps its queue position.
func (q *Queue) MarkFailure(ctx context.Context, id string) (Operation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(id)
	if i < 0 {
		return Operation{}, notFound(id)
	}

	op := q.ops[i]
	delay := Backoff(q.backoffBase, q.backoffMax, op.Retries)
	op.Retries++
	op.NextRetryAt = q.clock.NowMillis() + delay

	next := make([]Operation, len(q.ops))
	copy(next, q.ops)
	next[i] = op
	if err := q.persist(ctx, id, "mark failure", next); err != nil {
		return Operation{}, err
	}

	q.logger.Debug("operation backing off", "op_id", id, "retries", op.Retries, "delay_ms", delay)
	return op, nil
}

// Clear empties the queue and its durable state.
func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.persist(ctx, "", "clear", make([]Operation, 0)); err != nil {
		return err
	}
	q.logger.Info("queue cleared", "namespace", q.ns)
	return nil
}
