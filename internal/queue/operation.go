package queue

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/initiative/internal/value"
)

// Verb is the kind of remote mutation.
type Verb string

const (
	VerbCreate  Verb = "create"
	VerbReplace Verb = "replace"
	VerbDelete  Verb = "delete"
)

// Valid reports whether v is a known verb.
func (v Verb) Valid() bool {
	switch v {
	case VerbCreate, VerbReplace, VerbDelete:
		return true
	}
	return false
}

// ParseVerb converts s to a Verb.
func ParseVerb(s string) (Verb, error) {
	v := Verb(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown verb %q (want create, replace or delete)", s)
	}
	return v, nil
}

// Operation is one queued remote mutation.
type Operation struct {
	ID       string
	Verb     Verb
	Resource string
	Payload  value.Value

	// Retries counts failed delivery attempts. It never decreases.
	Retries int

	// NextRetryAt is the earliest epoch ms at which the operation may be
	// dequeued.
	NextRetryAt int64

	// CreatedAt is the enqueue time in epoch ms.
	CreatedAt int64
}

// Object renders the operation as stored.
func (op Operation) Object() value.Object {
	payload := op.Payload
	if payload == nil {
		payload = value.Null{}
	}
	return value.ObjectOf(
		value.O("id", value.String(op.ID)),
		value.O("verb", value.String(op.Verb)),
		value.O("resource", value.String(op.Resource)),
		value.O("payload", payload),
		value.O("retries", value.Int(op.Retries)),
		value.O("nextRetryAt", value.Int(op.NextRetryAt)),
		value.O("createdAt", value.Int(op.CreatedAt)),
	)
}

// MarshalJSON encodes the operation as canonical JSON.
func (op Operation) MarshalJSON() ([]byte, error) {
	return value.MarshalCanonical(op.Object())
}

func decodeOperation(v value.Value) (Operation, error) {
	obj, ok := v.(value.Object)
	if !ok {
		return Operation{}, fmt.Errorf("expected object, got %T", v)
	}

	var op Operation
	var s string
	if s, ok = obj.StringField("id"); !ok || s == "" {
		return Operation{}, fmt.Errorf("missing id")
	}
	op.ID = s

	if s, ok = obj.StringField("verb"); !ok || !Verb(s).Valid() {
		return Operation{}, fmt.Errorf("op %s: invalid verb %v", op.ID, obj["verb"])
	}
	op.Verb = Verb(s)

	if s, ok = obj.StringField("resource"); !ok || s == "" {
		return Operation{}, fmt.Errorf("op %s: missing resource", op.ID)
	}
	op.Resource = s

	op.Payload = obj["payload"]
	if op.Payload == nil {
		op.Payload = value.Null{}
	}

	retries, ok := obj["retries"].(value.Int)
	if !ok || retries < 0 {
		return Operation{}, fmt.Errorf("op %s: invalid retries %v", op.ID, obj["retries"])
	}
	op.Retries = int(retries)

	next, ok := obj["nextRetryAt"].(value.Int)
	if !ok {
		return Operation{}, fmt.Errorf("op %s: invalid nextRetryAt %v", op.ID, obj["nextRetryAt"])
	}
	op.NextRetryAt = int64(next)

	created, ok := obj["createdAt"].(value.Int)
	if !ok {
		return Operation{}, fmt.Errorf("op %s: invalid createdAt %v", op.ID, obj["createdAt"])
	}
	op.CreatedAt = int64(created)

	return op, nil
}

func encodeSnapshot(ops []Operation) (string, error) {
	arr := make(value.Array, len(ops))
	for i, op := range ops {
		arr[i] = op.Object()
	}
	b, err := value.MarshalCanonical(arr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeSnapshot(raw string) ([]Operation, error) {
	v, err := value.Unmarshal([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	arr, ok := v.(value.Array)
	if !ok {
		return nil, fmt.Errorf("expected array, got %T", v)
	}

	ops := make([]Operation, 0, len(arr))
	for i, elem := range arr {
		op, err := decodeOperation(elem)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// IDGenerator produces operation IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 operation IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
