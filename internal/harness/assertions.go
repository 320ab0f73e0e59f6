package harness

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/queue"
	"github.com/roach88/initiative/internal/value"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, event := range e.Trace {
		fmt.Fprintf(&buf, "  [%d] %s %s -> %s\n", event.Seq, event.Step, render(event.Args), event.Outcome)
	}

	return buf.String()
}

// AssertionContext holds the live state assertions inspect.
type AssertionContext struct {
	Ctx       context.Context
	Store     *entity.Store
	Queue     *queue.Queue
	Delivered []string
}

// EvaluateAssertions checks every assertion and returns the failure
// messages. An empty slice means all held.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for _, a := range assertions {
		var err error
		switch a.Type {
		case AssertEntity:
			err = assertEntity(actx, a, result.Trace)
		case AssertEntityAbsent:
			err = assertEntityAbsent(actx, a, result.Trace)
		case AssertEntityCount:
			err = assertEntityCount(actx, a, result.Trace)
		case AssertQueueLength:
			err = assertQueueLength(actx, a, result.Trace)
		case AssertQueueOrder:
			err = assertResources(AssertQueueOrder, pendingResources(actx.Queue), a.Resources, result.Trace)
		case AssertDelivered:
			err = assertResources(AssertDelivered, actx.Delivered, a.Resources, result.Trace)
		case AssertQuarantined:
			err = assertQuarantined(actx, a, result.Trace)
		default:
			err = fmt.Errorf("unknown assertion type: %s", a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertEntity(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	rec, ok, err := actx.Store.Load(actx.Ctx, a.Kind, a.ID)
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", a.Kind, a.ID, err)
	}
	if !ok {
		return &AssertionError{
			Type:     AssertEntity,
			Expected: fmt.Sprintf("record %s/%s", a.Kind, a.ID),
			Actual:   "absent",
			Trace:    trace,
		}
	}

	obj := rec.Object()
	for _, field := range sortedFields(a.Expect) {
		want := a.Expect[field]
		got, ok := obj[field]
		if !ok {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("field %q = %v", field, want),
				Actual:   fmt.Sprintf("field missing from %s", render(obj)),
				Trace:    trace,
			}
		}
		if !valuesEqual(got, want) {
			return &AssertionError{
				Type:     AssertEntity,
				Expected: fmt.Sprintf("field %q = %v", field, want),
				Actual:   fmt.Sprintf("field %q = %s", field, render(got)),
				Trace:    trace,
			}
		}
	}
	return nil
}

func assertEntityAbsent(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	rec, ok, err := actx.Store.Load(actx.Ctx, a.Kind, a.ID)
	if err != nil {
		return fmt.Errorf("load %s/%s: %w", a.Kind, a.ID, err)
	}
	if ok {
		return &AssertionError{
			Type:     AssertEntityAbsent,
			Expected: fmt.Sprintf("no readable record %s/%s", a.Kind, a.ID),
			Actual:   render(rec.Object()),
			Trace:    trace,
		}
	}
	return nil
}

func assertEntityCount(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	recs, err := actx.Store.LoadAll(actx.Ctx, a.Kind)
	if err != nil {
		return fmt.Errorf("load all %s: %w", a.Kind, err)
	}
	if len(recs) != a.Count {
		return &AssertionError{
			Type:     AssertEntityCount,
			Expected: fmt.Sprintf("%d live %s", a.Count, a.Kind),
			Actual:   fmt.Sprintf("%d", len(recs)),
			Trace:    trace,
		}
	}
	return nil
}

func assertQueueLength(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	if n := actx.Queue.Len(); n != a.Count {
		return &AssertionError{
			Type:     AssertQueueLength,
			Expected: fmt.Sprintf("%d queued operations", a.Count),
			Actual:   fmt.Sprintf("%d (%v)", n, pendingResources(actx.Queue)),
			Trace:    trace,
		}
	}
	return nil
}

func assertQuarantined(actx *AssertionContext, a Assertion, trace []TraceEvent) error {
	recs, err := actx.Store.Quarantined(actx.Ctx)
	if err != nil {
		return fmt.Errorf("list quarantine: %w", err)
	}
	if len(recs) != a.Count {
		keys := make([]string, len(recs))
		for i, r := range recs {
			keys[i] = r.Key
		}
		return &AssertionError{
			Type:     AssertQuarantined,
			Expected: fmt.Sprintf("%d quarantined records", a.Count),
			Actual:   fmt.Sprintf("%d %v", len(recs), keys),
			Trace:    trace,
		}
	}
	return nil
}

func assertResources(kind string, got, want []string, trace []TraceEvent) error {
	if len(got) == 0 && len(want) == 0 {
		return nil
	}
	if !slices.Equal(got, want) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%v", want),
			Actual:   fmt.Sprintf("%v", got),
			Trace:    trace,
		}
	}
	return nil
}

func pendingResources(q *queue.Queue) []string {
	ops := q.Pending()
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = op.Resource
	}
	return out
}

// valuesEqual compares a stored value with a YAML-decoded expectation by
// canonical encoding, so 3 and int64(3) agree.
func valuesEqual(got value.Value, want any) bool {
	w, err := value.FromAny(want)
	if err != nil {
		return false
	}
	gb, err := value.MarshalCanonical(got)
	if err != nil {
		return false
	}
	wb, err := value.MarshalCanonical(w)
	if err != nil {
		return false
	}
	return bytes.Equal(gb, wb)
}

func render(v value.Value) string {
	b, err := value.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sortedFields(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
