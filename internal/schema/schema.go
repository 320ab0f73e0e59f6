// Package schema validates entity payloads against per-kind CUE
// definitions.
//
// A schema source declares a top-level "kinds" struct mapping each entity
// kind to its definition:
//
//	kinds: {
//		encounters: #Encounter
//		parties:    #Party
//	}
//
// Kinds not listed there are accepted unchanged. The built-in source covers
// encounters, parties, characters and combatState.
package schema

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"

	"github.com/roach88/initiative/internal/value"
)

//go:embed schemas.cue
var builtin string

// Error reports every constraint a payload violated.
type Error struct {
	Kind     string
	Problems []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s does not match schema: %s", e.Kind, strings.Join(e.Problems, "; "))
}

// Validator checks payloads against compiled CUE definitions.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so every
// call is serialized through an internal mutex.
type Validator struct {
	mu    sync.Mutex
	ctx   *cue.Context
	kinds cue.Value
}

// New compiles the built-in schemas.
func New() (*Validator, error) {
	return Compile(builtin)
}

// Load compiles the schema file at path.
func Load(path string) (*Validator, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Compile(string(src))
}

// Compile builds a Validator from CUE source.
func Compile(src string) (*Validator, error) {
	ctx := cuecontext.New()
	root := ctx.CompileString(src, cue.Filename("schemas.cue"))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", formatCUEError(err))
	}

	kinds := root.LookupPath(cue.ParsePath("kinds"))
	if !kinds.Exists() {
		return nil, fmt.Errorf("compile schema: no top-level kinds struct")
	}
	if err := kinds.Err(); err != nil {
		return nil, fmt.Errorf("compile schema: %w", formatCUEError(err))
	}
	return &Validator{ctx: ctx, kinds: kinds}, nil
}

// Kinds lists the kinds that have a schema, in declaration order.
func (v *Validator) Kinds() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	var out []string
	iter, err := v.kinds.Fields()
	if err != nil {
		return nil
	}
	for iter.Next() {
		out = append(out, iter.Label())
	}
	return out
}

// Validate checks data against the schema for kind. It satisfies
// entity.Validator.
func (v *Validator) Validate(kind string, data value.Object) error {
	encoded, err := value.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	def := v.kinds.LookupPath(cue.MakePath(cue.Str(kind)))
	if !def.Exists() {
		return nil
	}

	payload := v.ctx.CompileBytes(encoded)
	if err := payload.Err(); err != nil {
		return fmt.Errorf("compile payload: %w", err)
	}

	if err := def.Unify(payload).Validate(cue.Concrete(true)); err != nil {
		return &Error{Kind: kind, Problems: problems(err)}
	}
	return nil
}

func problems(err error) []string {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return fmt.Errorf("%s: %s", positions[0], first.Error())
	}
	return first
}
