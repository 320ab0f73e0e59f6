package entity

import (
	"context"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/roach88/initiative/internal/clock"
	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/value"
)

// DefaultNamespace prefixes every key the store writes.
const DefaultNamespace = "initiative:"

// swapAttempts bounds read-merge-write retries when another writer races us
// on a medium that supports compare-and-swap.
const swapAttempts = 3

// Validator checks a record's payload before it is written.
// Returning an error rejects the save with a validation error.
type Validator interface {
	Validate(kind string, data value.Object) error
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc func(kind string, data value.Object) error

// Validate implements Validator.
func (f ValidatorFunc) Validate(kind string, data value.Object) error {
	return f(kind, data)
}

// Store is the versioned, soft-deleting entity store.
//
// Thread-safety: Store is safe for concurrent use within one process.
// Across processes sharing a medium, writes are guarded by compare-and-swap
// when the medium implements medium.Swapper.
type Store struct {
	mu        sync.Mutex
	m         medium.Medium
	ns        string
	legacyKey string
	clock     clock.Clock
	logger    *slog.Logger
	validator Validator
}

// Option configures a Store.
type Option func(*Store)

// WithNamespace sets the key prefix (default DefaultNamespace).
func WithNamespace(ns string) Option {
	return func(s *Store) {
		s.ns = ns
	}
}

// WithClock sets the clock used for last-modified stamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithValidator adds payload validation on top of the built-in checks.
func WithValidator(v Validator) Option {
	return func(s *Store) {
		s.validator = v
	}
}

// WithLegacyKey sets the key MigrateLegacy reads (default DefaultLegacyKey).
func WithLegacyKey(key string) Option {
	return func(s *Store) {
		s.legacyKey = key
	}
}

// New creates a store over m.
func New(m medium.Medium, opts ...Option) *Store {
	s := &Store{
		m:         m,
		ns:        DefaultNamespace,
		legacyKey: DefaultLegacyKey,
		clock:     clock.System{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) kindPrefix(kind string) string {
	return s.ns + "entity:" + kind + ":"
}

func (s *Store) key(kind, id string) string {
	return s.kindPrefix(kind) + value.NormalizeKey(id)
}

func (s *Store) quarantinePrefix() string {
	return s.ns + "quarantine:entity:"
}

func checkKind(kind, id string) error {
	if kind == "" {
		return validationError(kind, id, "kind is required")
	}
	if strings.Contains(kind, ":") {
		return validationError(kind, id, "kind must not contain ':'")
	}
	return nil
}

// checkSave enforces the save preconditions on the incoming data.
func checkSave(kind, id string, data value.Object) error {
	if err := checkKind(kind, id); err != nil {
		return err
	}
	if id == "" {
		return validationError(kind, id, "id is required")
	}
	if data == nil {
		return validationError(kind, id, "data is required")
	}
	if owner, ok := data.StringField(FieldOwner); !ok || owner == "" {
		return validationError(kind, id, "%s is required", FieldOwner)
	}
	if v, ok := data[FieldName]; ok {
		if name, isString := v.(value.String); !isString || name == "" {
			return validationError(kind, id, "%s must be a non-empty string", FieldName)
		}
	}
	return nil
}

// Save creates or updates a record.
//
// If no live record exists (never saved, tombstoned, or unreadable) the
// result is version 1 with exactly data's fields. Otherwise data's
// top-level fields are merged over the stored ones and the version goes up
// by one. LastModified is stamped on every successful save.
//
// Ids are NFC-folded for addressing only; the returned record carries id
// as given.
func (s *Store) Save(ctx context.Context, kind, id string, data value.Object) (Record, error) {
	return s.save(ctx, kind, id, data, -1)
}

// SaveExpected is Save with an optimistic concurrency check: the write only
// happens if the currently live version equals expected. Pass 0 to require
// that no live record exists. A mismatch fails with a conflict error.
func (s *Store) SaveExpected(ctx context.Context, kind, id string, expected int64, data value.Object) (Record, error) {
	if expected < 0 {
		return Record{}, validationError(kind, id, "expected version must be >= 0")
	}
	return s.save(ctx, kind, id, data, expected)
}

func (s *Store) save(ctx context.Context, kind, id string, data value.Object, expected int64) (Record, error) {
	if err := checkSave(kind, id, data); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(kind, id)
	var quarantined string // corrupt value already copied aside
	for attempt := 0; attempt < swapAttempts; attempt++ {
		raw, exists, err := s.m.Get(ctx, key)
		if err != nil {
			return Record{}, storageError(kind, id, "read", err)
		}

		var current *Record
		var corrupt error
		if exists {
			rec, err := decodeRecord(raw)
			if err != nil {
				corrupt = err
			} else if !rec.Deleted {
				current = &rec
			}
		}

		if expected >= 0 {
			var have int64
			if current != nil {
				have = current.Version
			}
			if have != expected {
				return Record{}, &Error{
					Code:    ErrCodeConflict,
					Message: "version mismatch: expected " + strconv.FormatInt(expected, 10) + ", stored " + strconv.FormatInt(have, 10),
					Kind:    kind,
					ID:      id,
				}
			}
		}

		next := Record{
			ID:           id,
			Version:      1,
			LastModified: s.clock.NowMillis(),
			Data:         payload(data),
		}
		if current != nil {
			next.Version = current.Version + 1
			next.Data = value.Merge(current.Data, next.Data)
		}

		if s.validator != nil {
			if err := s.validator.Validate(kind, next.Data); err != nil {
				return Record{}, &Error{Code: ErrCodeValidation, Message: "payload rejected", Kind: kind, ID: id, Err: err}
			}
		}

		encoded, err := encodeRecord(next)
		if err != nil {
			return Record{}, validationError(kind, id, "payload not encodable: %v", err)
		}

		if corrupt != nil && raw != quarantined {
			if err := s.quarantine(ctx, kind, id, raw, corrupt); err != nil {
				return Record{}, err
			}
			quarantined = raw
		}

		ok, err := s.write(ctx, key, raw, exists, encoded)
		if err != nil {
			return Record{}, storageError(kind, id, "write", err)
		}
		if ok {
			s.logger.Debug("entity saved", "kind", kind, "id", next.ID, "version", next.Version)
			return next, nil
		}
		s.logger.Warn("entity changed during save, retrying", "kind", kind, "id", id, "attempt", attempt+1)
	}

	return Record{}, &Error{Code: ErrCodeConflict, Message: "concurrent writers kept changing the record", Kind: kind, ID: id}
}

// write stores val at key, conditional on the previous state when the
// medium supports it.
func (s *Store) write(ctx context.Context, key, old string, oldExists bool, val string) (bool, error) {
	if sw, ok := s.m.(medium.Swapper); ok {
		return sw.CompareAndSwap(ctx, key, old, oldExists, val)
	}
	if err := s.m.Set(ctx, key, val); err != nil {
		return false, err
	}
	return true, nil
}

// Load returns the record for (kind, id), tombstoned or not.
// Absent and unreadable records both report ok=false.
func (s *Store) Load(ctx context.Context, kind, id string) (Record, bool, error) {
	if err := checkKind(kind, id); err != nil {
		return Record{}, false, err
	}

	raw, exists, err := s.m.Get(ctx, s.key(kind, id))
	if err != nil {
		return Record{}, false, storageError(kind, id, "read", err)
	}
	if !exists {
		return Record{}, false, nil
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		s.logger.Warn("ignoring corrupt record", "kind", kind, "id", id, "error", err)
		return Record{}, false, nil
	}
	return rec, true, nil
}

// LoadAll returns every live record of kind, one per id, ordered by id.
func (s *Store) LoadAll(ctx context.Context, kind string) ([]Record, error) {
	if err := checkKind(kind, ""); err != nil {
		return nil, err
	}

	prefix := s.kindPrefix(kind)
	keys, err := s.m.Keys(ctx, prefix)
	if err != nil {
		return nil, storageError(kind, "", "list", err)
	}

	byID := make(map[string]Record, len(keys))
	for _, key := range keys {
		raw, exists, err := s.m.Get(ctx, key)
		if err != nil {
			return nil, storageError(kind, strings.TrimPrefix(key, prefix), "read", err)
		}
		if !exists {
			continue
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			s.logger.Warn("ignoring corrupt record", "kind", kind, "key", key, "error", err)
			continue
		}
		if rec.Deleted {
			continue
		}
		if prev, dup := byID[rec.ID]; !dup || rec.Version > prev.Version {
			byID[rec.ID] = rec
		}
	}

	out := make([]Record, 0, len(byID))
	for _, rec := range byID {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete tombstones the record for (kind, id) and refreshes LastModified.
// The version is unchanged. Fails with a not-found error when no readable
// record exists.
func (s *Store) Delete(ctx context.Context, kind, id string) (Record, error) {
	if err := checkKind(kind, id); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.key(kind, id)
	for attempt := 0; attempt < swapAttempts; attempt++ {
		raw, exists, err := s.m.Get(ctx, key)
		if err != nil {
			return Record{}, storageError(kind, id, "read", err)
		}
		if !exists {
			return Record{}, &Error{Code: ErrCodeNotFound, Message: "no record to delete", Kind: kind, ID: id}
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			s.logger.Warn("ignoring corrupt record", "kind", kind, "id", id, "error", err)
			return Record{}, &Error{Code: ErrCodeNotFound, Message: "no readable record to delete", Kind: kind, ID: id, Err: err}
		}

		rec.Deleted = true
		rec.LastModified = s.clock.NowMillis()
		encoded, err := encodeRecord(rec)
		if err != nil {
			return Record{}, storageError(kind, id, "encode", err)
		}

		ok, err := s.write(ctx, key, raw, true, encoded)
		if err != nil {
			return Record{}, storageError(kind, id, "write", err)
		}
		if ok {
			s.logger.Debug("entity deleted", "kind", kind, "id", rec.ID, "version", rec.Version)
			return rec, nil
		}
	}

	return Record{}, &Error{Code: ErrCodeConflict, Message: "concurrent writers kept changing the record", Kind: kind, ID: id}
}

// Clear removes every record, tombstone and quarantined copy in the
// store's namespace. The legacy key and other components' keys are left
// alone.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, prefix := range []string{s.ns + "entity:", s.quarantinePrefix()} {
		keys, err := s.m.Keys(ctx, prefix)
		if err != nil {
			return storageError("", "", "list", err)
		}
		for _, key := range keys {
			if err := s.m.Remove(ctx, key); err != nil {
				return storageError("", "", "remove", err)
			}
		}
	}
	s.logger.Info("entity store cleared", "namespace", s.ns)
	return nil
}
