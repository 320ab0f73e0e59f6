package entity

import (
	"context"
	"strconv"
	"strings"

	"github.com/roach88/initiative/internal/value"
)

// QuarantinedRecord is a raw stored value that could not be decoded and was
// set aside before being overwritten.
type QuarantinedRecord struct {
	Key  string `json:"key"`
	Kind string `json:"kind"`
	ID   string `json:"id"`
	At   int64  `json:"at"`
	Raw  string `json:"raw"`
}

// quarantine copies an undecodable value aside. Called with s.mu held.
func (s *Store) quarantine(ctx context.Context, kind, id, raw string, cause error) error {
	at := s.clock.NowMillis()
	key := s.quarantinePrefix() + kind + ":" + value.NormalizeKey(id) + ":" + strconv.FormatInt(at, 10)
	if err := s.m.Set(ctx, key, raw); err != nil {
		return storageError(kind, id, "quarantine", err)
	}
	s.logger.Warn("quarantined corrupt record before overwrite",
		"kind", kind,
		"id", id,
		"quarantine_key", key,
		"error", cause,
	)
	return nil
}

// Quarantined lists every quarantined value, ordered by key.
func (s *Store) Quarantined(ctx context.Context) ([]QuarantinedRecord, error) {
	prefix := s.quarantinePrefix()
	keys, err := s.m.Keys(ctx, prefix)
	if err != nil {
		return nil, storageError("", "", "list", err)
	}

	out := make([]QuarantinedRecord, 0, len(keys))
	for _, key := range keys {
		raw, ok, err := s.m.Get(ctx, key)
		if err != nil {
			return nil, storageError("", "", "read", err)
		}
		if !ok {
			continue
		}

		q := QuarantinedRecord{Key: key, Raw: raw}
		rest := strings.TrimPrefix(key, prefix)
		if kind, tail, found := strings.Cut(rest, ":"); found {
			q.Kind = kind
			if i := strings.LastIndex(tail, ":"); i >= 0 {
				q.ID = tail[:i]
				q.At, _ = strconv.ParseInt(tail[i+1:], 10, 64)
			}
		}
		out = append(out, q)
	}
	return out, nil
}
