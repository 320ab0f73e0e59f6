package entity

import (
	"context"
	"strconv"

	"github.com/roach88/initiative/internal/value"
)

// DefaultLegacyKey is where the pre-namespaced client kept its data: one
// JSON object mapping kind name to an array of entities.
//
//	{"encounters":[{"id":"enc-1","name":"Goblin Ambush"}],"parties":[...]}
const DefaultLegacyKey = "initiative-offline-data"

// LegacyOwner is stamped on migrated entities that carry no owner.
const LegacyOwner = "legacy"

// MigrationReport summarizes one MigrateLegacy run.
type MigrationReport struct {
	// Migrated counts entities re-saved under the per-entity layout.
	Migrated int `json:"migrated"`
	// Skipped counts entries without a usable id.
	Skipped int `json:"skipped"`
	// Failed counts entries (or whole blobs) that could not be saved.
	Failed int `json:"failed"`
}

// MigrateLegacy moves the legacy aggregate blob into per-entity records.
//
// Per-entity failures are logged and counted, never fatal. The legacy key is
// removed once the pass finishes, whatever the failures, so migration runs
// at most once. A missing legacy key is a no-op.
func (s *Store) MigrateLegacy(ctx context.Context) (MigrationReport, error) {
	var report MigrationReport

	raw, ok, err := s.m.Get(ctx, s.legacyKey)
	if err != nil {
		return report, storageError("", "", "read legacy", err)
	}
	if !ok {
		return report, nil
	}

	blob, err := value.Unmarshal([]byte(raw))
	obj, isObject := blob.(value.Object)
	if err != nil || !isObject {
		s.logger.Error("legacy data unreadable, setting it aside", "key", s.legacyKey, "error", err)
		key := s.quarantinePrefix() + "legacy:" + s.legacyKey + ":" + strconv.FormatInt(s.clock.NowMillis(), 10)
		if err := s.m.Set(ctx, key, raw); err != nil {
			return report, storageError("", "", "quarantine legacy", err)
		}
		report.Failed++
		return report, s.removeLegacy(ctx)
	}

	for _, kind := range obj.SortedKeys() {
		items, ok := obj[kind].(value.Array)
		if !ok {
			s.logger.Warn("legacy kind is not a list, skipping", "kind", kind)
			report.Failed++
			continue
		}

		for i, item := range items {
			data, ok := item.(value.Object)
			if !ok {
				s.logger.Warn("legacy entry is not an object, skipping", "kind", kind, "index", i)
				report.Skipped++
				continue
			}
			id, ok := data.StringField(FieldID)
			if !ok || id == "" {
				s.logger.Warn("legacy entry has no id, skipping", "kind", kind, "index", i)
				report.Skipped++
				continue
			}

			if owner, ok := data.StringField(FieldOwner); !ok || owner == "" {
				data = data.Clone()
				data[FieldOwner] = value.String(LegacyOwner)
			}

			if _, err := s.Save(ctx, kind, id, data); err != nil {
				s.logger.Warn("legacy entry failed to migrate", "kind", kind, "id", id, "error", err)
				report.Failed++
				continue
			}
			report.Migrated++
		}
	}

	s.logger.Info("legacy data migrated",
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"failed", report.Failed,
	)
	return report, s.removeLegacy(ctx)
}

func (s *Store) removeLegacy(ctx context.Context) error {
	if err := s.m.Remove(ctx, s.legacyKey); err != nil {
		return storageError("", "", "remove legacy", err)
	}
	return nil
}
