package entity

import (
	"fmt"

	"github.com/roach88/initiative/internal/value"
)

// Reserved top-level field names. The store owns these; payload fields with
// the same names are ignored on save.
const (
	FieldID           = "id"
	FieldOwner        = "userId"
	FieldName         = "name"
	FieldVersion      = "version"
	FieldLastModified = "lastModified"
	FieldDeleted      = "deleted"
)

// Record is one stored entity.
type Record struct {
	ID           string
	Version      int64
	LastModified int64 // epoch ms
	Deleted      bool

	// Data holds the payload fields, including the owner identifier.
	Data value.Object
}

// Owner returns the owner identifier carried in the payload.
func (r Record) Owner() string {
	s, _ := r.Data.StringField(FieldOwner)
	return s
}

// Object flattens the record into a single object: payload fields plus the
// store-managed fields.
func (r Record) Object() value.Object {
	obj := make(value.Object, len(r.Data)+4)
	for k, v := range r.Data {
		obj[k] = v
	}
	obj[FieldID] = value.String(r.ID)
	obj[FieldVersion] = value.Int(r.Version)
	obj[FieldLastModified] = value.Int(r.LastModified)
	obj[FieldDeleted] = value.Bool(r.Deleted)
	return obj
}

// MarshalJSON encodes the flattened record.
func (r Record) MarshalJSON() ([]byte, error) {
	return value.MarshalCanonical(r.Object())
}

func isReserved(field string) bool {
	switch field {
	case FieldID, FieldVersion, FieldLastModified, FieldDeleted:
		return true
	}
	return false
}

// payload returns data without store-managed fields.
func payload(data value.Object) value.Object {
	out := make(value.Object, len(data))
	for k, v := range data {
		if !isReserved(k) {
			out[k] = v
		}
	}
	return out
}

func encodeRecord(r Record) (string, error) {
	b, err := value.MarshalCanonical(r.Object())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// decodeRecord parses a stored value. Any structural problem is corruption.
func decodeRecord(raw string) (Record, error) {
	v, err := value.Unmarshal([]byte(raw))
	if err != nil {
		return Record{}, fmt.Errorf("invalid JSON: %w", err)
	}
	obj, ok := v.(value.Object)
	if !ok {
		return Record{}, fmt.Errorf("expected object, got %T", v)
	}

	id, ok := obj.StringField(FieldID)
	if !ok || id == "" {
		return Record{}, fmt.Errorf("missing %q", FieldID)
	}
	version, ok := obj[FieldVersion].(value.Int)
	if !ok || version < 1 {
		return Record{}, fmt.Errorf("invalid %q: %v", FieldVersion, obj[FieldVersion])
	}
	modified, ok := obj[FieldLastModified].(value.Int)
	if !ok {
		return Record{}, fmt.Errorf("invalid %q: %v", FieldLastModified, obj[FieldLastModified])
	}

	var deleted bool
	switch d := obj[FieldDeleted].(type) {
	case nil:
	case value.Bool:
		deleted = bool(d)
	default:
		return Record{}, fmt.Errorf("invalid %q: %v", FieldDeleted, d)
	}

	return Record{
		ID:           id,
		Version:      int64(version),
		LastModified: int64(modified),
		Deleted:      deleted,
		Data:         payload(obj),
	}, nil
}
