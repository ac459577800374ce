// Package model defines the wire-level record shape and the typed planner
// domain values layered on top of it.
package model

import "time"

// Reserved record fields. FieldID and FieldCreatedAt are assigned by the
// store at write time; FieldOwner is stamped by the adapter and always
// overrides any caller-supplied value.
const (
	FieldID        = "id"
	FieldCreatedAt = "createdAt"
	FieldOwner     = "ownerProfileId"
)

// Record is a stored, identified, timestamped, owned field mapping.
// Records are otherwise schema-free; each planner feature defines its own
// fields.
type Record map[string]any

// ID returns the store-assigned document id.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Owner returns the profile id that created the record.
func (r Record) Owner() string {
	owner, _ := r[FieldOwner].(string)
	return owner
}

// CreatedAt returns the store-assigned creation timestamp, or the zero
// time when absent or of an unexpected type.
func (r Record) CreatedAt() time.Time {
	switch v := r[FieldCreatedAt].(type) {
	case time.Time:
		return v
	case string:
		t, _ := time.Parse(time.RFC3339Nano, v)
		return t
	}
	return time.Time{}
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
