// Package sobject models the generic records that flow through the
// trigger framework: a record is one entity instance of a uniform
// object type with an opaque identifier and a flat set of named fields.
//
// Validation rejections are expressed as field-level error annotations
// attached to individual records. Annotations never abort processing of
// the rest of the batch; the persistence layer is their only consumer.
package sobject

import "strings"

// FieldError marks a record (optionally a single field) as rejected
// from persistence. It is a data signal, not a Go error.
type FieldError struct {
	Field   string
	Message string
}

// Record is one entity instance under change. Records are shared by
// pointer between the caller and the handler: field mutations through
// either reference are visible to both.
type Record struct {
	objectType string
	id         string
	fields     map[string]string
	errs       []FieldError
}

// New builds a record of the given object type. The field map is copied
// so later mutation of the caller's map does not leak into the record.
func New(objectType string, fields map[string]string) *Record {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[strings.TrimSpace(k)] = v
	}
	return &Record{objectType: objectType, fields: copied}
}

// ObjectType reports the record's uniform type name.
func (r *Record) ObjectType() string { return r.objectType }

// ID returns the persisted identifier, or "" before creation.
func (r *Record) ID() string { return r.id }

// SetID assigns the persisted identifier. Only the persistence layer
// should call this, once, at insert time.
func (r *Record) SetID(id string) { r.id = id }

// Get returns the value of a named field, or "" when unset.
func (r *Record) Get(field string) string { return r.fields[field] }

// Set assigns a named field in place.
func (r *Record) Set(field string, value string) {
	if r.fields == nil {
		r.fields = make(map[string]string, 1)
	}
	r.fields[field] = value
}

// Fields returns a copy of the record's field map.
func (r *Record) Fields() map[string]string {
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// AddError attaches a record-level rejection annotation.
func (r *Record) AddError(msg string) {
	r.errs = append(r.errs, FieldError{Message: msg})
}

// AddFieldError attaches a rejection annotation scoped to one field.
func (r *Record) AddFieldError(field string, msg string) {
	r.errs = append(r.errs, FieldError{Field: field, Message: msg})
}

// Errors returns the annotations attached so far, in attachment order.
func (r *Record) Errors() []FieldError {
	return append([]FieldError(nil), r.errs...)
}

// HasErrors reports whether any annotation is attached.
func (r *Record) HasErrors() bool { return len(r.errs) > 0 }

// CloneBatch copies the slice of record pointers. The records
// themselves stay shared; only the sequence becomes independent.
func CloneBatch(batch []*Record) []*Record {
	return append([]*Record(nil), batch...)
}
