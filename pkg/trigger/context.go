// Package trigger dispatches persistence-lifecycle events for a batch
// of same-typed records to overridable hooks on a per-object-type
// handler. It enforces a fixed hook order inside each phase, gates
// every after phase on the actor's type capabilities, and keeps all
// hooks batch-scoped: a business rule iterates the batch itself instead
// of being invoked once per record.
package trigger

import (
	"sort"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

// Context carries one lifecycle event from the surrounding invocation
// context: event flags, the new-record batch, the prior-state map, and
// the actor identity for the capability gate.
//
// Exactly one of the insert/update/delete/undelete flags combined with
// exactly one of before/after is expected per invocation. Any other
// combination dispatches nothing.
type Context struct {
	ObjectType string

	IsBefore bool
	IsAfter  bool

	IsInsert   bool
	IsUpdate   bool
	IsDelete   bool
	IsUndelete bool

	// New is the batch of records as they will be (or were) written.
	// Empty for delete, where only prior state exists.
	New []*sobject.Record

	// OldMap maps record id to the record's state immediately before
	// the current change. Nil for insert and undelete.
	OldMap map[string]*sobject.Record

	Subject      string
	Domain       string
	Capabilities authz.Capabilities
}

type phase int

const (
	phaseNone phase = iota
	phaseBeforeInsert
	phaseBeforeUpdate
	phaseBeforeDelete
	phaseAfterInsert
	phaseAfterUpdate
	phaseAfterDelete
	phaseAfterUndelete
)

// eventPhase matches the flag pair against the phase table. ok is false
// when the flags do not name exactly one recognized phase.
func (c Context) eventPhase() (phase, bool) {
	if c.IsBefore == c.IsAfter {
		return phaseNone, false
	}
	ops := 0
	for _, set := range []bool{c.IsInsert, c.IsUpdate, c.IsDelete, c.IsUndelete} {
		if set {
			ops++
		}
	}
	if ops != 1 {
		return phaseNone, false
	}

	switch {
	case c.IsBefore && c.IsInsert:
		return phaseBeforeInsert, true
	case c.IsBefore && c.IsUpdate:
		return phaseBeforeUpdate, true
	case c.IsBefore && c.IsDelete:
		return phaseBeforeDelete, true
	case c.IsAfter && c.IsInsert:
		return phaseAfterInsert, true
	case c.IsAfter && c.IsUpdate:
		return phaseAfterUpdate, true
	case c.IsAfter && c.IsDelete:
		return phaseAfterDelete, true
	case c.IsAfter && c.IsUndelete:
		return phaseAfterUndelete, true
	}
	// before undelete: no such phase.
	return phaseNone, false
}

// sourceBatch selects the records the handler operates on: the values
// of the prior-state map for delete (deleted records only exist as old
// state, ordered by id for determinism), the new-record batch
// otherwise.
func (c Context) sourceBatch() []*sobject.Record {
	if !c.IsDelete {
		return c.New
	}
	ids := make([]string, 0, len(c.OldMap))
	for id := range c.OldMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*sobject.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.OldMap[id])
	}
	return out
}
