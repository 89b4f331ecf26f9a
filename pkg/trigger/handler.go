package trigger

import (
	"context"
	"fmt"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

// Hooks is the overridable business surface of a handler. Every hook
// operates over the whole batch; none is called once per record.
//
// Validation hooks signal rejection by attaching field-level error
// annotations to individual records, never by returning an error: the
// persistence layer, not the framework, decides what an annotated
// record means for the commit.
//
// After hooks may cascade further writes to other object types, which
// is why they alone can fail and why their phase is capability-gated.
type Hooks interface {
	// ApplyDefaults fills required-but-unset fields in place.
	ApplyDefaults()
	// ValidateInsert runs creation-time validation.
	ValidateInsert()
	// ValidateUpdate runs update-time validation against prior state.
	ValidateUpdate(old map[string]*sobject.Record)

	BeforeInsert()
	BeforeUpdate(old map[string]*sobject.Record)
	BeforeDelete()

	AfterInsert(ctx context.Context) error
	AfterUpdate(ctx context.Context, old map[string]*sobject.Record) error
	AfterDelete(ctx context.Context) error
	AfterUndelete(ctx context.Context) error
}

// Handler is the full contract a concrete object-type handler
// satisfies: the hooks plus the phase entry points that call them in
// the mandated order.
type Handler interface {
	Hooks

	HandleBeforeInsert(ctx context.Context) error
	HandleBeforeUpdate(ctx context.Context) error
	HandleBeforeDelete(ctx context.Context) error
	HandleAfterInsert(ctx context.Context) error
	HandleAfterUpdate(ctx context.Context) error
	HandleAfterDelete(ctx context.Context) error
	HandleAfterUndelete(ctx context.Context) error
}

// NoopHooks implements every hook as a no-op. Concrete handlers embed
// it and override only what they need.
type NoopHooks struct{}

func (NoopHooks) ApplyDefaults()                                                {}
func (NoopHooks) ValidateInsert()                                               {}
func (NoopHooks) ValidateUpdate(map[string]*sobject.Record)                     {}
func (NoopHooks) BeforeInsert()                                                 {}
func (NoopHooks) BeforeUpdate(map[string]*sobject.Record)                       {}
func (NoopHooks) BeforeDelete()                                                 {}
func (NoopHooks) AfterInsert(context.Context) error                             { return nil }
func (NoopHooks) AfterUpdate(context.Context, map[string]*sobject.Record) error { return nil }
func (NoopHooks) AfterDelete(context.Context) error                             { return nil }
func (NoopHooks) AfterUndelete(context.Context) error                           { return nil }

// Base carries the per-invocation state of a handler and implements
// the phase entry points. A concrete handler embeds *Base (for state
// and phase sequencing) plus NoopHooks (for hook defaults), and hands
// itself to NewBase so phase methods reach its overridden hooks.
type Base struct {
	hooks      Hooks
	objectType string
	records    []*sobject.Record
	old        map[string]*sobject.Record

	caps    authz.Capabilities
	subject string
	domain  string
}

// NewBase binds a handler to its batch. The batch sequence is copied so
// later mutation of the caller's slice does not change what the handler
// iterates; the records themselves stay shared.
func NewBase(hooks Hooks, tc Context, batch []*sobject.Record) *Base {
	return &Base{
		hooks:      hooks,
		objectType: tc.ObjectType,
		records:    sobject.CloneBatch(batch),
		old:        tc.OldMap,
		caps:       tc.Capabilities,
		subject:    tc.Subject,
		domain:     tc.Domain,
	}
}

// Records is the batch under operation.
func (b *Base) Records() []*sobject.Record { return b.records }

// OldMap is the prior-state snapshot map, nil outside update/delete.
func (b *Base) OldMap() map[string]*sobject.Record { return b.old }

// ObjectType is the uniform type of the batch.
func (b *Base) ObjectType() string { return b.objectType }

// Subject is the acting principal, Domain its tenant scope.
func (b *Base) Subject() string { return b.subject }
func (b *Base) Domain() string  { return b.domain }

// gate is the authorization check run before any after-phase hook. The
// after phases can cascade writes to other object types, so they must
// not run under insufficient privilege even though the write on the
// primary batch already succeeded. Before phases only shape the
// in-flight write and carry no gate.
func (b *Base) gate(action authz.Action) error {
	if b.caps == nil {
		return NewConfiguration("capability descriptor not configured for %s", b.objectType)
	}
	allowed, err := b.caps.Can(b.subject, b.domain, b.objectType, action)
	if err != nil {
		return fmt.Errorf("trigger: capability check for %s on %s: %w", action, b.objectType, err)
	}
	if !allowed {
		return &AuthorizationError{Action: action, ObjectType: b.objectType, Subject: b.subject}
	}
	return nil
}

func (b *Base) HandleBeforeInsert(context.Context) error {
	b.hooks.ApplyDefaults()
	b.hooks.BeforeInsert()
	return nil
}

func (b *Base) HandleBeforeUpdate(context.Context) error {
	b.hooks.BeforeUpdate(b.old)
	return nil
}

func (b *Base) HandleBeforeDelete(context.Context) error {
	b.hooks.BeforeDelete()
	return nil
}

func (b *Base) HandleAfterInsert(ctx context.Context) error {
	if err := b.gate(authz.ActionCreate); err != nil {
		return err
	}
	b.hooks.ValidateInsert()
	return b.hooks.AfterInsert(ctx)
}

func (b *Base) HandleAfterUpdate(ctx context.Context) error {
	if err := b.gate(authz.ActionUpdate); err != nil {
		return err
	}
	b.hooks.ValidateUpdate(b.old)
	return b.hooks.AfterUpdate(ctx, b.old)
}

func (b *Base) HandleAfterDelete(ctx context.Context) error {
	if err := b.gate(authz.ActionDelete); err != nil {
		return err
	}
	return b.hooks.AfterDelete(ctx)
}

func (b *Base) HandleAfterUndelete(ctx context.Context) error {
	if err := b.gate(authz.ActionUndelete); err != nil {
		return err
	}
	return b.hooks.AfterUndelete(ctx)
}
