// Package services implements the opportunity object's trigger handler:
// the business rules that run inside the framework's lifecycle phases.
package services

import (
	"context"
	"fmt"

	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/ports"
	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/types"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/fieldrule"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/trigger"
)

// HandlerName is the canonical handler reference integrators bind the
// Opportunity object type to.
const HandlerName = "OpportunityHandler"

var insertRules = fieldrule.MustCompile([]fieldrule.Rule{
	{
		Field:   types.FieldAccountID,
		When:    `("type" in record) && record["type"].startsWith("Existing")`,
		Expr:    `("account_id" in record) && record["account_id"] != ""`,
		Message: "account_id is required for existing-business opportunities",
	},
	{
		Field:   types.FieldName,
		Expr:    `("name" in record) && record["name"] != ""`,
		Message: "name is required",
	},
})

// OpportunityHandler overrides the hooks the opportunity object needs;
// everything else stays a framework no-op.
type OpportunityHandler struct {
	trigger.NoopHooks
	*trigger.Base

	tasks ports.TaskSink
}

// NewFactory returns the construction-registry factory for opportunity
// batches. The task sink is bound once at registration; the batch and
// invocation state arrive per event.
func NewFactory(tasks ports.TaskSink) trigger.Factory {
	return func(tc trigger.Context, batch []*sobject.Record) trigger.Handler {
		h := &OpportunityHandler{tasks: tasks}
		h.Base = trigger.NewBase(h, tc, batch)
		return h
	}
}

// ApplyDefaults stamps the default stage onto records created without
// one.
func (h *OpportunityHandler) ApplyDefaults() {
	for _, record := range h.Records() {
		if record.Get(types.FieldStageName) == "" {
			record.Set(types.FieldStageName, types.DefaultStageName)
		}
	}
}

// ValidateInsert runs the declarative creation rules; failing records
// are annotated, never dropped here.
func (h *OpportunityHandler) ValidateInsert() {
	insertRules.Apply(h.Records())
}

// ValidateUpdate rejects changes to the locked amount by comparing each
// record against its prior state.
func (h *OpportunityHandler) ValidateUpdate(old map[string]*sobject.Record) {
	for _, record := range h.Records() {
		prior, ok := old[record.ID()]
		if !ok {
			continue
		}
		if prior.Get(types.FieldAmountLocked) != record.Get(types.FieldAmountLocked) {
			record.AddFieldError(types.FieldAmountLocked, "amount_locked cannot be changed after creation")
		}
	}
}

// AfterInsert cascades one follow-up task per surviving record. This is
// the cross-object write the create gate protects.
func (h *OpportunityHandler) AfterInsert(ctx context.Context) error {
	for _, record := range h.Records() {
		if record.HasErrors() {
			continue
		}
		subject := "Follow up: " + record.Get(types.FieldName)
		if err := h.tasks.CreateFollowUpTask(ctx, h.Domain(), record.ID(), subject); err != nil {
			return fmt.Errorf("opportunity after insert: %w", err)
		}
	}
	return nil
}
