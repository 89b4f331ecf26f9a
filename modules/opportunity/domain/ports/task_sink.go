// Package ports declares the outbound dependencies of the opportunity
// module's trigger handler.
package ports

import "context"

// TaskSink receives the follow-up tasks the opportunity after-insert
// hook cascades onto the Task object type. Implementations perform the
// actual write; failures propagate unrecovered to the invocation.
type TaskSink interface {
	CreateFollowUpTask(ctx context.Context, tenantID string, opportunityID string, subject string) error
}
