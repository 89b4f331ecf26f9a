package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/ports"
)

var taskNamespace = uuid.MustParse("6f5de7a4-9d2b-4f1e-8c3a-5b7d90421e68")

// TaskID derives a stable task id from the cascade inputs, so retrying
// a failed after-insert phase cannot create duplicate follow-up tasks.
func TaskID(tenantID string, opportunityID string, subject string) string {
	name := fmt.Sprintf("opportunity.follow_up_task:%s:%s:%s", tenantID, opportunityID, subject)
	return uuid.NewSHA1(taskNamespace, []byte(name)).String()
}

// TaskPGStore is the Postgres-backed task sink for opportunity
// cascades.
type TaskPGStore struct {
	pool pgBeginner
}

var _ ports.TaskSink = (*TaskPGStore)(nil)

func NewTaskPGStore(pool pgBeginner) *TaskPGStore {
	return &TaskPGStore{pool: pool}
}

func (s *TaskPGStore) CreateFollowUpTask(ctx context.Context, tenantID string, opportunityID string, subject string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := setTenant(ctx, tx, tenantID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO tasks (id, tenant_id, opportunity_id, subject)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO NOTHING`,
		TaskID(tenantID, opportunityID, subject), tenantID, opportunityID, subject,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
