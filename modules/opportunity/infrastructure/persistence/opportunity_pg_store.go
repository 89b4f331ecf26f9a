// Package persistence is the opportunity module's persistence layer and
// the surrounding trigger-invocation context: each write operation runs
// the before phase, commits surviving rows, runs the after phase, and
// honors field-level error annotations when deciding what stays
// committed.
//
// Partial-success policy: records carrying annotations are rejected
// individually and never committed; clean records from the same batch
// commit together in one transaction. An authorization or cascade
// failure in the after phase rolls the whole invocation back.
package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/types"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/trigger"
)

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Schema is the DDL the store expects. The demo command applies it on
// startup; real deployments own their migrations.
const Schema = `
CREATE TABLE IF NOT EXISTS opportunities (
    id         uuid PRIMARY KEY,
    tenant_id  text NOT NULL,
    fields     jsonb NOT NULL,
    deleted_at timestamptz
);

CREATE TABLE IF NOT EXISTS tasks (
    id             uuid PRIMARY KEY,
    tenant_id      text NOT NULL,
    opportunity_id uuid NOT NULL,
    subject        text NOT NULL
);
`

// EnsureSchema applies Schema in one transaction.
func EnsureSchema(ctx context.Context, pool pgBeginner) error {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if _, err := tx.Exec(ctx, Schema); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// WriteResult reports one invocation's per-record outcome.
type WriteResult struct {
	Committed []*sobject.Record
	Rejected  []*sobject.Record
}

// OpportunityPGStore persists opportunity batches and drives their
// trigger lifecycle.
type OpportunityPGStore struct {
	pool        pgBeginner
	registry    *trigger.Registry
	handlerName string
	caps        authz.Capabilities
}

func NewOpportunityPGStore(pool pgBeginner, registry *trigger.Registry, handlerName string, caps authz.Capabilities) *OpportunityPGStore {
	return &OpportunityPGStore{pool: pool, registry: registry, handlerName: handlerName, caps: caps}
}

func (s *OpportunityPGStore) baseContext(subject string, tenantID string) trigger.Context {
	return trigger.Context{
		ObjectType:   types.ObjectType,
		Subject:      subject,
		Domain:       authz.DomainFromTenantID(tenantID),
		Capabilities: s.caps,
	}
}

func setTenant(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, `SELECT set_config('app.current_tenant', $1, true);`, tenantID)
	return err
}

func marshalFields(record *sobject.Record) ([]byte, error) {
	return json.Marshal(record.Fields())
}

func recordFromRow(id string, fieldsJSON []byte) (*sobject.Record, error) {
	var fields map[string]string
	if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
		return nil, fmt.Errorf("opportunity row %s: %w", id, err)
	}
	record := sobject.New(types.ObjectType, fields)
	record.SetID(id)
	return record, nil
}

// partitionAnnotated splits a batch into records clean enough to commit
// and records rejected by annotations.
func partitionAnnotated(batch []*sobject.Record) (clean []*sobject.Record, rejected []*sobject.Record) {
	for _, record := range batch {
		if record.HasErrors() {
			rejected = append(rejected, record)
			continue
		}
		clean = append(clean, record)
	}
	return clean, rejected
}

// Insert creates a batch of new opportunities. Records annotated during
// the before phase never reach the table; records annotated during
// after-phase validation are removed again before commit.
func (s *OpportunityPGStore) Insert(ctx context.Context, tenantID string, subject string, batch []*sobject.Record) (WriteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := setTenant(ctx, tx, tenantID); err != nil {
		return WriteResult{}, err
	}

	before := s.baseContext(subject, tenantID)
	before.IsBefore = true
	before.IsInsert = true
	before.New = batch
	if err := s.registry.Dispatch(ctx, s.handlerName, before); err != nil {
		return WriteResult{}, err
	}

	survivors, rejected := partitionAnnotated(batch)
	for _, record := range survivors {
		id, err := uuid.NewV7()
		if err != nil {
			return WriteResult{}, err
		}
		record.SetID(id.String())
		fieldsJSON, err := marshalFields(record)
		if err != nil {
			return WriteResult{}, err
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO opportunities (id, tenant_id, fields) VALUES ($1, $2, $3)`,
			record.ID(), tenantID, fieldsJSON,
		); err != nil {
			return WriteResult{}, err
		}
	}

	after := s.baseContext(subject, tenantID)
	after.IsAfter = true
	after.IsInsert = true
	after.New = survivors
	if err := s.registry.Dispatch(ctx, s.handlerName, after); err != nil {
		return WriteResult{}, err
	}

	committed, late := partitionAnnotated(survivors)
	for _, record := range late {
		if _, err := tx.Exec(ctx, `DELETE FROM opportunities WHERE id = $1`, record.ID()); err != nil {
			return WriteResult{}, err
		}
	}
	rejected = append(rejected, late...)

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Committed: committed, Rejected: rejected}, nil
}

func (s *OpportunityPGStore) loadOldMap(ctx context.Context, tx pgx.Tx, batch []*sobject.Record) (map[string]*sobject.Record, error) {
	ids := make([]string, 0, len(batch))
	for _, record := range batch {
		if record.ID() != "" {
			ids = append(ids, record.ID())
		}
	}
	rows, err := tx.Query(ctx,
		`SELECT id, fields FROM opportunities WHERE id = ANY($1) AND deleted_at IS NULL FOR UPDATE`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	old := make(map[string]*sobject.Record, len(ids))
	for rows.Next() {
		var id string
		var fieldsJSON []byte
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			return nil, err
		}
		record, err := recordFromRow(id, fieldsJSON)
		if err != nil {
			return nil, err
		}
		old[id] = record
	}
	return old, rows.Err()
}

// Update rewrites a batch of existing opportunities. Prior state is
// loaded under lock and handed to the handler as the old map. Records
// annotated in the after phase are reverted to their prior fields
// before commit.
func (s *OpportunityPGStore) Update(ctx context.Context, tenantID string, subject string, batch []*sobject.Record) (WriteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := setTenant(ctx, tx, tenantID); err != nil {
		return WriteResult{}, err
	}

	old, err := s.loadOldMap(ctx, tx, batch)
	if err != nil {
		return WriteResult{}, err
	}
	for _, record := range batch {
		if _, ok := old[record.ID()]; !ok {
			record.AddError("record not found")
		}
	}

	before := s.baseContext(subject, tenantID)
	before.IsBefore = true
	before.IsUpdate = true
	before.New = batch
	before.OldMap = old
	if err := s.registry.Dispatch(ctx, s.handlerName, before); err != nil {
		return WriteResult{}, err
	}

	survivors, rejected := partitionAnnotated(batch)
	for _, record := range survivors {
		fieldsJSON, err := marshalFields(record)
		if err != nil {
			return WriteResult{}, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET fields = $2 WHERE id = $1`,
			record.ID(), fieldsJSON,
		); err != nil {
			return WriteResult{}, err
		}
	}

	after := s.baseContext(subject, tenantID)
	after.IsAfter = true
	after.IsUpdate = true
	after.New = survivors
	after.OldMap = old
	if err := s.registry.Dispatch(ctx, s.handlerName, after); err != nil {
		return WriteResult{}, err
	}

	committed, late := partitionAnnotated(survivors)
	for _, record := range late {
		prior, ok := old[record.ID()]
		if !ok {
			continue
		}
		fieldsJSON, err := marshalFields(prior)
		if err != nil {
			return WriteResult{}, err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET fields = $2 WHERE id = $1`,
			record.ID(), fieldsJSON,
		); err != nil {
			return WriteResult{}, err
		}
	}
	rejected = append(rejected, late...)

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Committed: committed, Rejected: rejected}, nil
}

// Delete soft-deletes opportunities by id. The handler batch is derived
// from prior state, since deleted records only exist as old rows.
func (s *OpportunityPGStore) Delete(ctx context.Context, tenantID string, subject string, ids []string) (WriteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := setTenant(ctx, tx, tenantID); err != nil {
		return WriteResult{}, err
	}

	refs := make([]*sobject.Record, 0, len(ids))
	for _, id := range ids {
		ref := sobject.New(types.ObjectType, nil)
		ref.SetID(id)
		refs = append(refs, ref)
	}
	old, err := s.loadOldMap(ctx, tx, refs)
	if err != nil {
		return WriteResult{}, err
	}

	before := s.baseContext(subject, tenantID)
	before.IsBefore = true
	before.IsDelete = true
	before.OldMap = old
	if err := s.registry.Dispatch(ctx, s.handlerName, before); err != nil {
		return WriteResult{}, err
	}

	oldIDs := make([]string, 0, len(old))
	for id := range old {
		oldIDs = append(oldIDs, id)
	}
	sort.Strings(oldIDs)
	batch := make([]*sobject.Record, 0, len(oldIDs))
	for _, id := range oldIDs {
		batch = append(batch, old[id])
	}
	survivors, rejected := partitionAnnotated(batch)
	for _, record := range survivors {
		if _, err := tx.Exec(ctx,
			`UPDATE opportunities SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL`,
			record.ID(),
		); err != nil {
			return WriteResult{}, err
		}
	}

	after := s.baseContext(subject, tenantID)
	after.IsAfter = true
	after.IsDelete = true
	after.OldMap = old
	if err := s.registry.Dispatch(ctx, s.handlerName, after); err != nil {
		return WriteResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Committed: survivors, Rejected: rejected}, nil
}

// Undelete restores soft-deleted opportunities and runs the single
// after-undelete phase over the restored batch.
func (s *OpportunityPGStore) Undelete(ctx context.Context, tenantID string, subject string, ids []string) (WriteResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()
	if err := setTenant(ctx, tx, tenantID); err != nil {
		return WriteResult{}, err
	}

	rows, err := tx.Query(ctx,
		`UPDATE opportunities SET deleted_at = NULL WHERE id = ANY($1) AND deleted_at IS NOT NULL RETURNING id, fields`,
		ids,
	)
	if err != nil {
		return WriteResult{}, err
	}
	restored := make([]*sobject.Record, 0, len(ids))
	for rows.Next() {
		var id string
		var fieldsJSON []byte
		if err := rows.Scan(&id, &fieldsJSON); err != nil {
			rows.Close()
			return WriteResult{}, err
		}
		record, err := recordFromRow(id, fieldsJSON)
		if err != nil {
			rows.Close()
			return WriteResult{}, err
		}
		restored = append(restored, record)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return WriteResult{}, err
	}

	after := s.baseContext(subject, tenantID)
	after.IsAfter = true
	after.IsUndelete = true
	after.New = restored
	if err := s.registry.Dispatch(ctx, s.handlerName, after); err != nil {
		return WriteResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Committed: restored}, nil
}
