// Command triggerdemo runs one opportunity lifecycle end to end against
// a Postgres database: insert with defaults and validation, an update
// that trips the locked-amount rule, then delete and undelete.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/esino-sf/lightweight-apex-trigger-framework/internal/bindings"
	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/types"
	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/infrastructure/persistence"
	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/services"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/authz"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/trigger"
)

func main() {
	fs := flag.NewFlagSet("triggerdemo", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var (
		url         string
		bindingPath string
		modelPath   string
		policyPath  string
		tenantID    string
		roleSlug    string
	)
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.StringVar(&bindingPath, "bindings", "config/bindings.yaml", "handler binding file")
	fs.StringVar(&modelPath, "authz-model", "", "casbin model file (omit for built-in grants)")
	fs.StringVar(&policyPath, "authz-policy", "", "casbin policy file")
	fs.StringVar(&tenantID, "tenant", "t1", "tenant id")
	fs.StringVar(&roleSlug, "role", authz.RoleSalesOps, "acting role slug")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	conn, err := pgx.Connect(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer conn.Close(context.Background())

	if err := persistence.EnsureSchema(ctx, conn); err != nil {
		fatal(err)
	}

	file, err := bindings.Load(bindingPath)
	if err != nil {
		fatal(err)
	}

	caps, err := buildCapabilities(file, modelPath, policyPath)
	if err != nil {
		fatal(err)
	}

	reg := trigger.NewRegistry()
	tasks := persistence.NewTaskPGStore(conn)
	if err := reg.Register(services.HandlerName, services.NewFactory(tasks)); err != nil {
		fatal(err)
	}
	if err := file.Verify(reg); err != nil {
		fatal(err)
	}

	store := persistence.NewOpportunityPGStore(conn, reg, file.HandlerFor(types.ObjectType), caps)
	subject := authz.SubjectFromRoleSlug(roleSlug)

	if err := run(ctx, store, tenantID, subject); err != nil {
		fatal(err)
	}
}

func buildCapabilities(file bindings.File, modelPath string, policyPath string) (authz.Capabilities, error) {
	mode := authz.Mode(file.AuthzMode)
	if file.AuthzMode == "" {
		var err error
		mode, err = authz.ModeFromEnv()
		if err != nil {
			return nil, err
		}
	}
	if modelPath == "" {
		return authz.Static{
			types.ObjectType: {Create: true, Update: true, Delete: true, Undelete: true},
		}, nil
	}
	if policyPath == "" {
		return nil, fmt.Errorf("--authz-model requires --authz-policy")
	}
	return authz.NewEnforcer(modelPath, policyPath, mode)
}

func run(ctx context.Context, store *persistence.OpportunityPGStore, tenantID string, subject string) error {
	batch := []*sobject.Record{
		sobject.New(types.ObjectType, map[string]string{
			types.FieldName:         "Acme Renewal",
			types.FieldType:         "New Business",
			types.FieldAmountLocked: "1200",
		}),
		sobject.New(types.ObjectType, map[string]string{
			types.FieldName: "Initech Upsell",
			types.FieldType: "Existing-Expansion",
			// account_id missing: rejected by the creation rules.
		}),
	}

	res, err := store.Insert(ctx, tenantID, subject, batch)
	if err != nil {
		return err
	}
	report("insert", res)

	if len(res.Committed) == 0 {
		return nil
	}
	edited := sobject.New(types.ObjectType, map[string]string{
		types.FieldName:         "Acme Renewal",
		types.FieldType:         "New Business",
		types.FieldStageName:    "Negotiation",
		types.FieldAmountLocked: "9999",
	})
	edited.SetID(res.Committed[0].ID())

	upd, err := store.Update(ctx, tenantID, subject, []*sobject.Record{edited})
	if err != nil {
		return err
	}
	report("update", upd)

	ids := []string{res.Committed[0].ID()}
	del, err := store.Delete(ctx, tenantID, subject, ids)
	if err != nil {
		return err
	}
	report("delete", del)

	und, err := store.Undelete(ctx, tenantID, subject, ids)
	if err != nil {
		return err
	}
	report("undelete", und)
	return nil
}

func report(op string, res persistence.WriteResult) {
	fmt.Printf("%s: committed=%d rejected=%d\n", op, len(res.Committed), len(res.Rejected))
	for _, record := range res.Rejected {
		for _, fe := range record.Errors() {
			if fe.Field != "" {
				fmt.Printf("  %s %s.%s: %s\n", op, record.ID(), fe.Field, fe.Message)
				continue
			}
			fmt.Printf("  %s %s: %s\n", op, record.ID(), fe.Message)
		}
	}
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
