package authz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestModeFromEnv_Default(t *testing.T) {
	t.Setenv("TRIGGER_AUTHZ_MODE", "")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeEnforce {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_DisabledRequiresUnsafe(t *testing.T) {
	t.Setenv("TRIGGER_AUTHZ_MODE", "disabled")
	t.Setenv("TRIGGER_AUTHZ_UNSAFE_ALLOW_DISABLED", "")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
	t.Setenv("TRIGGER_AUTHZ_UNSAFE_ALLOW_DISABLED", "1")
	m, err := ModeFromEnv()
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if m != ModeDisabled {
		t.Fatalf("mode=%q", m)
	}
}

func TestModeFromEnv_Invalid(t *testing.T) {
	t.Setenv("TRIGGER_AUTHZ_MODE", "nope")
	if _, err := ModeFromEnv(); err == nil {
		t.Fatal("expected error")
	}
}

func writeEnforcerFixture(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	model := filepath.Join(dir, "model.conf")
	policy := filepath.Join(dir, "policy.csv")

	if err := os.WriteFile(model, []byte(`
[request_definition]
r = sub, dom, obj, act

[policy_definition]
p = sub, dom, obj, act

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = r.sub == p.sub && r.dom == p.dom && r.obj == p.obj && r.act == p.act
`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(policy, []byte("p, role:sales-ops, t1, Opportunity, create\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return model, policy
}

func TestEnforcer_Can(t *testing.T) {
	model, policy := writeEnforcerFixture(t)

	e, err := NewEnforcer(model, policy, ModeEnforce)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	allowed, err := e.Can("role:sales-ops", "t1", "Opportunity", ActionCreate)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed {
		t.Fatalf("expected create allowed")
	}

	allowed, err = e.Can("role:sales-ops", "t1", "Opportunity", ActionDelete)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if allowed {
		t.Fatalf("expected delete denied")
	}

	shadow, err := NewEnforcer(model, policy, ModeShadow)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, err = shadow.Can("role:sales-ops", "t1", "Opportunity", ActionDelete)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed {
		t.Fatalf("shadow mode must not block")
	}

	disabled, err := NewEnforcer(model, policy, ModeDisabled)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	allowed, err = disabled.Can("role:anonymous", "t1", "Opportunity", ActionDelete)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !allowed {
		t.Fatalf("disabled mode must allow")
	}
}

func TestSubjectAndDomainHelpers(t *testing.T) {
	if SubjectFromRoleSlug("  Sales-Ops ") != "role:sales-ops" {
		t.Fatalf("subject=%q", SubjectFromRoleSlug("  Sales-Ops "))
	}
	if SubjectFromRoleSlug("") != "role:anonymous" {
		t.Fatalf("subject=%q", SubjectFromRoleSlug(""))
	}
	if DomainFromTenantID(" T1 ") != "t1" {
		t.Fatalf("domain=%q", DomainFromTenantID(" T1 "))
	}
}

func TestStatic_Can(t *testing.T) {
	caps := Static{
		"Opportunity": {Create: true, Update: true},
	}

	cases := []struct {
		action Action
		want   bool
	}{
		{ActionCreate, true},
		{ActionUpdate, true},
		{ActionDelete, false},
		{ActionUndelete, false},
	}
	for _, tc := range cases {
		got, err := caps.Can("role:sales-ops", DomainGlobal, "Opportunity", tc.action)
		if err != nil {
			t.Fatalf("action=%s err=%v", tc.action, err)
		}
		if got != tc.want {
			t.Fatalf("action=%s got=%v", tc.action, got)
		}
	}

	got, err := caps.Can("role:sales-ops", DomainGlobal, "Unknown", ActionCreate)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got {
		t.Fatalf("unknown object type must deny")
	}

	if _, err := caps.Can("role:sales-ops", DomainGlobal, "Opportunity", Action("nope")); err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
