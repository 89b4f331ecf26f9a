package fieldrule

import (
	"strings"
	"testing"

	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

func TestCompile_RejectsBadRules(t *testing.T) {
	t.Run("empty expr", func(t *testing.T) {
		if _, err := Compile([]Rule{{Expr: ""}}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("non-bool expr", func(t *testing.T) {
		if _, err := Compile([]Rule{{Expr: `"text"`}}); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		if _, err := Compile([]Rule{{Expr: `record[`}}); err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestApply_AnnotatesOnlyFailingRecords(t *testing.T) {
	set := MustCompile([]Rule{{
		Field:   "account_id",
		When:    `("type" in record) && record["type"].startsWith("Existing")`,
		Expr:    `("account_id" in record) && record["account_id"] != ""`,
		Message: "account_id required for existing business",
	}})

	missing := sobject.New("Opportunity", map[string]string{"type": "Existing-X"})
	present := sobject.New("Opportunity", map[string]string{"type": "Existing-X", "account_id": "a1"})
	notEligible := sobject.New("Opportunity", map[string]string{"type": "New"})

	set.Apply([]*sobject.Record{missing, present, notEligible})

	if !missing.HasErrors() {
		t.Fatalf("expected annotation on missing account_id")
	}
	errs := missing.Errors()
	if errs[0].Field != "account_id" || errs[0].Message != "account_id required for existing business" {
		t.Fatalf("errs=%v", errs)
	}
	if present.HasErrors() {
		t.Fatalf("unexpected annotation: %v", present.Errors())
	}
	if notEligible.HasErrors() {
		t.Fatalf("unexpected annotation: %v", notEligible.Errors())
	}
}

func TestApply_RecordLevelAnnotation(t *testing.T) {
	set := MustCompile([]Rule{{
		Expr:    `"name" in record`,
		Message: "name required",
	}})

	r := sobject.New("Opportunity", nil)
	set.Apply([]*sobject.Record{r})
	errs := r.Errors()
	if len(errs) != 1 || errs[0].Field != "" || errs[0].Message != "name required" {
		t.Fatalf("errs=%v", errs)
	}
}

func TestApply_DefaultWhenIsTrue(t *testing.T) {
	set := MustCompile([]Rule{{
		Field:   "stage_name",
		Expr:    `("stage_name" in record) && record["stage_name"] != ""`,
		Message: "stage_name required",
	}})

	r := sobject.New("Opportunity", map[string]string{"stage_name": ""})
	set.Apply([]*sobject.Record{r})
	if !r.HasErrors() {
		t.Fatalf("expected annotation")
	}
}

func TestApply_EvalErrorAnnotatesRecord(t *testing.T) {
	// Unguarded key lookup errors at eval time when the key is absent.
	set := MustCompile([]Rule{{
		Field:   "account_id",
		Expr:    `record["account_id"] != ""`,
		Message: "account_id required",
	}})

	r := sobject.New("Opportunity", nil)
	set.Apply([]*sobject.Record{r})
	errs := r.Errors()
	if len(errs) != 1 || errs[0].Field != "" {
		t.Fatalf("errs=%v", errs)
	}
	if !strings.HasPrefix(errs[0].Message, "validation rule error:") {
		t.Fatalf("msg=%q", errs[0].Message)
	}
}

func TestApply_ProgramsSharedAcrossCompiles(t *testing.T) {
	rules := []Rule{{Expr: `"name" in record`, Message: "name required"}}
	a := MustCompile(rules)
	b := MustCompile(rules)
	if a.rules[0].require != b.rules[0].require {
		t.Fatalf("expected cached program reuse")
	}
}
