package sobject

import (
	"reflect"
	"testing"
)

func TestRecord_FieldAccess(t *testing.T) {
	r := New("Opportunity", map[string]string{"name": "Acme Renewal", " stage_name ": ""})
	if r.ObjectType() != "Opportunity" {
		t.Fatalf("object_type=%s", r.ObjectType())
	}
	if r.Get("name") != "Acme Renewal" {
		t.Fatalf("name=%s", r.Get("name"))
	}
	if r.Get("missing") != "" {
		t.Fatalf("expected empty for unset field")
	}
	r.Set("stage_name", "Prospecting")
	if r.Get("stage_name") != "Prospecting" {
		t.Fatalf("stage_name=%s", r.Get("stage_name"))
	}
}

func TestRecord_FieldMapCopied(t *testing.T) {
	src := map[string]string{"name": "A"}
	r := New("Opportunity", src)
	src["name"] = "B"
	if r.Get("name") != "A" {
		t.Fatalf("record saw caller mutation: %s", r.Get("name"))
	}

	out := r.Fields()
	out["name"] = "C"
	if r.Get("name") != "A" {
		t.Fatalf("record saw Fields() mutation: %s", r.Get("name"))
	}
}

func TestRecord_SetOnNilFields(t *testing.T) {
	r := &Record{}
	r.Set("name", "A")
	if r.Get("name") != "A" {
		t.Fatalf("name=%s", r.Get("name"))
	}
}

func TestRecord_ErrorAnnotations(t *testing.T) {
	r := New("Opportunity", nil)
	if r.HasErrors() {
		t.Fatalf("expected no annotations")
	}
	r.AddError("record rejected")
	r.AddFieldError("account_id", "account_id required")
	if !r.HasErrors() {
		t.Fatalf("expected annotations")
	}
	want := []FieldError{
		{Message: "record rejected"},
		{Field: "account_id", Message: "account_id required"},
	}
	if !reflect.DeepEqual(r.Errors(), want) {
		t.Fatalf("errors=%v", r.Errors())
	}

	got := r.Errors()
	got[0].Message = "mutated"
	if r.Errors()[0].Message != "record rejected" {
		t.Fatalf("Errors() must return a copy")
	}
}

func TestCloneBatch_IndependentSequenceSharedRecords(t *testing.T) {
	a := New("Opportunity", map[string]string{"name": "A"})
	b := New("Opportunity", map[string]string{"name": "B"})
	batch := []*Record{a, b}

	cloned := CloneBatch(batch)
	batch[0] = New("Opportunity", nil)
	if cloned[0] != a {
		t.Fatalf("clone must not follow caller slice mutation")
	}

	// Record state stays shared through either reference.
	a.Set("name", "A2")
	if cloned[0].Get("name") != "A2" {
		t.Fatalf("name=%s", cloned[0].Get("name"))
	}
}
