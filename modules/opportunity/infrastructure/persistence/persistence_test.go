package persistence

import (
	"reflect"
	"testing"

	"github.com/esino-sf/lightweight-apex-trigger-framework/modules/opportunity/domain/types"
	"github.com/esino-sf/lightweight-apex-trigger-framework/pkg/sobject"
)

func TestPartitionAnnotated(t *testing.T) {
	clean1 := sobject.New(types.ObjectType, map[string]string{"name": "A"})
	bad := sobject.New(types.ObjectType, map[string]string{"name": "B"})
	bad.AddError("rejected")
	clean2 := sobject.New(types.ObjectType, map[string]string{"name": "C"})

	clean, rejected := partitionAnnotated([]*sobject.Record{clean1, bad, clean2})
	if len(clean) != 2 || clean[0] != clean1 || clean[1] != clean2 {
		t.Fatalf("clean=%v", clean)
	}
	if len(rejected) != 1 || rejected[0] != bad {
		t.Fatalf("rejected=%v", rejected)
	}
}

func TestRecordRowRoundTrip(t *testing.T) {
	record := sobject.New(types.ObjectType, map[string]string{
		types.FieldName:      "Acme Renewal",
		types.FieldStageName: "Prospecting",
	})
	record.SetID("0192a1b2-0000-7000-8000-000000000001")

	fieldsJSON, err := marshalFields(record)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	got, err := recordFromRow(record.ID(), fieldsJSON)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if got.ID() != record.ID() {
		t.Fatalf("id=%q", got.ID())
	}
	if !reflect.DeepEqual(got.Fields(), record.Fields()) {
		t.Fatalf("fields=%v", got.Fields())
	}
}

func TestRecordFromRow_RejectsMalformedJSON(t *testing.T) {
	if _, err := recordFromRow("opp-1", []byte(`{`)); err == nil {
		t.Fatal("expected error")
	}
}

func TestTaskID_DeterministicAndScoped(t *testing.T) {
	a := TaskID("t1", "opp-1", "Follow up: Acme")
	b := TaskID("t1", "opp-1", "Follow up: Acme")
	if a != b {
		t.Fatalf("a=%q b=%q", a, b)
	}
	if a == TaskID("t2", "opp-1", "Follow up: Acme") {
		t.Fatal("tenant must scope the id")
	}
	if a == TaskID("t1", "opp-2", "Follow up: Acme") {
		t.Fatal("opportunity must scope the id")
	}
}
