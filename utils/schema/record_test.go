package schema

import (
	"encoding/json"
	"testing"

	"github.com/invopop/jsonschema"

	"github.com/recipexec/engine/utils/rerrors"
)

func sampleSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name":  map[string]interface{}{"type": "string"},
			"score": map[string]interface{}{"type": "integer"},
			"tags": map[string]interface{}{
				"type":  "array",
				"items": map[string]interface{}{"type": "string"},
			},
			"meta": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"verified": map[string]interface{}{"type": "boolean"},
				},
			},
		},
		"required": []interface{}{"name", "score"},
	}
}

func TestJSONObjectToRecordFieldShapes(t *testing.T) {
	rec, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nameField, ok := rec.FieldByName("name")
	if !ok || nameField.Kind != KindString || !nameField.Required {
		t.Errorf("name field: %+v, ok=%v", nameField, ok)
	}

	scoreField, ok := rec.FieldByName("score")
	if !ok || scoreField.Kind != KindInteger || !scoreField.Required {
		t.Errorf("score field: %+v, ok=%v", scoreField, ok)
	}

	tagsField, ok := rec.FieldByName("tags")
	if !ok || tagsField.Kind != KindArray || tagsField.Required {
		t.Errorf("tags field: %+v, ok=%v", tagsField, ok)
	}
	if tagsField.Elem == nil || tagsField.Elem.Kind != KindString {
		t.Errorf("tags elem: %+v", tagsField.Elem)
	}

	metaField, ok := rec.FieldByName("meta")
	if !ok || metaField.Kind != KindObject {
		t.Errorf("meta field: %+v, ok=%v", metaField, ok)
	}
	if metaField.Nested == nil {
		t.Fatalf("expected nested record for meta")
	}
	if _, ok := metaField.Nested.FieldByName("verified"); !ok {
		t.Errorf("expected nested field verified")
	}
}

func TestJSONObjectToRecordIsDeterministic(t *testing.T) {
	r1, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	r2, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(r1.Fields) != len(r2.Fields) {
		t.Fatalf("field count mismatch: %d vs %d", len(r1.Fields), len(r2.Fields))
	}
	for i := range r1.Fields {
		if r1.Fields[i].Name != r2.Fields[i].Name || r1.Fields[i].Kind != r2.Fields[i].Kind {
			t.Errorf("field %d mismatch: %+v vs %+v", i, r1.Fields[i], r2.Fields[i])
		}
	}
}

func TestJSONObjectToRecordRejectsNonObjectRoot(t *testing.T) {
	sch := map[string]interface{}{"type": "string"}
	_, err := JSONObjectToRecord(sch, "Bad")
	if err == nil {
		t.Fatal("expected an error for a non-object root schema")
	}
	if rerrors.KindOf(err) != rerrors.SchemaInvalid {
		t.Errorf("expected SchemaInvalid, got %v", rerrors.KindOf(err))
	}
}

func TestCoerceValidValue(t *testing.T) {
	rec, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	value := map[string]interface{}{
		"name":  "alice",
		"score": float64(42),
		"tags":  []interface{}{"a", "b"},
		"meta":  map[string]interface{}{"verified": true},
	}
	out, err := Coerce(rec, value)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["name"] != "alice" {
		t.Errorf("name = %v", out["name"])
	}
	if out["score"] != int64(42) {
		t.Errorf("score = %v (%T)", out["score"], out["score"])
	}
}

func TestCoerceMissingRequiredFieldFails(t *testing.T) {
	rec, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = Coerce(rec, map[string]interface{}{"name": "alice"})
	if err == nil {
		t.Fatal("expected error for missing required field \"score\"")
	}
	if rerrors.KindOf(err) != rerrors.SchemaInvalid {
		t.Errorf("expected SchemaInvalid, got %v", rerrors.KindOf(err))
	}
}

func TestCoerceWrongTypeFails(t *testing.T) {
	rec, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = Coerce(rec, map[string]interface{}{"name": "alice", "score": "not a number"})
	if err == nil {
		t.Fatal("expected error for wrong-typed field")
	}
}

// reflectedResult exercises JSONObjectToRecord against a schema
// generated from a real Go struct, rather than a hand-written schema
// literal, as a cross-check that the two descriptions of "object
// shape" (Go struct tags and hand-authored JSON-Schema) land on the
// same Record.
type reflectedResult struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

func TestJSONObjectToRecordAcceptsAReflectorGeneratedSchema(t *testing.T) {
	reflector := &jsonschema.Reflector{DoNotReference: true}
	sch := reflector.Reflect(&reflectedResult{})

	data, err := json.Marshal(sch)
	if err != nil {
		t.Fatalf("failed to marshal generated schema: %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to decode generated schema: %v", err)
	}

	rec, err := JSONObjectToRecord(decoded, "ReflectedResult")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	nameField, ok := rec.FieldByName("name")
	if !ok || nameField.Kind != KindString {
		t.Errorf("name field: %+v, ok=%v", nameField, ok)
	}
	scoreField, ok := rec.FieldByName("score")
	if !ok || scoreField.Kind != KindInteger {
		t.Errorf("score field: %+v, ok=%v", scoreField, ok)
	}
}

func TestCoerceRejectsNonObjectValue(t *testing.T) {
	rec, err := JSONObjectToRecord(sampleSchema(), "Result")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = Coerce(rec, "not an object")
	if err == nil {
		t.Fatal("expected error for non-object value")
	}
}
