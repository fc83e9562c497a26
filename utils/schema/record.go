// Package schema converts a JSON-Schema object fragment into a typed
// Record description that llm_generate uses both to constrain a
// provider's structured-output call and to validate what comes back.
//
// Go has no runtime struct generation, so "typed record class" here
// means a Record value: an ordered field list plus enough type
// information to coerce a decoded JSON value into a disciplined shape
// and catch a provider's malformed response before it reaches the
// recipe's context.
package schema

import (
	"fmt"
	"sort"

	"github.com/recipexec/engine/utils/rerrors"
)

// Kind is a record field's primitive shape.
type Kind int

const (
	KindString Kind = iota
	KindInteger
	KindFloat
	KindBool
	KindArray
	KindObject
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindInteger:
		return "integer"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "opaque"
	}
}

// Field is one record field: its name, kind, whether the schema's
// "required" list named it, and (for array/object kinds) the element
// or nested record type.
type Field struct {
	Name     string
	Kind     Kind
	Required bool
	Elem     *Field  // set when Kind == KindArray
	Nested   *Record // set when Kind == KindObject
}

// Record is a typed record class: a name plus an ordered field list.
// Field order is deterministic (alphabetical by name) so that two
// conversions of an equal schema produce equal records.
type Record struct {
	Name   string
	Fields []Field
}

// FieldByName returns the named field, or false if absent.
func (r *Record) FieldByName(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// JSONObjectToRecord accepts a JSON-Schema object fragment (already
// decoded into a map[string]interface{}, e.g. via encoding/json) and
// returns a Record mirroring its properties. The root schema must be
// of type "object"; anything else is a SchemaInvalid error.
func JSONObjectToRecord(sch map[string]interface{}, name string) (*Record, error) {
	return buildRecord(sch, name)
}

func buildRecord(sch map[string]interface{}, name string) (*Record, error) {
	if t, ok := sch["type"]; ok {
		if s, ok := t.(string); !ok || s != "object" {
			return nil, rerrors.New(rerrors.SchemaInvalid, "schema for record %q must have type \"object\", got %v", name, t)
		}
	}

	propsRaw, _ := sch["properties"].(map[string]interface{})
	required := map[string]bool{}
	if reqRaw, ok := sch["required"].([]interface{}); ok {
		for _, r := range reqRaw {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(propsRaw))
	for k := range propsRaw {
		names = append(names, k)
	}
	sort.Strings(names)

	rec := &Record{Name: name}
	for _, fieldName := range names {
		propSchema, ok := propsRaw[fieldName].(map[string]interface{})
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "property %q of record %q has a non-object schema", fieldName, name)
		}
		field, err := buildField(propSchema, fieldName, name)
		if err != nil {
			return nil, err
		}
		field.Required = required[fieldName]
		rec.Fields = append(rec.Fields, field)
	}
	return rec, nil
}

func buildField(propSchema map[string]interface{}, fieldName, parentName string) (Field, error) {
	typ, _ := propSchema["type"].(string)

	switch typ {
	case "string":
		return Field{Name: fieldName, Kind: KindString}, nil
	case "integer":
		return Field{Name: fieldName, Kind: KindInteger}, nil
	case "number":
		return Field{Name: fieldName, Kind: KindFloat}, nil
	case "boolean":
		return Field{Name: fieldName, Kind: KindBool}, nil
	case "array":
		itemsSchema, _ := propSchema["items"].(map[string]interface{})
		var elem Field
		if itemsSchema != nil {
			var err error
			elem, err = buildField(itemsSchema, fieldName+"_item", parentName)
			if err != nil {
				return Field{}, err
			}
		} else {
			elem = Field{Name: fieldName + "_item", Kind: KindOpaque}
		}
		return Field{Name: fieldName, Kind: KindArray, Elem: &elem}, nil
	case "object":
		nestedName := recordName(parentName, fieldName)
		nested, err := buildRecord(propSchema, nestedName)
		if err != nil {
			return Field{}, err
		}
		return Field{Name: fieldName, Kind: KindObject, Nested: nested}, nil
	case "":
		return Field{Name: fieldName, Kind: KindOpaque}, nil
	default:
		return Field{Name: fieldName, Kind: KindOpaque}, nil
	}
}

// recordName deterministically derives a nested record's name from
// its parent record's name and the field it fills, so that converting
// the same schema twice produces identical nested names.
func recordName(parent, field string) string {
	return fmt.Sprintf("%s_%s", parent, field)
}
