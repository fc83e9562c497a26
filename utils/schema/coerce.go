package schema

import (
	"github.com/recipexec/engine/utils/rerrors"
)

// Coerce validates a decoded JSON value (map[string]interface{}) against
// rec and returns a normalized copy: missing optional fields are
// dropped, numeric fields pulled out of encoding/json's float64
// decoding are narrowed to int where the record calls for KindInteger,
// and nested objects/arrays are coerced recursively. A required field
// that is absent, or a value whose shape doesn't match the field's
// Kind, fails with SchemaInvalid.
func Coerce(rec *Record, value interface{}) (map[string]interface{}, error) {
	obj, ok := value.(map[string]interface{})
	if !ok {
		return nil, rerrors.New(rerrors.SchemaInvalid, "record %q expects an object, got %T", rec.Name, value)
	}

	out := make(map[string]interface{}, len(rec.Fields))
	for _, f := range rec.Fields {
		raw, present := obj[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, rerrors.New(rerrors.SchemaInvalid, "record %q is missing required field %q", rec.Name, f.Name)
			}
			continue
		}
		coerced, err := coerceField(f, raw)
		if err != nil {
			return nil, err
		}
		out[f.Name] = coerced
	}
	return out, nil
}

func coerceField(f Field, raw interface{}) (interface{}, error) {
	switch f.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be a string, got %T", f.Name, raw)
		}
		return s, nil
	case KindBool:
		b, ok := raw.(bool)
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be a boolean, got %T", f.Name, raw)
		}
		return b, nil
	case KindInteger:
		n, ok := raw.(float64)
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be an integer, got %T", f.Name, raw)
		}
		if n != float64(int64(n)) {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be an integer, got fractional value %v", f.Name, n)
		}
		return int64(n), nil
	case KindFloat:
		n, ok := raw.(float64)
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be a number, got %T", f.Name, raw)
		}
		return n, nil
	case KindArray:
		arr, ok := raw.([]interface{})
		if !ok {
			return nil, rerrors.New(rerrors.SchemaInvalid, "field %q must be an array, got %T", f.Name, raw)
		}
		out := make([]interface{}, len(arr))
		for i, item := range arr {
			coerced, err := coerceField(*f.Elem, item)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	case KindObject:
		return Coerce(f.Nested, raw)
	default:
		return raw, nil
	}
}
