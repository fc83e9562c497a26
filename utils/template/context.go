package template

// RenderContext renders text against an arbitrary variable map built
// from a Context snapshot (context.AsDict()) plus any extra helper
// values a step wants to expose (e.g. conditional's file_exists).
func RenderContext(text string, vars map[string]interface{}, nested bool) (string, error) {
	if nested {
		return RenderNested(text, vars)
	}
	return Render(text, vars)
}

// RenderStringsDeep walks a JSON-ish value (string, map, slice, scalar)
// and renders every string it finds, recursively. Used by set_context
// and execute_recipe's context_overrides, both of which must render
// strings nested inside arbitrary containers.
func RenderStringsDeep(v interface{}, vars map[string]interface{}, nested bool) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return RenderContext(t, vars, nested)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			rv, err := RenderStringsDeep(vv, vars, nested)
			if err != nil {
				return nil, err
			}
			out[k] = rv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			rv, err := RenderStringsDeep(vv, vars, nested)
			if err != nil {
				return nil, err
			}
			out[i] = rv
		}
		return out, nil
	default:
		return v, nil
	}
}
