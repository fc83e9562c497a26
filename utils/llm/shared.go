package llm

import "github.com/recipexec/engine/utils/schema"

// coerceRecord validates a decoded JSON object against the requested
// output schema, shared by every provider adapter's structured-output path.
func coerceRecord(rec *schema.Record, raw map[string]interface{}) (map[string]interface{}, error) {
	return schema.Coerce(rec, raw)
}
