package steps

import (
	"context"
	"encoding/json"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("set_context", newSetContext)
}

type setContextConfig struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	NestedRender  bool            `json:"nested_render"`
	IfExists      string          `json:"if_exists"`
}

type setContextStep struct {
	cfg setContextConfig
}

func newSetContext(raw json.RawMessage) (step.Step, error) {
	var cfg setContextConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "set_context: invalid config")
	}
	if cfg.Key == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "set_context: \"key\" is required")
	}
	switch cfg.IfExists {
	case "", "overwrite", "merge":
	default:
		return nil, rerrors.New(rerrors.ConfigInvalid, "set_context: unknown if_exists %q", cfg.IfExists)
	}
	return &setContextStep{cfg: cfg}, nil
}

func (s *setContextStep) Execute(_ context.Context, rc *rcontext.Context) error {
	var value interface{}
	if len(s.cfg.Value) > 0 {
		if err := json.Unmarshal(s.cfg.Value, &value); err != nil {
			return rerrors.Wrap(rerrors.ConfigInvalid, err, "set_context: invalid \"value\"")
		}
	}

	rendered, err := template.RenderStringsDeep(value, rc.AsDict(), s.cfg.NestedRender)
	if err != nil {
		return err
	}

	if s.cfg.IfExists == "merge" && rc.Contains(s.cfg.Key) {
		existing, _ := rc.Get(s.cfg.Key)
		merged, err := mergeValues(existing, rendered)
		if err != nil {
			return err
		}
		rc.Set(s.cfg.Key, merged)
		return nil
	}

	rc.Set(s.cfg.Key, rendered)
	return nil
}

// mergeValues implements §4.5's merge table for set_context's
// if_exists="merge".
func mergeValues(existing, next interface{}) (interface{}, error) {
	switch e := existing.(type) {
	case string:
		if n, ok := next.(string); ok {
			return e + n, nil
		}
		return []interface{}{existing, next}, nil

	case []interface{}:
		if n, ok := next.([]interface{}); ok {
			return append(append([]interface{}{}, e...), n...), nil
		}
		return append(append([]interface{}{}, e...), next), nil

	case map[string]interface{}:
		if n, ok := next.(map[string]interface{}); ok {
			merged := make(map[string]interface{}, len(e)+len(n))
			for k, v := range e {
				merged[k] = v
			}
			for k, v := range n {
				merged[k] = v
			}
			return merged, nil
		}
		return []interface{}{existing, next}, nil

	default:
		return []interface{}{existing, next}, nil
	}
}
