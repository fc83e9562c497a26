package steps

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
)

func init() {
	step.Global().Register("loop", newLoop)
}

type loopConfig struct {
	Items          json.RawMessage `json:"items"`
	ItemKey        string          `json:"item_key"`
	ResultKey      string          `json:"result_key"`
	Substeps       []recipe.Step   `json:"substeps"`
	MaxConcurrency int             `json:"max_concurrency"`
	FailFast       *bool           `json:"fail_fast"`
}

type loopStep struct {
	cfg loopConfig
}

func newLoop(raw json.RawMessage) (step.Step, error) {
	var cfg loopConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "loop: invalid config")
	}
	if cfg.ItemKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "loop: \"item_key\" is required")
	}
	return &loopStep{cfg: cfg}, nil
}

// Execute iterates items, running substeps against a cloned context per
// element and binding the element under item_key. result_key collects
// each iteration's final item_key value (the substeps' natural place to
// transform the bound element) in input order; see DESIGN.md's Open
// Question decision for why that, and not an entire context snapshot, is
// what "the iteration's result" means here.
func (s *loopStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	items, err := s.resolveItems(rc)
	if err != nil {
		return err
	}

	failFast := true
	if s.cfg.FailFast != nil {
		failFast = *s.cfg.FailFast
	}

	results := make([]interface{}, len(items))

	concurrency := s.cfg.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	var failures []interface{}
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for i, item := range items {
		mu.Lock()
		abort := failFast && firstErr != nil
		mu.Unlock()
		if abort {
			break
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(i int, item interface{}) {
			defer wg.Done()
			defer func() { <-sem }()

			child := rc.Clone()
			child.Set(s.cfg.ItemKey, item)

			if err := runBranch(cancelCtx, s.cfg.Substeps, child); err != nil {
				mu.Lock()
				failures = append(failures, map[string]interface{}{"index": i, "message": err.Error()})
				if firstErr == nil {
					firstErr = err
					if failFast {
						cancel()
					}
				}
				mu.Unlock()
				return
			}

			if s.cfg.ResultKey != "" {
				if v, getErr := child.Get(s.cfg.ItemKey); getErr == nil {
					results[i] = v
				}
			}
		}(i, item)
	}
	wg.Wait()

	if failFast && firstErr != nil {
		return firstErr
	}

	if s.cfg.ResultKey != "" {
		rc.Set(s.cfg.ResultKey, results)
		if !failFast {
			rc.Set(s.cfg.ResultKey+"_errors", orEmpty(failures))
		}
	}

	return nil
}

func orEmpty(v []interface{}) []interface{} {
	if v == nil {
		return []interface{}{}
	}
	return v
}

func (s *loopStep) resolveItems(rc *rcontext.Context) ([]interface{}, error) {
	var key string
	if err := json.Unmarshal(s.cfg.Items, &key); err == nil {
		v, err := rc.Get(key)
		if err != nil {
			return nil, err
		}
		return toSlice(v)
	}

	var list []interface{}
	if err := json.Unmarshal(s.cfg.Items, &list); err != nil {
		return nil, rerrors.New(rerrors.ConfigInvalid, "loop: \"items\" must be a context key name or an inline list")
	}
	return list, nil
}

func toSlice(v interface{}) ([]interface{}, error) {
	switch t := v.(type) {
	case []interface{}:
		return t, nil
	default:
		return nil, rerrors.New(rerrors.ConfigInvalid, "loop: \"items\" context value is not a list")
	}
}
