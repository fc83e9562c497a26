package steps

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
)

func init() {
	step.Global().Register("parallel", newParallel)
}

type parallelConfig struct {
	Substeps       []recipe.Step `json:"substeps"`
	MaxConcurrency int           `json:"max_concurrency"`
	Delay          float64       `json:"delay"`
}

type parallelStep struct {
	cfg parallelConfig
}

func newParallel(raw json.RawMessage) (step.Step, error) {
	var cfg parallelConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "parallel: invalid config")
	}
	if len(cfg.Substeps) == 0 {
		return nil, rerrors.New(rerrors.ConfigInvalid, "parallel: \"substeps\" must be non-empty")
	}
	return &parallelStep{cfg: cfg}, nil
}

// Execute runs every substep against its own cloned context, up to
// max_concurrency at a time (0 = unlimited), per §4.5/§5. All in-flight
// branches are awaited before the first failure (if any) is surfaced —
// substeps do not observe each other's context writes, and nothing about
// this step's own context is mutated, since each branch's clone is
// discarded once it finishes.
func (s *parallelStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	concurrency := s.cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = len(s.cfg.Substeps)
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, sub := range s.cfg.Substeps {
		sem <- struct{}{}
		wg.Add(1)
		go func(sub recipe.Step) {
			defer wg.Done()
			defer func() { <-sem }()

			child := rc.Clone()
			if err := runBranch(ctx, []recipe.Step{sub}, child); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}(sub)

		if s.cfg.Delay > 0 {
			time.Sleep(time.Duration(s.cfg.Delay * float64(time.Second)))
		}
	}
	wg.Wait()

	return firstErr
}
