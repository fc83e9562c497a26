package steps

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("conditional", newConditional)
}

type branch struct {
	Steps []recipe.Step `json:"steps"`
}

type conditionalConfig struct {
	Condition string  `json:"condition"`
	IfTrue    *branch `json:"if_true"`
	IfFalse   *branch `json:"if_false"`
}

type conditionalStep struct {
	cfg conditionalConfig
}

func newConditional(raw json.RawMessage) (step.Step, error) {
	var cfg conditionalConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "conditional: invalid config")
	}
	if cfg.Condition == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "conditional: \"condition\" is required")
	}
	return &conditionalStep{cfg: cfg}, nil
}

func (s *conditionalStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	vars := rc.AsDict()
	vars["file_exists"] = template.FileExistsFunc(fileExists)

	rendered, err := template.Render(s.cfg.Condition, vars)
	if err != nil {
		return err
	}

	chosen := s.cfg.IfFalse
	if isTruthy(rendered) {
		chosen = s.cfg.IfTrue
	}
	if chosen == nil {
		return nil
	}

	return runBranch(ctx, chosen.Steps, rc)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isTruthy(rendered string) bool {
	trimmed := strings.TrimSpace(rendered)
	if trimmed == "" {
		return false
	}
	switch strings.ToLower(trimmed) {
	case "false", "0", "no", "none", "null":
		return false
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err == nil {
		f, _ := strconv.ParseFloat(trimmed, 64)
		return f != 0
	}
	return true
}
