package steps

import (
	"context"
	"encoding/json"

	"github.com/recipexec/engine/utils/mcp"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("mcp", newMCPStep)
}

type mcpStepConfig struct {
	Server    recipe.MCPServerDescriptor `json:"server"`
	ToolName  string                     `json:"tool_name"`
	Arguments map[string]interface{}     `json:"arguments"`
	ResultKey string                     `json:"result_key"`
}

type mcpStep struct {
	cfg mcpStepConfig
}

// mcpCaller is the slice of *mcp.Server's surface this step actually
// uses, so tests can swap in a hand-written double in place of a live
// MCP session.
type mcpCaller interface {
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (map[string]interface{}, error)
}

var getMCPServer = func(d recipe.MCPServerDescriptor) (mcpCaller, error) {
	return mcp.GetMCPServer(d)
}

func newMCPStep(raw json.RawMessage) (step.Step, error) {
	var cfg mcpStepConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "mcp: invalid config")
	}
	if cfg.ToolName == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "mcp: \"tool_name\" is required")
	}
	if cfg.ResultKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "mcp: \"result_key\" is required")
	}
	return &mcpStep{cfg: cfg}, nil
}

// Execute renders the server descriptor, tool name and arguments, opens
// a session to the server, invokes the named tool, and stores the
// normalized result under result_key, overwriting.
func (s *mcpStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	vars := rc.AsDict()

	descriptor, err := renderMCPDescriptor(s.cfg.Server, vars)
	if err != nil {
		return err
	}

	arguments, err := renderArguments(s.cfg.Arguments, vars)
	if err != nil {
		return err
	}

	toolName, err := template.Render(s.cfg.ToolName, vars)
	if err != nil {
		return err
	}

	server, err := getMCPServer(descriptor)
	if err != nil {
		return err
	}

	result, err := server.CallTool(ctx, toolName, arguments)
	if err != nil {
		return err
	}

	rc.Set(s.cfg.ResultKey, result)
	return nil
}

func renderArguments(args map[string]interface{}, vars map[string]interface{}) (map[string]interface{}, error) {
	if len(args) == 0 {
		return args, nil
	}
	rendered, err := template.RenderStringsDeep(args, vars, false)
	if err != nil {
		return nil, err
	}
	m, ok := rendered.(map[string]interface{})
	if !ok {
		return nil, rerrors.New(rerrors.ConfigInvalid, "mcp: \"arguments\" must be a mapping")
	}
	return m, nil
}
