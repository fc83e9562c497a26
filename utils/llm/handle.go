// Package llm routes a "provider/name[/deployment]" model identifier to a
// concrete provider adapter and presents a uniform call contract: run a
// prompt, optionally with MCP tool providers attached, optionally
// constrained to a structured-output schema.
//
// Grounded on the teacher's utils/models package (one Go file per
// provider, a shared registry for model-name validation), generalized
// from the teacher's "free-text prompt in, free-text reply out"
// SendPrompt contract to the spec's richer structured/tool-aware call.
package llm

import (
	"context"
	"strings"

	"github.com/recipexec/engine/utils/mcp"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/schema"
)

// OutputFormat selects how a Handle's result is shaped.
type OutputFormat int

const (
	OutputText OutputFormat = iota
	OutputFiles
	OutputSchema
)

// Request is the uniform call a step makes into a provider Handle.
type Request struct {
	Prompt       string
	Format       OutputFormat
	Schema       *schema.Record // set when Format == OutputSchema
	Tools        []mcp.ToolProvider
	BuiltinTools []map[string]interface{}
}

// Response is what a Handle call produces. Exactly one of Text, Files,
// or Structured is populated, matching the request's Format.
type Response struct {
	Text       string
	Files      []recipe.FileSpec
	Structured map[string]interface{}
}

// Handle is a resolved provider/model pair ready to run prompts.
type Handle interface {
	Generate(ctx context.Context, req Request) (Response, error)
	SupportsBuiltinTools() bool
}

// Identifier is a parsed "provider/name[/deployment]" model string.
type Identifier struct {
	Provider   string
	Name       string
	Deployment string
}

// ParseIdentifier splits a model identifier on "/".
func ParseIdentifier(s string) (Identifier, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) < 2 {
		return Identifier{}, rerrors.New(rerrors.ProviderUnsupported, "model identifier %q must be \"provider/name[/deployment]\"", s)
	}
	id := Identifier{Provider: parts[0], Name: parts[1]}
	if len(parts) == 3 {
		id.Deployment = parts[2]
	}
	return id, nil
}

// GetModel resolves a model identifier to a ready Handle, per §4.7.
func GetModel(identifier string) (Handle, error) {
	id, err := ParseIdentifier(identifier)
	if err != nil {
		return nil, err
	}

	warnIfUnknownModel(id.Provider, id.Name)

	switch id.Provider {
	case "openai":
		return newOpenAIHandle(id.Name), nil
	case "openai_responses":
		return newOpenAIResponsesHandle(id.Name), nil
	case "azure":
		return newAzureHandle(id.Name, id.Deployment)
	case "azure_responses":
		return newAzureResponsesHandle(id.Name, id.Deployment)
	case "anthropic":
		return newAnthropicHandle(id.Name)
	case "ollama":
		return newOllamaHandle(id.Name), nil
	case "google":
		return newGoogleHandle(id.Name)
	case "deepseek", "xai", "vllm":
		return newOpenAICompatibleHandle(id.Provider, id.Name)
	default:
		return nil, rerrors.New(rerrors.ProviderUnsupported, "unknown provider %q in model identifier", id.Provider)
	}
}

func fmtToolNames(tools []mcp.ToolProvider) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return strings.Join(names, ",")
}
