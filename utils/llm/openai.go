package llm

import (
	"context"
	"encoding/json"
	"fmt"

	gomcp "github.com/mark3labs/mcp-go/mcp"
	openai "github.com/sashabaranov/go-openai"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/mcp"
	"github.com/recipexec/engine/utils/recipe"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/retry"
)

// chatHandle backs every provider that speaks the OpenAI chat-completion
// wire format against a configurable base URL: openai itself, azure (via
// a differently-configured client), and the OpenAI-compatible extras
// (deepseek, xai, vllm) the teacher's utils/models package also points
// the same client at.
type chatHandle struct {
	provider string
	model    string
	client   *openai.Client
}

func newOpenAIHandle(model string) *chatHandle {
	cfg := config.LoadEnvConfig()
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	return &chatHandle{provider: "openai", model: model, client: openai.NewClientWithConfig(clientCfg)}
}

var compatibleBaseURLs = map[string]string{
	"deepseek": "https://api.deepseek.com/v1",
	"xai":      "https://api.x.ai/v1",
	"vllm":     "http://localhost:8000/v1",
}

func newOpenAICompatibleHandle(provider, model string) (*chatHandle, error) {
	baseURL, ok := compatibleBaseURLs[provider]
	if !ok {
		return nil, rerrors.New(rerrors.ProviderUnsupported, "no known base URL for openai-compatible provider %q", provider)
	}
	cfg := config.LoadEnvConfig()
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientCfg.BaseURL = baseURL
	return &chatHandle{provider: provider, model: model, client: openai.NewClientWithConfig(clientCfg)}, nil
}

func (h *chatHandle) SupportsBuiltinTools() bool { return false }

func (h *chatHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if req.BuiltinTools != nil {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider %q does not support openai_builtin_tools (use an *_responses provider)", h.provider)
	}

	prompt := req.Prompt
	var schemaFormat *openai.ChatCompletionResponseFormat
	if req.Format == OutputSchema || req.Format == OutputFiles {
		prompt = withStructuredInstruction(prompt, req)
		schemaFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	ccReq := openai.ChatCompletionRequest{
		Model: h.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if schemaFormat != nil {
		ccReq.ResponseFormat = schemaFormat
	}

	text, err := runChatCompletionWithTools(ctx, h.client, ccReq, req.Tools, h.provider)
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "%s/%s call failed", h.provider, h.model)
	}

	return decodeResponse(text, req)
}

// maxToolRounds bounds the attach-tools/call-model/run-tool loop so a
// model that keeps emitting tool calls can't wedge a recipe run forever.
const maxToolRounds = 8

// runChatCompletionWithTools drives the chat-completion request/response
// loop shared by every provider speaking the OpenAI chat-completion wire
// format (openai, azure, deepseek, xai, vllm): attach req.Tools as
// function-tool definitions, and whenever the model responds with tool
// calls instead of a final answer, route each one through the matching
// mcp.ToolProvider and feed the result back as a "tool" message.
func runChatCompletionWithTools(ctx context.Context, client *openai.Client, ccReq openai.ChatCompletionRequest, tools []mcp.ToolProvider, providerLabel string) (string, error) {
	toolsByName, err := attachTools(ctx, &ccReq, tools)
	if err != nil {
		return "", err
	}

	for round := 0; ; round++ {
		if round >= maxToolRounds {
			return "", rerrors.New(rerrors.ToolCallFailure, "%s: exceeded %d tool-call rounds without a final answer", providerLabel, maxToolRounds)
		}

		result, err := retry.WithRetry(
			func() (interface{}, error) {
				resp, err := client.CreateChatCompletion(ctx, ccReq)
				if err != nil {
					return nil, err
				}
				if len(resp.Choices) == 0 {
					return nil, rerrors.New(rerrors.LLMFailure, "provider %q returned no choices", providerLabel)
				}
				return resp.Choices[0].Message, nil
			},
			retry.Is429Error,
			retry.DefaultRetryConfig,
		)
		if err != nil {
			return "", err
		}

		msg := result.(openai.ChatCompletionMessage)
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		ccReq.Messages = append(ccReq.Messages, msg)
		for _, tc := range msg.ToolCalls {
			ccReq.Messages = append(ccReq.Messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: tc.ID,
				Content:    runToolCall(ctx, toolsByName, tc),
			})
		}
	}
}

// attachTools lists every attached server's tools once, up front, and
// returns a name→provider lookup for routing the model's tool calls back
// to the right server.
func attachTools(ctx context.Context, ccReq *openai.ChatCompletionRequest, tools []mcp.ToolProvider) (map[string]mcp.ToolProvider, error) {
	if len(tools) == 0 {
		return nil, nil
	}

	byName := make(map[string]mcp.ToolProvider)
	var defs []openai.Tool
	for _, provider := range tools {
		listed, err := provider.ListTools(ctx)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.ToolCallFailure, err, "failed to list tools on mcp server %q", provider.Name())
		}
		for _, t := range listed {
			byName[t.Name] = provider
			defs = append(defs, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  toolParameters(t.InputSchema),
				},
			})
		}
	}
	ccReq.Tools = defs
	return byName, nil
}

func toolParameters(s gomcp.ToolInputSchema) map[string]interface{} {
	params := map[string]interface{}{"type": "object"}
	if s.Type != "" {
		params["type"] = s.Type
	}
	if len(s.Properties) > 0 {
		params["properties"] = s.Properties
	}
	if len(s.Required) > 0 {
		params["required"] = s.Required
	}
	return params
}

// runToolCall invokes the tool a model requested and returns the "tool"
// message content to feed back. Call failures are reported to the model
// as an error string rather than aborting the run, so it can decide how
// to recover (retry with different arguments, apologize, etc.).
func runToolCall(ctx context.Context, toolsByName map[string]mcp.ToolProvider, tc openai.ToolCall) string {
	provider, ok := toolsByName[tc.Function.Name]
	if !ok {
		return fmt.Sprintf("error: no attached mcp server exposes tool %q", tc.Function.Name)
	}

	var args map[string]interface{}
	if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
		return fmt.Sprintf("error: invalid arguments for tool %q: %v", tc.Function.Name, err)
	}

	result, err := provider.CallTool(ctx, tc.Function.Name, args)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("error: failed to encode tool result: %v", err)
	}
	return string(data)
}

// withStructuredInstruction appends an instruction steering the model
// toward the shape llm_generate needs (a bare JSON object, or a JSON
// array of file specs), since the chat-completion API only constrains
// to "valid JSON object", not to an arbitrary schema shape.
func withStructuredInstruction(prompt string, req Request) string {
	switch req.Format {
	case OutputFiles:
		return prompt + "\n\nRespond with a JSON object of the form {\"files\": [{\"path\": string, \"content\": string}, ...]} and nothing else."
	case OutputSchema:
		return prompt + "\n\nRespond with a single JSON object matching the requested fields and nothing else."
	default:
		return prompt
	}
}

// decodeResponse interprets a model's raw text reply according to the
// request's output format, shared by every chat-completion-shaped
// provider (openai, azure, deepseek, xai, vllm, ollama).
func decodeResponse(text string, req Request) (Response, error) {
	switch req.Format {
	case OutputText:
		return Response{Text: text}, nil

	case OutputFiles:
		var payload struct {
			Files []recipe.FileSpec `json:"files"`
		}
		if err := json.Unmarshal([]byte(text), &payload); err != nil {
			return Response{}, rerrors.Wrap(rerrors.SchemaInvalid, err, "failed to parse files output: %s", text)
		}
		return Response{Files: payload.Files}, nil

	case OutputSchema:
		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(text), &raw); err != nil {
			return Response{}, rerrors.Wrap(rerrors.SchemaInvalid, err, "failed to parse structured output: %s", text)
		}
		structured, err := coerceRecord(req.Schema, raw)
		if err != nil {
			return Response{}, err
		}
		return Response{Structured: structured}, nil

	default:
		return Response{}, rerrors.New(rerrors.ConfigInvalid, "unknown output format")
	}
}
