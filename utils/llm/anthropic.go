package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/retry"
)

const anthropicAPIVersion = "2023-06-01"

// anthropicMessage/anthropicRequest/anthropicResponse mirror the teacher's
// own raw-REST Anthropic types (utils/models/anthropic.go): the Messages
// API has no structured-output mode, so every call is a single user
// message and the shape steering happens in the prompt text, same as the
// chat-completion providers.
type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicMessage struct {
	Role    string             `json:"role"`
	Content []anthropicContent `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Error   *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicHandle struct {
	model  string
	apiKey string

	// bedrock is non-nil when AWS credentials/AWS_REGION were found at
	// construction time, per §11's "same provider tag, alternate
	// transport" commitment: the anthropic provider prefers Bedrock's
	// Converse API over the direct REST endpoint when AWS is configured,
	// the same credential-driven branching the teacher uses to pick
	// Azure managed identity over an API key.
	bedrock *bedrockruntime.Client
}

func newAnthropicHandle(model string) (*anthropicHandle, error) {
	if region := os.Getenv("AWS_REGION"); region != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
		if err == nil {
			return &anthropicHandle{model: model, bedrock: bedrockruntime.NewFromConfig(awsCfg)}, nil
		}
		config.DebugLog("AWS_REGION set but failed to load default AWS config, falling back to direct Anthropic REST: %v", err)
	}

	cfg := config.LoadEnvConfig()
	if cfg.AnthropicAPIKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "ANTHROPIC_API_KEY is not set (and no AWS_REGION for Bedrock)")
	}
	return &anthropicHandle{model: model, apiKey: cfg.AnthropicAPIKey}, nil
}

func (h *anthropicHandle) SupportsBuiltinTools() bool { return false }

func (h *anthropicHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if req.BuiltinTools != nil {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"anthropic\" does not support openai_builtin_tools")
	}
	if len(req.Tools) > 0 {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"anthropic\" does not yet attach mcp_servers as tool providers (requested: %s)", fmtToolNames(req.Tools))
	}

	prompt := withStructuredInstruction(req.Prompt, req)

	if h.bedrock != nil {
		result, err := retry.WithRetry(
			func() (interface{}, error) { return h.callBedrock(ctx, prompt) },
			retry.Is429Error,
			retry.DefaultRetryConfig,
		)
		if err != nil {
			return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "anthropic/%s (bedrock) call failed", h.model)
		}
		return decodeResponse(result.(string), req)
	}

	body := anthropicRequest{
		Model:     h.model,
		MaxTokens: 4096,
		Messages: []anthropicMessage{
			{Role: "user", Content: []anthropicContent{{Type: "text", Text: prompt}}},
		},
	}

	result, err := retry.WithRetry(
		func() (interface{}, error) { return h.call(ctx, body) },
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "anthropic/%s call failed", h.model)
	}

	return decodeResponse(result.(string), req)
}

// callBedrock routes the same prompt through Bedrock's Converse API,
// which Amazon fronts with a model-agnostic request/response shape
// instead of Anthropic's own Messages wire format.
func (h *anthropicHandle) callBedrock(ctx context.Context, prompt string) (string, error) {
	out, err := h.bedrock.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: &h.model,
		Messages: []types.Message{
			{
				Role:    types.ConversationRoleUser,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: prompt}},
			},
		},
	})
	if err != nil {
		return "", err
	}

	output, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("bedrock converse returned no message output")
	}

	var text string
	for _, block := range output.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			text += tb.Value
		}
	}
	return text, nil
}

func (h *anthropicHandle) call(ctx context.Context, body anthropicRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.anthropic.com/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", h.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	client := &http.Client{Timeout: 120 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode anthropic reply: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var text string
	for _, c := range parsed.Content {
		if c.Type == "text" {
			text += c.Text
		}
	}
	return text, nil
}
