package llm

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/retry"
)

// googleHandle is an enrichment provider beyond the spec's required set,
// wiring the generative-ai-go SDK the way the teacher's utils/models/google.go
// does: one client built per call, since the SDK's client is cheap to
// construct and this keeps the Handle interface uniform with the REST
// adapters (no long-lived connection to manage/close across recipe runs).
type googleHandle struct {
	model  string
	apiKey string
}

func newGoogleHandle(model string) (*googleHandle, error) {
	cfg := config.LoadEnvConfig()
	if cfg.GeminiAPIKey == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "GEMINI_API_KEY is not set")
	}
	return &googleHandle{model: model, apiKey: cfg.GeminiAPIKey}, nil
}

func (h *googleHandle) SupportsBuiltinTools() bool { return false }

func (h *googleHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if req.BuiltinTools != nil {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"google\" does not support openai_builtin_tools")
	}
	if len(req.Tools) > 0 {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"google\" does not yet attach mcp_servers as tool providers (requested: %s)", fmtToolNames(req.Tools))
	}

	prompt := withStructuredInstruction(req.Prompt, req)

	result, err := retry.WithRetry(
		func() (interface{}, error) { return h.call(ctx, prompt, req) },
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "google/%s call failed", h.model)
	}

	return decodeResponse(result.(string), req)
}

func (h *googleHandle) call(ctx context.Context, prompt string, req Request) (string, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(h.apiKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	model := client.GenerativeModel(h.model)
	if req.Format == OutputSchema || req.Format == OutputFiles {
		model.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini model %q returned no candidates", h.model)
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}
	return text, nil
}
