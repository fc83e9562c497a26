package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/retry"
)

// responsesRequest/responsesResponse mirror the teacher's own
// ResponsesConfig shape (utils/models/provider.go), reused here as the
// actual wire format for OpenAI's Responses API rather than as a
// provider-internal-only struct, since that API speaks exactly these
// field names (input, instructions, max_output_tokens, tools).
type responsesRequest struct {
	Model        string                   `json:"model"`
	Input        string                   `json:"input"`
	Instructions string                   `json:"instructions,omitempty"`
	Tools        []map[string]interface{} `json:"tools,omitempty"`
	Text         *responsesTextFormat     `json:"text,omitempty"`
}

type responsesTextFormat struct {
	Format map[string]interface{} `json:"format"`
}

type responsesResponse struct {
	Output []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// responsesHandle backs both openai_responses and azure_responses: the
// Responses API is the one required surface that attaches
// openai_builtin_tools, per §4.5/§4.7.
type responsesHandle struct {
	provider string
	baseURL  string
	apiKey   string
	headers  map[string]string
	model    string
}

func newOpenAIResponsesHandle(model string) *responsesHandle {
	cfg := config.LoadEnvConfig()
	return &responsesHandle{
		provider: "openai_responses",
		baseURL:  "https://api.openai.com/v1",
		apiKey:   cfg.OpenAIAPIKey,
		model:    model,
	}
}

func newAzureResponsesHandle(model, deployment string) (*responsesHandle, error) {
	cfg := config.LoadEnvConfig()
	if cfg.AzureBaseURL == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "AZURE_OPENAI_BASE_URL (or AZURE_OPENAI_ENDPOINT) is not set")
	}
	if deployment == "" {
		deployment = cfg.AzureDeploymentName
	}
	if deployment == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "azure_responses model identifier must include a deployment")
	}

	h := &responsesHandle{
		provider: "azure_responses",
		baseURL:  fmt.Sprintf("%s/openai/deployments/%s", cfg.AzureBaseURL, deployment),
		model:    model,
		headers:  map[string]string{"api-version": cfg.AzureAPIVersion},
	}
	if cfg.AzureUseManagedIdentity {
		token, err := fetchManagedIdentityToken(cfg.AzureManagedIdentityID)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.LLMFailure, err, "failed to obtain Azure managed-identity token")
		}
		h.headers["Authorization"] = "Bearer " + token
	} else {
		if cfg.AzureAPIKey == "" {
			return nil, rerrors.New(rerrors.ConfigInvalid, "AZURE_OPENAI_API_KEY is not set and AZURE_USE_MANAGED_IDENTITY is not true")
		}
		h.headers["api-key"] = cfg.AzureAPIKey
	}
	return h, nil
}

func (h *responsesHandle) SupportsBuiltinTools() bool { return true }

func (h *responsesHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if len(req.Tools) > 0 {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider %q does not yet attach mcp_servers as tool providers (requested: %s)", h.provider, fmtToolNames(req.Tools))
	}

	body := responsesRequest{
		Model: h.model,
		Input: req.Prompt,
		Tools: req.BuiltinTools,
	}
	switch req.Format {
	case OutputFiles:
		body.Instructions = "Respond with a JSON object {\"files\": [{\"path\": string, \"content\": string}, ...]} and nothing else."
		body.Text = &responsesTextFormat{Format: map[string]interface{}{"type": "json_object"}}
	case OutputSchema:
		body.Instructions = "Respond with a single JSON object matching the requested fields and nothing else."
		body.Text = &responsesTextFormat{Format: map[string]interface{}{"type": "json_object"}}
	}

	result, err := retry.WithRetry(
		func() (interface{}, error) { return h.call(ctx, body) },
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "%s/%s call failed", h.provider, h.model)
	}

	return decodeResponse(result.(string), req)
}

func (h *responsesHandle) call(ctx context.Context, body responsesRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := h.baseURL + "/responses"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.apiKey)
	}
	for k, v := range h.headers {
		if k == "api-version" {
			q := httpReq.URL.Query()
			q.Set("api-version", v)
			httpReq.URL.RawQuery = q.Encode()
			continue
		}
		httpReq.Header.Set(k, v)
	}

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

	var parsed responsesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode responses API reply: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("responses API error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("responses API returned status %d: %s", resp.StatusCode, string(raw))
	}

	var text string
	for _, out := range parsed.Output {
		for _, c := range out.Content {
			if c.Type == "output_text" || c.Type == "text" {
				text += c.Text
			}
		}
	}
	return text, nil
}
