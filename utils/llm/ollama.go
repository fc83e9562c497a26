package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/rerrors"
	"github.com/recipexec/engine/utils/retry"
)

// ollamaRequest/ollamaResponse mirror the teacher's own REST types
// (utils/models/ollama.go) for the local /api/generate endpoint.
type ollamaRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
	Format string `json:"format,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaHandle struct {
	model   string
	baseURL string
}

func newOllamaHandle(model string) *ollamaHandle {
	cfg := config.LoadEnvConfig()
	return &ollamaHandle{model: model, baseURL: strings.TrimSuffix(cfg.OllamaBaseURL, "/")}
}

func (h *ollamaHandle) SupportsBuiltinTools() bool { return false }

func (h *ollamaHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if req.BuiltinTools != nil {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"ollama\" does not support openai_builtin_tools")
	}
	if len(req.Tools) > 0 {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"ollama\" does not yet attach mcp_servers as tool providers (requested: %s)", fmtToolNames(req.Tools))
	}

	prompt := withStructuredInstruction(req.Prompt, req)
	body := ollamaRequest{Model: h.model, Prompt: prompt, Stream: false}
	if req.Format == OutputSchema || req.Format == OutputFiles {
		body.Format = "json"
	}

	result, err := retry.WithRetry(
		func() (interface{}, error) { return h.call(ctx, body) },
		retry.Is429Error,
		retry.DefaultRetryConfig,
	)
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "ollama/%s call failed (is ollama running at %s?)", h.model, h.baseURL)
	}

	return decodeResponse(result.(string), req)
}

func (h *ollamaHandle) call(ctx context.Context, body ollamaRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 300 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode ollama reply: %w", err)
	}
	return parsed.Response, nil
}
