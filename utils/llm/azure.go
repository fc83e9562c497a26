package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/recipexec/engine/utils/config"
	"github.com/recipexec/engine/utils/rerrors"
)

// azureHandle wraps go-openai's Azure client config, selecting API-key or
// managed-identity auth per §6's AZURE_USE_MANAGED_IDENTITY switch, the
// same credential-driven branching style the teacher uses to distinguish
// local/CLI providers from API-key ones.
type azureHandle struct {
	model      string
	deployment string
	client     *openai.Client
}

func newAzureHandle(model, deployment string) (*azureHandle, error) {
	cfg := config.LoadEnvConfig()
	if cfg.AzureBaseURL == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "AZURE_OPENAI_BASE_URL (or AZURE_OPENAI_ENDPOINT) is not set")
	}
	if deployment == "" {
		deployment = cfg.AzureDeploymentName
	}
	if deployment == "" {
		return nil, rerrors.New(rerrors.ConfigInvalid, "azure model identifier must include a deployment: \"azure/<model>/<deployment>\"")
	}

	var apiKey string
	if cfg.AzureUseManagedIdentity {
		token, err := fetchManagedIdentityToken(cfg.AzureManagedIdentityID)
		if err != nil {
			return nil, rerrors.Wrap(rerrors.LLMFailure, err, "failed to obtain Azure managed-identity token")
		}
		apiKey = token
	} else {
		if cfg.AzureAPIKey == "" {
			return nil, rerrors.New(rerrors.ConfigInvalid, "AZURE_OPENAI_API_KEY is not set and AZURE_USE_MANAGED_IDENTITY is not true")
		}
		apiKey = cfg.AzureAPIKey
	}

	clientCfg := openai.DefaultAzureConfig(apiKey, cfg.AzureBaseURL)
	clientCfg.APIVersion = cfg.AzureAPIVersion
	clientCfg.AzureModelMapperFunc = func(string) string { return deployment }

	return &azureHandle{model: model, deployment: deployment, client: openai.NewClientWithConfig(clientCfg)}, nil
}

func (h *azureHandle) SupportsBuiltinTools() bool { return false }

func (h *azureHandle) Generate(ctx context.Context, req Request) (Response, error) {
	if req.BuiltinTools != nil {
		return Response{}, rerrors.New(rerrors.ProviderUnsupported, "provider \"azure\" does not support openai_builtin_tools (use azure_responses)")
	}

	prompt := req.Prompt
	var format *openai.ChatCompletionResponseFormat
	if req.Format == OutputSchema || req.Format == OutputFiles {
		prompt = withStructuredInstruction(prompt, req)
		format = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	ccReq := openai.ChatCompletionRequest{
		Model: h.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if format != nil {
		ccReq.ResponseFormat = format
	}

	text, err := runChatCompletionWithTools(ctx, h.client, ccReq, req.Tools, fmt.Sprintf("azure/%s", h.deployment))
	if err != nil {
		return Response{}, rerrors.Wrap(rerrors.LLMFailure, err, "azure/%s/%s call failed", h.model, h.deployment)
	}

	return decodeResponse(text, req)
}

// fetchManagedIdentityToken retrieves a token from Azure's instance
// metadata service, the standard managed-identity flow, scoped to the
// Cognitive Services resource Azure OpenAI sits behind. No Azure SDK is
// in go.mod, so this talks to IMDS directly over net/http, the same
// posture the teacher takes toward every non-LLM-SDK HTTP dependency
// (raw REST, e.g. anthropic.go/ollama.go).
func fetchManagedIdentityToken(clientID string) (string, error) {
	const imdsURL = "http://169.254.169.254/metadata/identity/oauth2/token"
	const resource = "https://cognitiveservices.azure.com/"

	req, err := http.NewRequest(http.MethodGet, imdsURL, nil)
	if err != nil {
		return "", err
	}
	q := req.URL.Query()
	q.Set("api-version", "2018-02-01")
	q.Set("resource", resource)
	if clientID != "" {
		q.Set("client_id", clientID)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Metadata", "true")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", rerrors.New(rerrors.LLMFailure, "IMDS token request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.AccessToken, nil
}
