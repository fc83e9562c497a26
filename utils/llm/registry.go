package llm

import (
	"strings"
	"sync"

	"github.com/recipexec/engine/utils/config"
)

// ModelRegistry tracks known model names/families per provider, adapted
// from the teacher's utils/models.ModelRegistry. It is advisory only: an
// unrecognized model name logs a debug warning rather than failing the
// call, since provider catalogs move faster than this registry can be
// kept current and recipes may legitimately target brand-new or
// self-hosted model names.
type ModelRegistry struct {
	mu       sync.RWMutex
	models   map[string][]string
	families map[string][]string
}

var globalRegistry = newModelRegistry()

func newModelRegistry() *ModelRegistry {
	r := &ModelRegistry{
		models:   make(map[string][]string),
		families: make(map[string][]string),
	}
	r.registerModels("anthropic", []string{
		"claude-sonnet-4-5", "claude-haiku-4-5", "claude-opus-4-5",
		"claude-opus-4-1", "claude-opus-4", "claude-sonnet-4",
		"claude-3-7-sonnet", "claude-3-5-sonnet", "claude-3-5-haiku",
	})
	r.registerFamilies("anthropic", []string{"claude-"})

	r.registerModels("openai", []string{
		"gpt-5.1", "gpt-5.1-mini", "gpt-5.1-nano",
		"gpt-5", "gpt-5-mini", "gpt-5-nano",
		"gpt-4.1", "gpt-4o", "chatgpt-4o-latest",
		"o3", "o3-mini", "o1", "o4-mini",
	})
	r.registerFamilies("openai", []string{"gpt-", "o1", "o3", "o4"})

	r.registerModels("xai", []string{"grok-beta", "grok-vision-beta", "grok-4"})
	r.registerFamilies("xai", []string{"grok-"})

	r.registerModels("deepseek", []string{"deepseek-chat", "deepseek-coder", "deepseek-reasoner"})
	r.registerFamilies("deepseek", []string{"deepseek-"})

	r.registerModels("google", []string{
		"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite",
		"gemini-1.5-pro", "gemini-1.5-flash",
	})
	r.registerFamilies("google", []string{"gemini-"})

	return r
}

func (r *ModelRegistry) registerModels(provider string, models []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models[provider] = append(r.models[provider], models...)
}

func (r *ModelRegistry) registerFamilies(provider string, families []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.families[provider] = append(r.families[provider], families...)
}

// ValidateModel reports whether modelName is a known exact match or
// family prefix for provider. Providers the registry has no opinion
// about (azure, azure_responses, ollama, vllm, ...) always validate true,
// since deployment/local names are operator-defined.
func (r *ModelRegistry) ValidateModel(provider, modelName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	known, tracked := r.models[provider]
	if !tracked {
		return true
	}

	name := strings.ToLower(strings.TrimSpace(modelName))
	for _, valid := range known {
		if name == valid {
			return true
		}
	}
	for _, family := range r.families[provider] {
		if strings.HasPrefix(name, family) {
			return true
		}
	}
	return false
}

// GetRegistry returns the process-wide model registry.
func GetRegistry() *ModelRegistry {
	return globalRegistry
}

// warnIfUnknownModel logs a debug-level notice for provider/name pairs
// the registry doesn't recognize; it never blocks the call.
func warnIfUnknownModel(provider, name string) {
	if !globalRegistry.ValidateModel(provider, name) {
		config.DebugLog("model %q is not in the known catalog for provider %q; proceeding anyway", name, provider)
	}
}
