package agent

import (
	"fmt"

	"github.com/user/taskpilot/internal/types"
	"github.com/user/taskpilot/pkg/llm"
	"github.com/user/taskpilot/pkg/llm/anthropic"
	"github.com/user/taskpilot/pkg/llm/ollama"
	"github.com/user/taskpilot/pkg/llm/openai"
)

// Provider names accepted by NewProvider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
)

// NewProvider builds the named LLM provider. Missing credentials or an
// unknown name yield a *types.ConfigurationError.
func NewProvider(name string, cfg llm.Config) (llm.Provider, error) {
	if cfg.Model == "" {
		return nil, &types.ConfigurationError{Component: "llm.model", Reason: "no model set"}
	}
	switch name {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, &types.ConfigurationError{Component: "llm.api_key", Reason: "set OPENAI_API_KEY or llm.api_key"}
		}
		return openai.New(&cfg), nil
	case ProviderAnthropic:
		if cfg.APIKey == "" {
			return nil, &types.ConfigurationError{Component: "llm.api_key", Reason: "set ANTHROPIC_API_KEY or llm.api_key"}
		}
		return anthropic.New(&cfg), nil
	case ProviderOllama:
		p, err := ollama.New(&cfg)
		if err != nil {
			return nil, &types.ConfigurationError{Component: "llm.base_url", Reason: err.Error()}
		}
		return p, nil
	default:
		return nil, &types.ConfigurationError{
			Component: "llm.provider",
			Reason:    fmt.Sprintf("unknown provider %q", name),
		}
	}
}

// CheckHosted reports what the hosted agent is missing, or nil.
func CheckHosted(apiKey, assistantID string) *types.ConfigurationError {
	if apiKey == "" {
		return &types.ConfigurationError{Component: "hosted.api_key", Reason: "set OPENAI_API_KEY or hosted.api_key"}
	}
	if assistantID == "" {
		return &types.ConfigurationError{Component: "hosted.assistant_id", Reason: "set TASKPILOT_ASSISTANT_ID or hosted.assistant_id"}
	}
	return nil
}
