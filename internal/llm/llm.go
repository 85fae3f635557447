package llm

import (
	"fmt"
	"os"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/bueller-go/internal/config"
)

// NewClient creates a chat completion client for the configured provider.
// An empty API key falls back to OPENAI_API_KEY.
func NewClient(cfg config.LLMConfig) (*openai.Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}

	var clientConfig openai.ClientConfig
	switch cfg.Provider {
	case "", "openai":
		clientConfig = openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	case "azure":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for the azure provider")
		}
		clientConfig = openai.DefaultAzureConfig(apiKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	return openai.NewClientWithConfig(clientConfig), nil
}
