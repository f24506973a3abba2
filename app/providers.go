package app

import (
	"github.com/upb/rag-chat/config"
	"github.com/upb/rag-chat/services/providers"
	"github.com/upb/rag-chat/services/providers/ollama"
	"github.com/upb/rag-chat/services/providers/openai"
)

// NewProviderRegistry builds the providers selected for chat and embeddings.
// Providers nobody uses are not created.
func NewProviderRegistry(cfg *config.Config) (*providers.Registry, error) {
	builder := providers.NewRegistryBuilder().
		WithProviderBuilder(config.ProviderOpenAI, func(pc providers.ProviderConfig) (providers.Provider, error) {
			return openai.NewOpenAIAdapter(pc), nil
		}).
		WithProviderBuilder(config.ProviderOllama, func(pc providers.ProviderConfig) (providers.Provider, error) {
			return ollama.NewAdapter(pc), nil
		})

	configs := make(map[string]providers.ProviderConfig, 2)
	for _, name := range []string{cfg.Providers.ChatProvider, cfg.Providers.EmbeddingProvider} {
		if _, done := configs[name]; done {
			continue
		}
		configs[name] = providerConfig(cfg, name)
	}
	return builder.Build(configs)
}

func providerConfig(cfg *config.Config, name string) providers.ProviderConfig {
	pc := providers.DefaultProviderConfig()
	switch name {
	case config.ProviderOpenAI:
		o := cfg.Providers.OpenAI
		pc.APIKey = o.APIKey
		pc.BaseURL = o.BaseURL
		pc.OrgID = o.OrgID
		pc.Timeout = o.Timeout
		pc.MaxRetries = o.MaxRetries
		pc.RetryDelay = o.RetryDelay
	case config.ProviderOllama:
		o := cfg.Providers.Ollama
		pc.BaseURL = o.BaseURL
		pc.Timeout = o.Timeout
		pc.MaxRetries = o.MaxRetries
		pc.RetryDelay = o.RetryDelay
	}
	return pc
}
