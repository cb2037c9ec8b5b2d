package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ihaichao/stock-pulse/internal/common"
	"github.com/ihaichao/stock-pulse/internal/interfaces"
)

// NewLLMService creates the configured LLM provider. Provider "none"
// returns nil with no error so summary generation can be switched off
// without dummy credentials.
func NewLLMService(cfg *common.Config, storageManager interfaces.StorageManager, logger arbor.ILogger) (interfaces.LLMService, error) {
	provider := cfg.LLM.DefaultProvider
	if provider == "" {
		provider = common.LLMProviderClaude
	}

	logger.Info().Str("provider", string(provider)).Msg("Initializing LLM service")

	switch provider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, storageManager, logger)

	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, storageManager, logger)

	case common.LLMProviderNone:
		logger.Warn().Msg("LLM provider disabled, summaries will not be generated")
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}
