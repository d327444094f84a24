package llm

import (
	"context"
	"fmt"
	"strings"

	"fintrack/internal/log"
)

// New builds the provider named by cfg.Provider.
func New(ctx context.Context, cfg Config, logger *log.Logger) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClient(cfg, logger), nil
	case "gemini":
		return NewGeminiClient(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
}
