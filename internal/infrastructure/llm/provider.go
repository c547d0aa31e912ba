package llm

import (
	"fmt"
	"log/slog"

	"AdvisoryScanner/internal/config"
	"AdvisoryScanner/internal/infrastructure/ml"
	"AdvisoryScanner/internal/ports"
)

// NewCompleter builds the provider client named by cfg.Provider and wraps it
// with rate limiting and a circuit breaker.
func NewCompleter(cfg config.LLMConfig, logger *slog.Logger) (ports.Completer, error) {
	var (
		base ports.Completer
		err  error
	)

	switch cfg.Provider {
	case config.ProviderOpenAI, "":
		base, err = NewOpenAIClient(cfg)
	case config.ProviderAnthropic:
		base, err = NewAnthropicClient(cfg)
	case config.ProviderHTTP:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm.base_url is required for the http provider")
		}
		base = ml.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.Timeout)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return NewGuardedCompleter(base, cfg.RequestsPerMinute, logger), nil
}
