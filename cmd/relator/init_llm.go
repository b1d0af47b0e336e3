package main

import (
	"fmt"
	"log/slog"

	"relator-ai/internal/adapter/llm"
	"relator-ai/internal/domain"
	"relator-ai/internal/infra/config"
	"relator-ai/internal/usecase"
)

// buildProvider composes the configured provider chain: each configured
// provider gets the pooled HTTP transport, a circuit breaker and a rate
// limiter; the default provider fronts the rest as failovers.
func buildProvider(cfg *config.Config, logger *slog.Logger) (domain.LLMProvider, *llm.Registry, error) {
	if len(cfg.LLM.Providers) == 0 {
		return nil, nil, domain.NewDomainError("init", domain.ErrAIUnavailable, "no providers configured")
	}

	registry := llm.NewRegistry()
	for _, pc := range cfg.LLM.Providers {
		base, err := newBaseProvider(pc, logger)
		if err != nil {
			return nil, nil, err
		}

		var provider domain.LLMProvider = base
		if cfg.LLM.CircuitBreaker.Enabled {
			provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, logger)
		}
		if cfg.LLM.RateLimit.Enabled {
			provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RateLimit)
		}
		if err := registry.Register(provider); err != nil {
			return nil, nil, err
		}
	}

	primary, err := registry.Get(cfg.LLM.DefaultProvider)
	if err != nil {
		return nil, nil, err
	}

	var fallbacks []domain.LLMProvider
	for _, name := range registry.List() {
		if name == cfg.LLM.DefaultProvider {
			continue
		}
		p, _ := registry.Get(name)
		fallbacks = append(fallbacks, p)
	}

	if len(fallbacks) == 0 {
		return primary, registry, nil
	}
	return llm.NewFailoverProvider(primary, fallbacks, logger), registry, nil
}

func newBaseProvider(pc config.ProviderConfig, logger *slog.Logger) (domain.LLMProvider, error) {
	switch pc.Type {
	case "anthropic", "":
		return llm.NewAnthropicProvider(pc, logger), nil
	case "openai":
		return llm.NewOpenAIProvider(pc, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for %q", pc.Type, pc.Name)
	}
}

// buildDoubleChecker wires the audit pass when enabled. An empty provider
// name audits with the primary provider itself. Audit calls share the
// orchestrator's token accumulator.
func buildDoubleChecker(cfg *config.Config, registry *llm.Registry, primary domain.LLMProvider, metrics *usecase.TokenMetrics, logger *slog.Logger) *usecase.DoubleChecker {
	dc := cfg.LLM.DoubleCheck
	if !dc.Enabled {
		return nil
	}

	provider := primary
	if dc.Provider != "" {
		p, err := registry.Get(dc.Provider)
		if err != nil {
			logger.Warn("double-check provider not found, auditing with primary", "provider", dc.Provider)
		} else {
			provider = p
		}
	}
	return usecase.NewDoubleChecker(provider, dc.Model, metrics, logger)
}
