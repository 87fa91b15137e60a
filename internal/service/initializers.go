// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/llmclient"
	"github.com/xkilldash9x/funnel-recon/internal/producer"
	"github.com/xkilldash9x/funnel-recon/internal/stability"
)

// LLMClientFunc builds the text-generation client for the LLM producer.
type LLMClientFunc func(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error)

// InitializeLLMClient creates a new LLM client based on the configuration.
func InitializeLLMClient(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	client, err := llmclient.NewClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize LLM client.", zap.Error(err))
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return client, nil
}

// InitializeProducer builds the configured producer. The returned client is
// non-nil only for the LLM producer and must be closed by the caller.
func InitializeProducer(ctx context.Context, cfg config.Interface, newClient LLMClientFunc, logger *zap.Logger) (producer.Producer, schemas.LLMClient, error) {
	switch kind := cfg.Producer().Kind; kind {
	case config.ProducerHeuristic:
		logger.Info("Using the heuristic producer; no LLM calls will be made.")
		return producer.NewHeuristicProducer(logger), nil, nil

	case config.ProducerLLM, "":
		if newClient == nil {
			newClient = InitializeLLMClient
		}
		llmCfg := cfg.LLM()
		if llmCfg.APIKey == "" {
			return nil, nil, fmt.Errorf("no API key configured for provider %q (hint: set FUNNEL_LLM_API_KEY)", llmCfg.Provider)
		}
		client, err := newClient(ctx, llmCfg, logger)
		if err != nil {
			return nil, nil, err
		}
		p, err := producer.NewLLMProducer(client, cfg.Producer(), logger)
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to initialize LLM producer: %w", err)
		}
		logger.Info("Using the LLM producer.", zap.String("provider", string(llmCfg.Provider)), zap.String("model", llmCfg.Model))
		return p, client, nil

	default:
		return nil, nil, fmt.Errorf("unknown producer kind %q", kind)
	}
}

// DetectorOptions converts the stability configuration.
func DetectorOptions(cfg config.StabilityConfig) stability.Options {
	return stability.Options{
		Interval:              cfg.Interval,
		RequiredStableSamples: cfg.RequiredStableSamples,
		Timeout:               cfg.Timeout,
	}
}
