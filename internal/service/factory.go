// File: internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/browser"
	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/recon"
	"github.com/xkilldash9x/funnel-recon/internal/sanitize"
	"github.com/xkilldash9x/funnel-recon/internal/stability"
	"github.com/xkilldash9x/funnel-recon/internal/store"
)

// ComponentFactory creates the set of components needed for an analysis.
// This abstraction keeps the command logic testable.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error)
}

// BrowserFunc launches a browser manager.
type BrowserFunc func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserManager, error)

// RepositoryFunc opens the report repository.
type RepositoryFunc func(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Repository, error)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	newBrowser   BrowserFunc
	openStore    RepositoryFunc
	newLLMClient LLMClientFunc
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		newBrowser: func(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (schemas.BrowserManager, error) {
			m, err := browser.NewManager(ctx, cfg, logger)
			if err != nil {
				return nil, err
			}
			return m, nil
		},
		openStore:    store.Open,
		newLLMClient: InitializeLLMClient,
	}
}

// Create handles the full dependency injection and initialization of the
// analysis components. Cheap, purely local components are built first so a
// bad configuration fails before a browser is launched.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*Components, error) {
	components := &Components{}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.", zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Stability detector
	detector, err := stability.NewDetector(DetectorOptions(cfg.Stability()), logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}

	// 2. Sanitizer
	sanitizer := sanitize.New(cfg.Sanitizer(), logger)

	// 3. Producer (and its LLM client, if any)
	prod, client, err := InitializeProducer(ctx, cfg, f.newLLMClient, logger)
	if err != nil {
		initializationErr = err
		return nil, initializationErr
	}
	components.LLMClient = client
	logger.Debug("Producer initialized.", zap.String("producer", prod.Name()))

	// 4. Report repository
	repo, err := f.openStore(ctx, cfg.Store(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to open report store: %w", err)
		return nil, initializationErr
	}
	components.Repository = repo
	logger.Debug("Report store initialized.", zap.String("backend", string(cfg.Store().Backend)))

	// 5. Browser manager
	browserManager, err := f.newBrowser(ctx, cfg.Browser(), logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize browser manager: %w", err)
		return nil, initializationErr
	}
	components.BrowserManager = browserManager
	logger.Debug("Browser manager initialized.")

	// 6. Runner
	runner, err := recon.NewRunner(recon.Dependencies{
		Browser:    browserManager,
		Detector:   detector,
		Sanitizer:  sanitizer,
		Producer:   prod,
		Repository: repo,
	}, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create runner: %w", err)
		return nil, initializationErr
	}
	components.Runner = runner

	logger.Info("All analysis components initialized successfully.")
	return components, nil
}
