// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/api/schemas"
	"github.com/xkilldash9x/funnel-recon/internal/observability"
	"github.com/xkilldash9x/funnel-recon/internal/recon"
	"github.com/xkilldash9x/funnel-recon/internal/store"
)

const shutdownTimeout = 30 * time.Second

// Components holds every service an analysis needs and owns their lifecycle.
type Components struct {
	Runner         *recon.Runner
	BrowserManager schemas.BrowserManager
	Repository     store.Repository
	// LLMClient is nil when the heuristic producer is configured.
	LLMClient schemas.LLMClient
}

// Shutdown releases the components in reverse order of creation. It is safe
// to call on a partially initialized value.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.BrowserManager != nil {
		// The caller's context may already be cancelled (Ctrl-C), so the
		// browser gets a fresh deadline of its own.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	if c.LLMClient != nil {
		if err := c.LLMClient.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}

	if c.Repository != nil {
		if err := c.Repository.Close(); err != nil {
			logger.Warn("Error closing report repository.", zap.Error(err))
		} else {
			logger.Debug("Report repository closed.")
		}
	}

	logger.Info("All components shut down.")
}
