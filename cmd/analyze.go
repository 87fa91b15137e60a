// File: cmd/analyze.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/observability"
)

func newAnalyzeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze [url]",
		Short: "Analyze one storefront and store its selector report",
		Long: `Opens the URL, waits for the DOM to settle, sanitizes the markup and asks the
configured producer for a selector report. The report is validated against the selector
contract and written to the report store only if it passes.`,
		Example: `  funnel-recon analyze https://www.grass-direct.co.uk/
  funnel-recon analyze --producer heuristic shop.example.com/products/lawn-seed`,
		Args: cobra.MaximumNArgs(1),
		RunE: a.runAnalyze,
	}
}

func (a *app) runAnalyze(cmd *cobra.Command, args []string) error {
	target := DefaultURL
	if len(args) > 0 {
		target = args[0]
	}
	target, err := normalizeTarget(target)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	logger := observability.GetLogger()

	components, err := a.factory.Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	out, err := components.Runner.Analyze(ctx, target)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Analysis cancelled.", zap.String("url", target))
			return err
		}
		printFailure(cmd.ErrOrStderr(), target, err)
		return fmt.Errorf("analysis of %s failed: %w", target, err)
	}

	printOutcome(cmd.OutOrStdout(), out)
	return nil
}
