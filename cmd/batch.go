// File: cmd/batch.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/funnel-recon/internal/observability"
	"github.com/xkilldash9x/funnel-recon/internal/recon"
)

type batchResult struct {
	target  string
	outcome *recon.Outcome
	err     error
}

func newBatchCmd(a *app) *cobra.Command {
	var listPath string

	cmd := &cobra.Command{
		Use:   "batch [urls...]",
		Short: "Analyze several storefronts concurrently",
		Long: `Runs an independent analysis for every URL given as an argument or listed in
--file (one per line, '#' starts a comment). A failed URL does not stop the others; the
command fails if any analysis failed.`,
		Example: `  funnel-recon batch shop-a.example/p/1 shop-b.example/p/2
  funnel-recon batch -j 4 --file urls.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := collectTargets(args, listPath, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return fmt.Errorf("no URLs given; pass them as arguments or with --file")
			}
			return a.runBatch(cmd, targets)
		},
	}

	cmd.Flags().StringVarP(&listPath, "file", "f", "", "file with one URL per line (- for stdin)")
	cmd.Flags().IntP("concurrency", "j", 2, "number of analyses to run at once")
	_ = a.v.BindPFlag("batch.concurrency", cmd.Flags().Lookup("concurrency"))
	return cmd
}

func (a *app) runBatch(cmd *cobra.Command, targets []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()
	limit := a.cfg.Batch().Concurrency

	components, err := a.factory.Create(ctx, a.cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	logger.Info("Starting batch.", zap.Int("urls", len(targets)), zap.Int("concurrency", limit))

	// Runs are independent, so a failure is recorded rather than returned
	// and never cancels its siblings.
	results := make([]batchResult, len(targets))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, target := range targets {
		results[i].target = target
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i].err = ctx.Err()
				return nil
			}
			results[i].outcome, results[i].err = components.Runner.Analyze(ctx, target)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			printFailure(cmd.ErrOrStderr(), r.target, r.err)
			continue
		}
		printOutcome(cmd.OutOrStdout(), r.outcome)
	}

	logger.Info("Batch complete.", zap.Int("succeeded", len(targets)-failed), zap.Int("failed", failed))
	if failed > 0 {
		return fmt.Errorf("%d of %d analyses failed", failed, len(targets))
	}
	return nil
}
