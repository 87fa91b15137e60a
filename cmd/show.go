// File: cmd/show.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
	"github.com/xkilldash9x/funnel-recon/internal/observability"
	"github.com/xkilldash9x/funnel-recon/internal/store"
)

func newShowCmd(a *app) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <url>",
		Short: "Print the stored report for a URL",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (want json or yaml)", format)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := normalizeTarget(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			logger := observability.GetLogger()

			repo, err := store.Open(ctx, a.cfg.Store(), logger)
			if err != nil {
				return fmt.Errorf("failed to open report store: %w", err)
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logger.Warn("Error closing report repository.", zap.Error(err))
				}
			}()

			report, err := repo.Load(ctx, target)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("no report stored for %s; run 'funnel-recon analyze %s' first: %w", target, target, err)
				}
				return fmt.Errorf("failed to load report: %w", err)
			}

			out, err := contract.MarshalIndent(report)
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			if format == "yaml" {
				if out, err = toYAML(out); err != nil {
					return err
				}
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "o", "json", "output format: json or yaml")
	return cmd
}
