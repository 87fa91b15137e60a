// File: cmd/validate.go
package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/funnel-recon/internal/contract"
)

func newValidateCmd(a *app) *cobra.Command {
	var normalize bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Check a report file against the selector contract",
		Long: `Validates a stored or hand-written report and lists every violation. Use - to read
the report from stdin. With --normalize the validated report is printed in its canonical form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var (
				data []byte
				err  error
			)
			if path == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(path)
			}
			if err != nil {
				return fmt.Errorf("failed to read report: %w", err)
			}

			report, err := contract.ValidateJSON(data)
			if err != nil {
				w := cmd.ErrOrStderr()
				var verr *contract.ValidationError
				if errors.As(err, &verr) {
					fmt.Fprintf(w, "%s %s %s\n", failMark(), path, bad(fmt.Sprintf("%d violation(s)", len(verr.Violations))))
					printViolations(w, verr)
				} else {
					fmt.Fprintf(w, "%s %s %s\n", failMark(), path, bad(err.Error()))
				}
				return fmt.Errorf("%s does not satisfy the selector contract: %w", path, err)
			}

			if normalize {
				out, err := contract.MarshalIndent(report)
				if err != nil {
					return fmt.Errorf("failed to render report: %w", err)
				}
				_, err = cmd.OutOrStdout().Write(out)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s valid report for %s (status %s)\n", okMark(), path, report.URL, statusColor(report.Status))
			return nil
		},
	}

	cmd.Flags().BoolVar(&normalize, "normalize", false, "print the validated report in canonical form")
	return cmd
}
