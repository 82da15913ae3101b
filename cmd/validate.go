// File: cmd/validate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/mapping"
	"github.com/xkilldash9x/forceps-cli/internal/observability"
	"github.com/xkilldash9x/forceps-cli/internal/scenario"
	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

// newValidateCmd creates the `validate` command. It checks scenario or
// mapping files without touching a browser, printing every violation the
// way the loader would report it.
func newValidateCmd(state *appState) *cobra.Command {
	var kind string

	validateCmd := &cobra.Command{
		Use:   "validate [file...]",
		Short: "Check scenario or mapping files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "scenario" && kind != "mapping" {
				return fmt.Errorf("unknown --kind %q (want 'scenario' or 'mapping')", kind)
			}

			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			failed := 0
			for _, path := range args {
				violations, err := validateFile(cmd, state, path, kind)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: %v\n", path, err)
					continue
				}
				if len(violations) > 0 {
					failed++
					fmt.Fprintf(out, "%s:\n", path)
					for _, v := range violations {
						fmt.Fprintf(out, "  %s\n", v)
					}
					continue
				}
				fmt.Fprintf(out, "%s: OK\n", path)
			}

			if failed > 0 {
				logger.Debug("Validation failed.", zap.Int("failed", failed), zap.Int("total", len(args)))
				return fmt.Errorf("%d of %d file(s) failed validation", failed, len(args))
			}
			return nil
		},
	}

	validateCmd.Flags().StringVarP(&kind, "kind", "k", "scenario", "What the files contain: 'scenario' or 'mapping'.")

	return validateCmd
}

// validateFile reads one source and returns its violation list.
func validateFile(cmd *cobra.Command, state *appState, path, kind string) ([]string, error) {
	records, err := tabular.Open(path, state.cfg.Loader.Sheet).Records(cmd.Context())
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, tabular.ErrEmptySource
	}
	if kind == "mapping" {
		return mapping.ValidateRecords(records), nil
	}
	return scenario.ValidateRecords(records), nil
}
