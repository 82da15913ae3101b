// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/browser"
	"github.com/xkilldash9x/forceps-cli/internal/browser/chrome"
	"github.com/xkilldash9x/forceps-cli/internal/browser/static"
	"github.com/xkilldash9x/forceps-cli/internal/config"
	"github.com/xkilldash9x/forceps-cli/internal/extract"
	"github.com/xkilldash9x/forceps-cli/internal/mapping"
	"github.com/xkilldash9x/forceps-cli/internal/observability"
	"github.com/xkilldash9x/forceps-cli/internal/runner"
	"github.com/xkilldash9x/forceps-cli/internal/scenario"
	"github.com/xkilldash9x/forceps-cli/internal/tabular"
)

const shutdownGrace = 15 * time.Second

// runOptions are the flag values of the run command.
type runOptions struct {
	url            string
	scenarioPath   string
	mappingPath    string
	recordSelector string
	outPath        string
	binds          []string
	bindingsFile   string
}

// runEnvelope is the JSON document a run emits.
type runEnvelope struct {
	RunID   string           `json:"runId"`
	URL     string           `json:"url"`
	Backend string           `json:"backend"`
	Steps   int              `json:"steps"`
	Result  *extract.Result  `json:"result,omitempty"`
	Records []extract.Result `json:"records,omitempty"`
}

// newRunCmd creates and configures the `run` command.
func newRunCmd(state *appState) *cobra.Command {
	opts := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Replay a scenario against a page and extract mapped fields",
		Long: `Run opens the target URL, replays the scenario's steps in row order, and,
when a mapping is given, extracts the mapped fields from the final page.
The result is written as JSON to stdout or to --out.`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind override flags so they take precedence over the config
			// file and environment.
			if err := state.v.BindPFlag("browser.backend", cmd.Flags().Lookup("backend")); err != nil {
				return err
			}
			if err := state.v.BindPFlag("loader.binding_mode", cmd.Flags().Lookup("binding-mode")); err != nil {
				return err
			}
			if err := state.v.BindPFlag("loader.sheet", cmd.Flags().Lookup("sheet")); err != nil {
				return err
			}
			return state.v.BindPFlag("extract.child_concurrency", cmd.Flags().Lookup("child-concurrency"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := state.reloadConfig()
			if err != nil {
				return err
			}
			return runScenario(cmd, cfg, opts)
		},
	}

	runCmd.Flags().StringVarP(&opts.url, "url", "u", "", "Target URL the scenario starts from. (required)")
	runCmd.Flags().StringVarP(&opts.scenarioPath, "scenario", "s", "", "Path to the scenario file (.csv or .xlsx). (required)")
	runCmd.Flags().StringVarP(&opts.mappingPath, "mapping", "m", "", "Path to the extraction mapping file. If unset, the run only replays steps.")
	runCmd.Flags().StringVar(&opts.recordSelector, "record-selector", "", "CSS selector for repeated records; the mapping is applied to every match.")
	runCmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "Write the result JSON to this file instead of stdout.")
	runCmd.Flags().StringArrayVar(&opts.binds, "bind", nil, "Binding value as key=value. Repeatable; overrides --bindings-file entries.")
	runCmd.Flags().StringVar(&opts.bindingsFile, "bindings-file", "", "JSON file with a flat object of binding values.")

	// Config override flags, resolved through viper in PreRunE.
	runCmd.Flags().String("backend", "", "Browser backend ('chrome' or 'static'). (Overrides config/env)")
	runCmd.Flags().String("binding-mode", "", "How bindings are keyed ('name' or 'index'). (Overrides config/env)")
	runCmd.Flags().String("sheet", "", "Worksheet name for XLSX sources. (Overrides config/env)")
	runCmd.Flags().Int("child-concurrency", 0, "Concurrent children during record extraction. (Overrides config/env)")

	cobra.CheckErr(runCmd.MarkFlagRequired("url"))
	cobra.CheckErr(runCmd.MarkFlagRequired("scenario"))

	return runCmd
}

// runScenario wires the pipeline: load, open, replay, extract, emit.
func runScenario(cmd *cobra.Command, cfg *config.Config, opts *runOptions) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	runID := uuid.New().String()
	logger.Info("Starting run.",
		zap.String("run_id", runID),
		zap.String("url", opts.url),
		zap.String("backend", cfg.Browser.Backend),
		zap.String("scenario", opts.scenarioPath),
	)

	bindings, err := loadBindings(opts.binds, opts.bindingsFile)
	if err != nil {
		return err
	}

	loader := scenario.NewLoader(logger, scenario.WithBindingMode(scenario.BindingMode(cfg.Loader.BindingMode)))
	seq, err := loader.Load(ctx, tabular.Open(opts.scenarioPath, cfg.Loader.Sheet), bindings)
	if err != nil {
		return fmt.Errorf("load scenario %q: %w", opts.scenarioPath, err)
	}

	var table mapping.Table
	if opts.mappingPath != "" {
		table, err = mapping.NewLoader(logger).Load(ctx, tabular.Open(opts.mappingPath, cfg.Loader.Sheet))
		if err != nil {
			return fmt.Errorf("load mapping %q: %w", opts.mappingPath, err)
		}
	}

	backend, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	manager, err := browser.NewManager(backend, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown.", zap.Error(err))
		}
	}()

	page, err := manager.OpenPage(ctx, opts.url)
	if err != nil {
		return err
	}

	if err := runner.New(logger).Transition(ctx, page, seq); err != nil {
		return fmt.Errorf("replay scenario: %w", err)
	}
	logger.Info("Scenario replayed.", zap.String("run_id", runID), zap.Int("steps", len(seq)))

	envelope := &runEnvelope{
		RunID:   runID,
		URL:     opts.url,
		Backend: cfg.Browser.Backend,
		Steps:   len(seq),
	}

	if table != nil {
		root, err := page.Root(ctx)
		if err != nil {
			return fmt.Errorf("resolve document root: %w", err)
		}
		engine := extract.New(logger, extract.WithChildConcurrency(cfg.Extract.ChildConcurrency))

		if opts.recordSelector != "" {
			records, err := engine.ExtractMany(ctx, root, opts.recordSelector, table)
			if err != nil {
				return fmt.Errorf("extract records: %w", err)
			}
			envelope.Records = records
		} else {
			result := engine.Extract(ctx, root, table)
			envelope.Result = &result
		}
	}

	return writeEnvelope(cmd, opts.outPath, envelope)
}

// loadBindings merges the bindings file with the --bind flags; flags win.
func loadBindings(binds []string, path string) (scenario.Bindings, error) {
	bindings := scenario.Bindings{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read bindings file: %w", err)
		}
		if err := json.Unmarshal(data, &bindings); err != nil {
			return nil, fmt.Errorf("parse bindings file %q: %w", path, err)
		}
	}

	for _, bind := range binds {
		key, value, found := strings.Cut(bind, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --bind %q: expected key=value", bind)
		}
		bindings[key] = value
	}
	return bindings, nil
}

// newBackend constructs the configured browser backend.
func newBackend(cfg *config.Config, logger *zap.Logger) (browser.Browser, error) {
	switch cfg.Browser.Backend {
	case "chrome":
		return chrome.New(cfg.Browser.Chrome, logger), nil
	case "static":
		return static.New(cfg.Browser.Static, logger)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", cfg.Browser.Backend)
	}
}

// writeEnvelope emits the result JSON to the chosen sink.
func writeEnvelope(cmd *cobra.Command, outPath string, envelope *runEnvelope) error {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	data = append(data, '\n')

	if outPath != "" {
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("write result file: %w", err)
		}
		observability.GetLogger().Info("Result written.", zap.String("path", outPath))
		return nil
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
