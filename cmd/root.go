// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/forceps-cli/internal/config"
	"github.com/xkilldash9x/forceps-cli/internal/observability"
)

// appState carries the resolved configuration from the root command's setup
// hook to the subcommands. Every invocation gets a fresh instance, so flag
// and config state never leaks between runs.
type appState struct {
	cfgFile string
	v       *viper.Viper
	cfg     *config.Config
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	state := &appState{}

	root := &cobra.Command{
		Use:   "forceps",
		Short: "Forceps replays browser scenarios and extracts structured data.",
		Long: `Forceps drives a page through a tabular scenario (CSV or XLSX) and pulls
mapped fields out of the resulting document. Scenarios and mappings are
validated up front; a run either replays every step or reports exactly
which rows are broken.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return state.initialize(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&state.cfgFile, "config", "c", "", "config file (default is ./forceps.yaml)")
	root.PersistentFlags().String("log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "", "override log format (console, json)")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newRunCmd(state))
	root.AddCommand(newValidateCmd(state))
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the command tree under the given signal-aware context.
func Execute(ctx context.Context) error {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		logger := observability.GetLogger()
		if errors.Is(err, context.Canceled) {
			logger.Warn("Aborted by signal.")
		} else {
			logger.Error("Command failed.", zap.Error(err))
		}
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

// initialize resolves configuration in ascending precedence: defaults,
// config file, environment, then flags. The logger comes up as soon as the
// config is known so every later message is structured.
func (s *appState) initialize(cmd *cobra.Command) error {
	// A .env next to the binary is a convenience for local runs; absence is
	// the normal case.
	_ = godotenv.Load()

	v := viper.New()
	config.SetDefaults(v)

	if s.cfgFile != "" {
		path, err := homedir.Expand(s.cfgFile)
		if err != nil {
			return fmt.Errorf("resolve config path %q: %w", s.cfgFile, err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "forceps"))
		}
		v.SetConfigName("forceps")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("FORCEPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
		// No config file anywhere on the search path; defaults and
		// environment carry the run.
	}

	if err := v.BindPFlag("logger.level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("logger.format", cmd.Flags().Lookup("log-format")); err != nil {
		return err
	}

	cfg, err := config.NewFromViper(v)
	if err != nil {
		// Bring up a minimal logger so the failure itself is reported
		// through the normal channel.
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "forceps-cli"})
		return err
	}

	observability.InitializeLogger(cfg.Logger)
	observability.GetLogger().Debug("Configuration loaded.",
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("version", Version),
	)

	s.v = v
	s.cfg = cfg
	return nil
}

// reloadConfig re-unmarshals the configuration after a subcommand has bound
// its own flags, so flag overrides land with the right precedence.
func (s *appState) reloadConfig() (*config.Config, error) {
	cfg, err := config.NewFromViper(s.v)
	if err != nil {
		return nil, fmt.Errorf("apply flag overrides: %w", err)
	}
	s.cfg = cfg
	return cfg, nil
}
