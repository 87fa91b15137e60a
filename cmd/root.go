// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/xkilldash9x/funnel-recon/internal/config"
	"github.com/xkilldash9x/funnel-recon/internal/observability"
	"github.com/xkilldash9x/funnel-recon/internal/service"
)

// DefaultURL is analyzed when no URL argument is given.
const DefaultURL = "https://www.grass-direct.co.uk/"

// app carries the state shared by the root command and its subcommands.
// Each root command owns its own viper instance so tests never share state.
type app struct {
	cfgFile string
	envFile string
	v       *viper.Viper
	cfg     *config.Config
	factory service.ComponentFactory
}

// NewRootCommand builds the production command tree.
func NewRootCommand() *cobra.Command {
	cmd, _ := newRootCmd(service.NewComponentFactory())
	return cmd
}

// newRootCmd builds the command tree around factory and returns the shared
// app state so tests can inspect the loaded configuration.
func newRootCmd(factory service.ComponentFactory) (*cobra.Command, *app) {
	a := &app{v: viper.New(), factory: factory}

	rootCmd := &cobra.Command{
		Use:   "funnel-recon [url]",
		Short: "Maps the purchase funnel of a storefront into a selector report.",
		Long: `funnel-recon opens a storefront in a headless browser, waits for the DOM to settle,
and extracts the selectors a shopper needs from product view to checkout: cookie consent,
product, cart and checkout controls and blocking popups. Reports are validated against the
selector contract before they are stored.

With no subcommand it analyzes the given URL, or ` + DefaultURL + ` if none is given.`,
		Version:       Version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initialize(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAnalyze(cmd, args)
		},
	}
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("producer", "", "report producer: llm or heuristic")
	flags.String("store-dir", "", "directory for file-backed reports")
	flags.String("store-backend", "", "report store backend: file or postgres")
	flags.Bool("headless", true, "run the browser without a window")

	for key, name := range map[string]string{
		"logger.level":     "log-level",
		"producer.kind":    "producer",
		"store.dir":        "store-dir",
		"store.backend":    "store-backend",
		"browser.headless": "headless",
	} {
		_ = a.v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(
		newAnalyzeCmd(a),
		newBatchCmd(a),
		newValidateCmd(a),
		newShowCmd(a),
		newVersionCmd(),
	)
	return rootCmd, a
}

// initialize loads .env, the config file and the environment, then sets up
// the global logger. It runs before every command.
func (a *app) initialize(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := gotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file %s: %w", a.envFile, err)
		}
	}

	v := a.v
	config.SetDefaults(v)
	if a.cfgFile != "" {
		v.SetConfigFile(a.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix("FUNNEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := config.NewConfigFromViper(v)
	if err != nil {
		observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "funnel-recon"})
		return fmt.Errorf("failed to load or validate config: %w", err)
	}
	a.cfg = cfg

	observability.InitializeLogger(cfg.Logger())
	observability.GetLogger().Debug("Configuration loaded.",
		zap.String("version", Version),
		zap.String("config_file", v.ConfigFileUsed()),
		zap.String("command", cmd.Name()),
	)
	return nil
}

// Execute runs the root command with ctx. Cancellation (Ctrl-C) is reported
// to the caller as context.Canceled.
func Execute(ctx context.Context) error {
	defer observability.Sync()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			observability.GetLogger().Info("Operation cancelled.")
			return err
		}
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		return err
	}
	return nil
}
