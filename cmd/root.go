// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/macbridge/internal/agent"
	"github.com/xkilldash9x/macbridge/internal/bridge"
	"github.com/xkilldash9x/macbridge/internal/config"
	"github.com/xkilldash9x/macbridge/internal/llmclient"
	"github.com/xkilldash9x/macbridge/internal/macos"
	"github.com/xkilldash9x/macbridge/internal/observability"
	"github.com/xkilldash9x/macbridge/internal/protocol"
	"github.com/xkilldash9x/macbridge/internal/router"
)

// ErrOsascriptUnavailable is returned at startup when the automation backend
// cannot run on this machine.
var ErrOsascriptUnavailable = errors.New("osascript is not available")

type rootOptions struct {
	cfgFile  string
	logLevel string
	logFile  string
}

// NewRootCmd builds the macbridge command tree. The root command itself runs
// the bridge on stdin/stdout.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "macbridge",
		Short: "Line-delimited JSON bridge to macOS UI automation.",
		Long: `macbridge reads one JSON command per line on stdin and writes exactly one
JSON reply per command on stdout. Diagnostics go to stderr.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd, opts)
		},
	}
	cmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	cmd.PersistentFlags().StringVarP(&opts.cfgFile, "config", "c", "", "config file (default is ./config.yaml if present)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logger.level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFile, "log-file", "", "also write JSON logs to this rotated file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newActionsCmd())
	return cmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		os.Exit(1)
	}
}

// loadConfig layers defaults, the optional config file, the .env file, the
// environment, and flag overrides.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	v := viper.New()
	config.SetDefaults(v)
	config.ConfigureEnv(v)

	if opts.cfgFile != "" {
		v.SetConfigFile(opts.cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := config.LoadDotEnv(v.GetString("backend.env_file")); err != nil {
		return nil, err
	}

	if opts.logLevel != "" {
		v.Set("logger.level", opts.logLevel)
	}
	if opts.logFile != "" {
		v.Set("logger.log_file", opts.logFile)
	}
	return config.NewConfigFromViper(v)
}

func runBridge(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	observability.Initialize(cfg.Logger(), cmd.ErrOrStderr())
	defer observability.Sync()
	logger := observability.GetLogger()
	logger.Info("Starting macbridge", zap.String("version", Version))

	backend := cfg.Backend()
	if !backend.OsascriptAvailable() {
		if backend.RequireOsascript {
			return fmt.Errorf("%w at %s", ErrOsascriptUnavailable, backend.OsascriptPath)
		}
		logger.Warn("osascript not found; backend actions will fail", zap.String("path", backend.OsascriptPath))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := macos.NewOsascriptRunner(backend.OsascriptPath, logger)
	tree := macos.NewTreeBuilder(runner, cfg.Bridge().MaxTreeDepth, logger)
	controller := macos.NewController(runner, logger)

	actions, err := router.New(controller, tree, logger)
	if err != nil {
		return fmt.Errorf("failed to build action router: %w", err)
	}

	llm, err := llmclient.NewClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	if llm != nil {
		defer llm.Close()
		logger.Info("LLM client initialized", zap.String("provider", string(cfg.LLM().Provider())))
	}

	writer := protocol.NewWriter(cmd.OutOrStdout())
	tasks := agent.NewExecutor(agent.SettingsFromConfig(cfg), llm, actions, tree, writer, logger)

	server, err := bridge.New(bridge.Deps{
		Logger:  logger,
		Writer:  writer,
		Actions: actions,
		Tasks:   tasks,
		Tree:    tree,
		Settings: bridge.Settings{
			MaxLineBytes:   cfg.Bridge().MaxLineBytes,
			MaxTreeDepth:   cfg.Bridge().MaxTreeDepth,
			RequestTimeout: cfg.Bridge().RequestTimeout,
		},
	})
	if err != nil {
		return err
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	g, gctx := errgroup.WithContext(loopCtx)

	g.Go(func() error {
		defer cancelLoop()
		return server.Run(gctx, cmd.InOrStdin())
	})
	g.Go(func() error {
		<-gctx.Done()
		if ctx.Err() != nil {
			logger.Info("Shutdown signal received")
		}
		return nil
	})

	return g.Wait()
}
