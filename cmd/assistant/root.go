package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Elore26/assistant/internal/config"
	"github.com/Elore26/assistant/internal/guardrail"
	"github.com/Elore26/assistant/internal/llm"
	"github.com/Elore26/assistant/internal/notify"
	"github.com/Elore26/assistant/internal/registry"
	"github.com/Elore26/assistant/internal/roster"
	"github.com/Elore26/assistant/internal/store"
	"github.com/Elore26/assistant/internal/tools"
)

var (
	configPath string
	verbose    bool

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "assistant",
	Short: "Personal agent kernel: scheduled agents with budgets and guardrails",
	Long: `assistant runs a roster of small, single-purpose agents over your
personal data: each agent thinks in short tool-calling loops, leaves
signals for the others, and is boxed in by daily budgets, a circuit
breaker and a global kill switch.

Usage:
  assistant run career "review new job postings"
  assistant agents              List the roster
  assistant tools               List registered tools
  assistant guard status        Budgets and breaker state
  assistant signals             Active signal summary
  assistant config              Show effective configuration`,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}

		cfg, err = config.LoadFromPaths(configPath, "assistant.yaml",
			os.ExpandEnv("$HOME/.config/assistant/assistant.yaml"))
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(signalsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// kernel bundles the wired components a command needs.
type kernel struct {
	store    store.Store
	registry *registry.Registry
	guard    *guardrail.Engine
	notifier notify.Notifier
	roster   *roster.Roster
	llm      llm.Client
}

// newKernel wires the kernel from the loaded configuration. Callers must
// Close it.
func newKernel() (*kernel, error) {
	st, err := store.Open(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	notifier := notify.FromConfig(cfg.Telegram, logger)
	guard := guardrail.NewEngine(cfg.Guardrails, st, logger,
		guardrail.WithAlertFunc(func(ctx context.Context, msg string) {
			if err := notifier.Notify(ctx, msg); err != nil {
				logger.Warn("alert delivery failed", zap.Error(err))
			}
		}))

	reg := registry.New(logger)
	tools.RegisterBuiltins(reg, tools.Deps{
		Signals:  st,
		Guard:    guard,
		Notifier: notifier,
		Logger:   logger,
	})

	r, err := roster.Load(cfg.Roster.Path)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}

	return &kernel{
		store:    st,
		registry: reg,
		guard:    guard,
		notifier: notifier,
		roster:   r,
		llm:      llm.NewOpenAIClient(cfg.LLM, logger),
	}, nil
}

func (k *kernel) Close() {
	if err := k.store.Close(); err != nil {
		logger.Warn("store close failed", zap.Error(err))
	}
}
