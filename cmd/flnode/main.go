package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"ChainFL/internal/config"
	"ChainFL/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string // configPath is the YAML file, empty for defaults
	logLevel   string // logLevel overrides log.level
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:           "flnode",
		Short:         "Ledger-coordinated federated learning rounds",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "config file (YAML)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newCoordinatorCmd(g),
		newLedgerCmd(g),
		newSubmitCmd(g),
		newInitModelCmd(g),
	)

	return root
}

// load reads the config and installs the logger.
func (g *globalFlags) load() (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}

	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}

	logger.Init(cfg.Log.Level)

	return cfg, nil
}

// waitForShutdown blocks until SIGINT or SIGTERM, or until errCh yields.
func waitForShutdown(errCh <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		return nil
	case err := <-errCh:
		return err
	}
}
