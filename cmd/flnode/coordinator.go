package main

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"ChainFL/internal/api"
	"ChainFL/internal/config"
	"ChainFL/internal/coordinator"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
	"ChainFL/internal/metrics"
	"ChainFL/internal/network"
	"ChainFL/internal/registry"
)

func newCoordinatorCmd(g *globalFlags) *cobra.Command {
	var (
		listen  string
		ledgerA string
		collect time.Duration
	)

	cmd := &cobra.Command{
		Use:   "coordinator",
		Short: "Run the round coordinator and its HTTP front door",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			if listen != "" {
				cfg.Coordinator.Listen = listen
			}
			if ledgerA != "" {
				cfg.Ledger.Addr = ledgerA
			}
			if collect > 0 {
				cfg.Coordinator.CollectTimeout = collect
			}

			n, err := newCoordinatorNode(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			return n.Run()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides coordinator.listen)")
	cmd.Flags().StringVar(&ledgerA, "ledger", "", "ledger node address (overrides ledger.addr)")
	cmd.Flags().DurationVar(&collect, "collect-timeout", 0, "collection window (overrides coordinator.collectTimeout)")

	return cmd
}

// coordinatorNode wires the coordinator to its ledger, stores and front door.
type coordinatorNode struct {
	cfg     *config.Config
	key     ed25519.PrivateKey
	ledger  *ledger.Client
	journal *journal.Journal
	coord   *coordinator.Coordinator
	api     *api.Server
	bus     *events.Bus
	cleanup func() // cleanup releases the aggregator
}

func newCoordinatorNode(ctx context.Context, cfg *config.Config) (*coordinatorNode, error) {
	n := &coordinatorNode{cfg: cfg, cleanup: func() {}}

	key, err := loadOrGenerateKey(cfg.Ledger.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load key:\n%w", err)
	}
	n.key = key

	var nodeKey ed25519.PublicKey
	if cfg.Ledger.NodeKey != "" {
		nodeKey, _ = config.DecodeKey(cfg.Ledger.NodeKey)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Ledger.RequestTimeout)
	defer cancel()

	n.ledger, err = ledger.Dial(dialCtx, ledger.ClientConfig{
		Addr:           cfg.Ledger.Addr,
		PrivateKey:     key,
		NodeKey:        nodeKey,
		RequestTimeout: cfg.Ledger.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to ledger:\n%w", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		n.Close()
		return nil, err
	}

	var (
		persister registry.Persister
		recorder  coordinator.Recorder
		reports   api.ReportReader
	)

	if cfg.Journal.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			n.Close()
			return nil, fmt.Errorf("create journal directory:\n%w", err)
		}

		n.journal, err = journal.Open(cfg.Journal.Path, nil)
		if err != nil {
			n.Close()
			return nil, fmt.Errorf("open journal:\n%w", err)
		}

		persister, recorder, reports = n.journal, n.journal, n.journal
	}

	agg, cleanup, err := openAggregator(ctx, cfg, logger.Component("aggregate"))
	if err != nil {
		n.Close()
		return nil, err
	}
	n.cleanup = cleanup

	m := metrics.New()
	n.bus = events.NewBus()

	n.coord, err = coordinator.New(cfg.CoordinatorConfig(), coordinator.Deps{
		Ledger:     ledger.WithRetry(n.ledger, cfg.RetryPolicy(), logger.Component("ledger")),
		Store:      store,
		Registry:   registry.New(persister, logger.Component("registry")),
		Aggregator: agg,
		Recorder:   recorder,
		Events:     n.bus,
		Metrics:    m,
	})
	if err != nil {
		n.Close()
		return nil, fmt.Errorf("create coordinator:\n%w", err)
	}

	n.api = api.New(api.Config{
		Addr:        cfg.Coordinator.Listen,
		AdminToken:  cfg.Coordinator.AdminToken,
		Coordinator: n.coord,
		Ledger:      n.ledger,
		Reports:     reports,
		Events:      n.bus,
		Metrics:     m.Handler(),
	})

	return n, nil
}

// Run serves until a shutdown signal or a coordinator halt.
func (n *coordinatorNode) Run() error {
	if err := n.api.Start(); err != nil {
		return fmt.Errorf("start api:\n%w", err)
	}

	n.printStartupInfo()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- n.coord.Run(ctx) }()

	return waitForShutdown(errCh)
}

func (n *coordinatorNode) printStartupInfo() {
	logger.Info("starting coordinator",
		"account", network.KeyHex(n.key.Public().(ed25519.PublicKey)),
		"http", n.api.Addr(),
		"ledger", n.cfg.Ledger.Addr,
		"aggregator", n.cfg.Aggregator.Kind,
		"collectTimeout", n.cfg.Coordinator.CollectTimeout,
		"journal", n.cfg.Journal.Path,
	)
}

// Close shuts down all components.
func (n *coordinatorNode) Close() error {
	if n.api != nil {
		n.api.Stop()
	}

	if n.bus != nil {
		n.bus.Close()
	}

	n.cleanup()

	if n.journal != nil {
		n.journal.Close()
	}

	if n.ledger != nil {
		n.ledger.Close()
	}

	return nil
}
