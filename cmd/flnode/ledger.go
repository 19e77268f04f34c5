package main

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ChainFL/internal/config"
	"ChainFL/internal/contract"
	"ChainFL/internal/ledgernode"
	"ChainFL/internal/logger"
	"ChainFL/internal/network"
	"ChainFL/internal/storage"
)

func newLedgerCmd(g *globalFlags) *cobra.Command {
	var (
		listen string
		owner  string
	)

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Run a development ledger node serving the round contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			if listen != "" {
				cfg.Node.Listen = listen
			}
			if owner != "" {
				cfg.Node.OwnerKey = owner
			}

			return runLedger(cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "QUIC listen address (overrides node.listen)")
	cmd.Flags().StringVar(&owner, "owner", "", "coordinator account, hex ed25519 (overrides node.ownerKey)")

	return cmd
}

func runLedger(cfg *config.Config) error {
	key, err := loadOrGenerateKey(cfg.Node.KeyPath)
	if err != nil {
		return fmt.Errorf("load node key:\n%w", err)
	}

	owner, err := ownerKey(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.Node.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory:\n%w", err)
	}

	db, err := storage.New(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("init storage:\n%w", err)
	}
	defer db.Close()

	c, err := contract.New(db, contract.Options{Owner: owner})
	if err != nil {
		return fmt.Errorf("open contract:\n%w", err)
	}

	srv, err := ledgernode.New(ledgernode.Config{
		PrivateKey: key,
		ListenAddr: cfg.Node.Listen,
		ReplayTTL:  cfg.Node.ReplayTTL,
	}, c)
	if err != nil {
		return fmt.Errorf("create ledger node:\n%w", err)
	}
	defer srv.Close()

	if err := srv.Start(); err != nil {
		return err
	}

	round, _ := c.CurrentRound()

	logger.Info("starting ledger node",
		"nodeKey", network.KeyHex(srv.PublicKey()),
		"owner", network.KeyHex(owner),
		"quic", srv.Addr(),
		"data", cfg.Node.DataDir,
		"currentRound", round,
	)

	return waitForShutdown(nil)
}

// ownerKey resolves the coordinator account: node.ownerKey when set,
// otherwise the public half of the local coordinator key.
func ownerKey(cfg *config.Config) (ed25519.PublicKey, error) {
	if cfg.Node.OwnerKey != "" {
		return config.DecodeKey(cfg.Node.OwnerKey)
	}

	priv, err := loadOrGenerateKey(cfg.Ledger.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load coordinator key:\n%w", err)
	}

	return priv.Public().(ed25519.PublicKey), nil
}
