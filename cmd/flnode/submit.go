package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ChainFL/client"
	"ChainFL/internal/artifact"
)

func newSubmitCmd(g *globalFlags) *cobra.Command {
	var (
		server   string
		clientID string
		weights  string
		values   string
		outDir   string
		size     uint64
		round    uint64
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Announce a local model update to a coordinator",
		Long: "Announce a weight document to the coordinator. Pass an existing document with --weights, " +
			"or comma-separated values with --values to write one under --out-dir first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			if server == "" {
				server = cfg.Coordinator.Listen
				if strings.HasPrefix(server, ":") {
					server = "127.0.0.1" + server
				}
			}

			update, err := prepare(weights, values, outDir, clientID, size)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()

			res, err := client.New(server).SubmitUpdate(ctx, clientID, update, round)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.Encode(res)

			if !res.Success {
				return fmt.Errorf("update rejected: %s", res.Reason)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "", "coordinator address (defaults to coordinator.listen)")
	cmd.Flags().StringVar(&clientID, "client-id", "", "participant identifier")
	cmd.Flags().StringVar(&weights, "weights", "", "existing weight document")
	cmd.Flags().StringVar(&values, "values", "", "comma-separated weights to write as a new document")
	cmd.Flags().StringVar(&outDir, "out-dir", "./updates", "directory for documents written from --values")
	cmd.Flags().Uint64Var(&size, "size", 0, "aggregation weight, normally the local sample count")
	cmd.Flags().Uint64Var(&round, "round", 0, "target round (0 means current)")

	cmd.MarkFlagRequired("client-id")
	cmd.MarkFlagRequired("size")
	cmd.MarkFlagsMutuallyExclusive("weights", "values")
	cmd.MarkFlagsOneRequired("weights", "values")

	return cmd
}

// prepare returns the update to announce, writing a document from values when given.
func prepare(weights, values, outDir, clientID string, size uint64) (client.Update, error) {
	if values != "" {
		w, err := parseValues(values)
		if err != nil {
			return client.Update{}, err
		}

		name := fmt.Sprintf("%s-%d", clientID, time.Now().UnixNano())

		return client.PrepareUpdate(outDir, name, w, size)
	}

	data, err := os.ReadFile(weights)
	if err != nil {
		return client.Update{}, fmt.Errorf("read weights:\n%w", err)
	}

	if _, err := artifact.DecodeWeights(data); err != nil {
		return client.Update{}, fmt.Errorf("%s:\n%w", weights, err)
	}

	path, err := filepath.Abs(weights)
	if err != nil {
		return client.Update{}, fmt.Errorf("resolve weights path:\n%w", err)
	}

	return client.Update{Path: path, Hash: artifact.HashBytes(data), Size: size}, nil
}

// parseValues parses "0.1, 2, -3" into floats.
func parseValues(s string) ([]float64, error) {
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))

	for _, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", p, err)
		}
		out = append(out, v)
	}

	return out, nil
}
