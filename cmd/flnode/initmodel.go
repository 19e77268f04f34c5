package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ChainFL/internal/artifact"
)

func newInitModelCmd(g *globalFlags) *cobra.Command {
	var (
		dim   int
		value float64
		from  string
	)

	cmd := &cobra.Command{
		Use:   "init-model",
		Short: "Write the initial global model the first round trains from",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}

			data, err := initialModel(from, dim, value)
			if err != nil {
				return err
			}

			store, err := openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			ref, err := store.InitGlobal(cmd.Context(), data)
			if err != nil {
				return fmt.Errorf("write global model:\n%w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")

			return enc.Encode(ref)
		},
	}

	cmd.Flags().IntVar(&dim, "dim", 0, "number of weights in a constant model")
	cmd.Flags().Float64Var(&value, "value", 0, "value of every weight in a constant model")
	cmd.Flags().StringVar(&from, "from", "", "existing weight document to use instead")

	cmd.MarkFlagsMutuallyExclusive("dim", "from")
	cmd.MarkFlagsOneRequired("dim", "from")

	return cmd
}

// initialModel returns the weight document to publish.
func initialModel(from string, dim int, value float64) ([]byte, error) {
	if from != "" {
		data, err := os.ReadFile(from)
		if err != nil {
			return nil, fmt.Errorf("read model:\n%w", err)
		}

		if _, err := artifact.DecodeWeights(data); err != nil {
			return nil, fmt.Errorf("%s:\n%w", from, err)
		}

		return data, nil
	}

	if dim <= 0 {
		return nil, fmt.Errorf("--dim must be positive")
	}

	w := make([]float64, dim)
	for i := range w {
		w[i] = value
	}

	return artifact.EncodeWeights(w)
}
