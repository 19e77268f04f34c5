package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"ChainFL/internal/aggregate"
	"ChainFL/internal/artifact"
	"ChainFL/internal/config"
)

// openStore builds the artifact store. With S3 configured the bucket is
// primary and the local directory resolves client file paths.
func openStore(ctx context.Context, cfg *config.Config) (*artifact.Store, error) {
	local, err := artifact.NewFileBackend(cfg.Artifacts.Dir)
	if err != nil {
		return nil, fmt.Errorf("open artifact directory:\n%w", err)
	}

	if cfg.Artifacts.S3 == nil {
		return artifact.NewStore(local, cfg.StoreOptions()), nil
	}

	bucket, err := artifact.NewS3Backend(ctx, *cfg.Artifacts.S3)
	if err != nil {
		return nil, fmt.Errorf("open s3 bucket:\n%w", err)
	}

	return artifact.NewStore(bucket, cfg.StoreOptions(), local), nil
}

// openAggregator builds the configured aggregator and its cleanup.
func openAggregator(ctx context.Context, cfg *config.Config, log *slog.Logger) (aggregate.Aggregator, func(), error) {
	a := cfg.Aggregator

	if a.WorkDir != "" {
		if err := os.MkdirAll(a.WorkDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create aggregation work directory:\n%w", err)
		}
	}

	switch a.Kind {
	case config.AggregatorProcess:
		return &aggregate.Process{
			Command: a.Command,
			WorkDir: a.WorkDir,
			Timeout: a.Timeout,
			Logger:  log,
		}, func() {}, nil

	case config.AggregatorWASM:
		program, err := os.ReadFile(a.Program)
		if err != nil {
			return nil, nil, fmt.Errorf("read aggregation program:\n%w", err)
		}

		w, err := aggregate.NewWASM(ctx, program, a.WorkDir, log)
		if err != nil {
			return nil, nil, fmt.Errorf("load aggregation program:\n%w", err)
		}

		return w, func() { w.Close(context.Background()) }, nil

	default:
		return aggregate.FedAvg{}, func() {}, nil
	}
}
