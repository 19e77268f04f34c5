package aggregate

import (
	"context"
	"fmt"

	"ChainFL/internal/artifact"
)

// Input is one verified client update handed to an aggregator.
type Input struct {
	ClientID string
	Ref      artifact.ContentRef // Ref is where the update was read from
	Vector   WeightVector
	Size     uint64
}

// Job is one round's aggregation request.
type Job struct {
	Round   uint64
	Global  WeightVector // Global is the model the round trained from; may be empty
	Updates []Input
}

// Aggregator turns a job into a new global vector.
type Aggregator interface {
	Aggregate(ctx context.Context, job Job) (WeightVector, error)
	Name() string
}

// FedAvg aggregates in-process.
type FedAvg struct{}

// Name returns "fedavg".
func (FedAvg) Name() string { return "fedavg" }

// Aggregate returns the sample-weighted average of the job's updates.
// Updates must match the global model's length when one is given.
func (FedAvg) Aggregate(ctx context.Context, job Job) (WeightVector, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	in := make([]Weighted, 0, len(job.Updates))

	for _, u := range job.Updates {
		if len(job.Global) > 0 && len(u.Vector) != len(job.Global) {
			return nil, fmt.Errorf("update from %s has length %d, global has %d: %w",
				u.ClientID, len(u.Vector), len(job.Global), ErrLengthMismatch)
		}

		in = append(in, Weighted{Vector: u.Vector, Size: float64(u.Size)})
	}

	return WeightedAverage(in)
}
