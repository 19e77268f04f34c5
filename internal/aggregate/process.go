package aggregate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"ChainFL/internal/logger"
)

// Process runs an external aggregation program:
//
//	command... <out> <global> <update1> <size1> <update2> <size2> ...
//
// Exit status 0 means success and <out> holds the result; anything else is ErrAggregation.
type Process struct {
	Command []string      // Command is the program and its fixed leading arguments
	WorkDir string        // WorkDir hosts per-job scratch directories; empty uses the OS temp dir
	Timeout time.Duration // Timeout bounds one run; zero means no limit beyond ctx
	Logger  *slog.Logger
}

// Name returns "process".
func (p *Process) Name() string { return "process" }

// Aggregate runs the program over job.
func (p *Process) Aggregate(ctx context.Context, job Job) (WeightVector, error) {
	if len(p.Command) == 0 {
		return nil, fmt.Errorf("%w: no command configured", ErrAggregation)
	}
	if len(job.Updates) == 0 {
		return nil, ErrEmptyInput
	}

	log := p.Logger
	if log == nil {
		log = logger.Component("aggregate")
	}

	jd, err := writeJobDir(p.WorkDir, job)
	if err != nil {
		return nil, err
	}
	defer jd.remove()

	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := append(append([]string{}, p.Command[1:]...), jd.hostArgs()...)

	cmd := exec.CommandContext(ctx, p.Command[0], args...)
	cmd.Dir = jd.dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	err = cmd.Run()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with code %d: %s",
				ErrAggregation, p.Command[0], exitErr.ExitCode(), strings.TrimSpace(output.String()))
		}

		return nil, fmt.Errorf("%w: run %s: %v", ErrAggregation, p.Command[0], err)
	}

	log.Debug("aggregation program finished", "round", job.Round, "updates", len(job.Updates), logger.Timed(start))

	return jd.result()
}
