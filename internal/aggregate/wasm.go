package aggregate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
	"github.com/zeebo/blake3"

	"ChainFL/internal/logger"
)

// guestMount is where the job directory appears inside the sandbox.
const guestMount = "/work"

// WASM runs an aggregation program compiled to WASI under wazero. The program
// sees the job directory at /work and receives the same arguments as Process.
type WASM struct {
	runtime wazero.Runtime
	workDir string
	log     *slog.Logger

	modules map[[32]byte]wazero.CompiledModule // modules maps blake3 hash to compiled module
	active  [32]byte                           // active is the program run by Aggregate
	mu      sync.RWMutex
}

// NewWASM compiles program and returns an aggregator running it.
func NewWASM(ctx context.Context, program []byte, workDir string, log *slog.Logger) (*WASM, error) {
	if log == nil {
		log = logger.Component("aggregate")
	}

	runtime := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("instantiate wasi:\n%w", err)
	}

	w := &WASM{
		runtime: runtime,
		workDir: workDir,
		log:     log,
		modules: make(map[[32]byte]wazero.CompiledModule),
	}

	id, err := w.Load(ctx, program)
	if err != nil {
		runtime.Close(ctx)
		return nil, err
	}

	w.mu.Lock()
	w.active = id
	w.mu.Unlock()

	return w, nil
}

// Name returns "wasm".
func (w *WASM) Name() string { return "wasm" }

// Load compiles program once and returns its blake3 id.
func (w *WASM) Load(ctx context.Context, program []byte) ([32]byte, error) {
	id := blake3.Sum256(program)

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.modules[id]; ok {
		return id, nil
	}

	compiled, err := w.runtime.CompileModule(ctx, program)
	if err != nil {
		return [32]byte{}, fmt.Errorf("compile aggregation program:\n%w", err)
	}

	w.modules[id] = compiled

	return id, nil
}

// Use switches the active program to a loaded one.
func (w *WASM) Use(id [32]byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.modules[id]; !ok {
		return fmt.Errorf("program %x not loaded", id[:8])
	}

	w.active = id

	return nil
}

// Aggregate runs the active program over job.
func (w *WASM) Aggregate(ctx context.Context, job Job) (WeightVector, error) {
	if len(job.Updates) == 0 {
		return nil, ErrEmptyInput
	}

	w.mu.RLock()
	compiled := w.modules[w.active]
	w.mu.RUnlock()

	jd, err := writeJobDir(w.workDir, job)
	if err != nil {
		return nil, err
	}
	defer jd.remove()

	var output bytes.Buffer

	cfg := wazero.NewModuleConfig().
		WithName("").
		WithArgs(append([]string{"aggregate"}, jd.guestArgs(guestMount)...)...).
		WithFSConfig(wazero.NewFSConfig().WithDirMount(jd.dir, guestMount)).
		WithStdout(&output).
		WithStderr(&output)

	start := time.Now()

	mod, err := w.runtime.InstantiateModule(ctx, compiled, cfg)
	if mod != nil {
		mod.Close(ctx)
	}

	if err != nil {
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: run program: %v", ErrAggregation, err)
		}
		if exitErr.ExitCode() != 0 {
			return nil, fmt.Errorf("%w: program exited with code %d: %s",
				ErrAggregation, exitErr.ExitCode(), strings.TrimSpace(output.String()))
		}
	}

	w.log.Debug("wasm aggregation finished", "round", job.Round, "updates", len(job.Updates), logger.Timed(start))

	return jd.result()
}

// Close releases compiled programs and the runtime.
func (w *WASM) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	clear(w.modules)

	return w.runtime.Close(ctx)
}
