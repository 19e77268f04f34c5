package aggregate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neilotoole/slogt"
)

// exitProgram assembles a WASI module whose _start calls proc_exit(code).
func exitProgram(code byte) []byte {
	const wasi = "wasi_snapshot_preview1"

	var m []byte
	m = append(m, 0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00)

	// types: (i32) -> (), () -> ()
	m = append(m, 0x01, 0x08, 0x02, 0x60, 0x01, 0x7f, 0x00, 0x60, 0x00, 0x00)

	// import wasi_snapshot_preview1.proc_exit as func type 0
	imp := []byte{0x01, byte(len(wasi))}
	imp = append(imp, wasi...)
	imp = append(imp, 0x09)
	imp = append(imp, "proc_exit"...)
	imp = append(imp, 0x00, 0x00)
	m = append(m, 0x02, byte(len(imp)))
	m = append(m, imp...)

	// one function of type 1
	m = append(m, 0x03, 0x02, 0x01, 0x01)

	// one memory, min 1 page
	m = append(m, 0x05, 0x03, 0x01, 0x00, 0x01)

	// exports: _start (func 1), memory (mem 0)
	exp := []byte{0x02, 0x06}
	exp = append(exp, "_start"...)
	exp = append(exp, 0x00, 0x01, 0x06)
	exp = append(exp, "memory"...)
	exp = append(exp, 0x02, 0x00)
	m = append(m, 0x07, byte(len(exp)))
	m = append(m, exp...)

	// body: i32.const code; call 0; end
	m = append(m, 0x0a, 0x08, 0x01, 0x06, 0x00, 0x41, code&0x3f, 0x10, 0x00, 0x0b)

	return m
}

func newTestWASM(t *testing.T, program []byte) *WASM {
	t.Helper()

	ctx := context.Background()

	w, err := NewWASM(ctx, program, t.TempDir(), slogt.New(t))
	if err != nil {
		t.Fatalf("NewWASM: %v", err)
	}

	t.Cleanup(func() { w.Close(ctx) })

	return w
}

func TestWASMNonZeroExit(t *testing.T) {
	w := newTestWASM(t, exitProgram(3))

	_, err := w.Aggregate(context.Background(), testJob())
	if !errors.Is(err, ErrAggregation) {
		t.Fatalf("err = %v, want ErrAggregation", err)
	}

	if !strings.Contains(err.Error(), "code 3") {
		t.Errorf("error lacks exit code: %v", err)
	}
}

func TestWASMCleanExitWithoutOutput(t *testing.T) {
	w := newTestWASM(t, exitProgram(0))

	if _, err := w.Aggregate(context.Background(), testJob()); !errors.Is(err, ErrAggregation) {
		t.Errorf("err = %v, want ErrAggregation for missing output", err)
	}
}

func TestWASMCompilesOncePerProgram(t *testing.T) {
	ctx := context.Background()
	w := newTestWASM(t, exitProgram(0))

	id1, err := w.Load(ctx, exitProgram(0))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	id2, err := w.Load(ctx, exitProgram(5))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if id1 == id2 {
		t.Fatal("different programs share an id")
	}

	if len(w.modules) != 2 {
		t.Errorf("cached %d modules, want 2", len(w.modules))
	}

	if err := w.Use(id2); err != nil {
		t.Fatalf("Use: %v", err)
	}

	if _, err := w.Aggregate(ctx, testJob()); err == nil || !strings.Contains(err.Error(), "code 5") {
		t.Errorf("active program not switched: %v", err)
	}

	if err := w.Use([32]byte{1}); err == nil {
		t.Error("Use of unknown program succeeded")
	}
}
