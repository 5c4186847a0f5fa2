package manager

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modyn/internal/serving"
	"modyn/pkg/types"
)

// createModelFile writes a model file of size bytes and returns its path.
func createModelFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, make([]byte, size), 0o644); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return p
}

// newRuntime builds a runtime with an empty plugin search path and a memory
// pool of memSize bytes (none when 0).
func newRuntime(t *testing.T, memSize int) *serving.Runtime {
	t.Helper()
	rt, err := serving.New(serving.Config{
		PluginPaths: []string{t.TempDir()},
		MemorySize:  memSize,
	})
	if err != nil {
		t.Fatalf("runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// dummyModels creates one .dummy file per id, each size bytes.
func dummyModels(t *testing.T, size int, ids ...string) []types.Model {
	t.Helper()
	dir := t.TempDir()
	out := make([]types.Model, 0, len(ids))
	for _, id := range ids {
		p := createModelFile(t, dir, id+".dummy", size)
		out = append(out, types.Model{ID: id, Name: id, Path: p, Backend: "dummy", SizeBytes: int64(size)})
	}
	return out
}

func newManager(t *testing.T, cfg ManagerConfig) *Manager {
	t.Helper()
	if cfg.Runtime == nil {
		cfg.Runtime = newRuntime(t, 0)
	}
	m := NewWithConfig(cfg)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func floatTensor(vals ...float32) types.Tensor {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
	}
	return types.Tensor{Name: "x", DType: "float32", Shape: []int64{int64(len(vals))}, Data: b}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", d)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

func busy(m *Manager, id string) int {
	for _, p := range m.Status().Pools {
		if p.ModelID == id {
			return p.Busy
		}
	}
	return 0
}
