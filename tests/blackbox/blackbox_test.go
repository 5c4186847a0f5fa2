package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"modyn/pkg/types"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	return port, func() { _ = ln.Close() }
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("blackbox tests build the binary; skipped in -short mode")
	}
	binPath := filepath.Join(t.TempDir(), "modyn")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/modyn")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

func createTempModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, make([]byte, 256), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir
}

type serverProc struct {
	cmd  *exec.Cmd
	base string // e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, modelsDir, defaultModel string, port int) *serverProc {
	t.Helper()
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	args := []string{
		"serve",
		"--addr", fmt.Sprintf("127.0.0.1:%d", port),
		"--models-dir", modelsDir,
		"--memory-mb", "1",
		"--plugin-path", t.TempDir(),
		"--log-level", "warn",
	}
	if defaultModel != "" {
		args = append(args, "--default-model", defaultModel)
	}
	cmd := exec.Command(bin, args...)
	cmd.Env = append(os.Environ(), "HOME="+t.TempDir())
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill(); _ = cmd.Wait() })
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	return &serverProc{cmd: cmd, base: base}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, v any) (*http.Response, []byte) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func byteTensor(vals ...byte) types.Tensor {
	return types.Tensor{Name: "x", DType: "uint8", Shape: []int64{int64(len(vals))}, Data: vals}
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := createTempModelsDir(t, "alpha.dummy", "beta.dummy")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, modelsDir, "alpha.dummy", port)

	resp, body := get(t, sp.base+"/models")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/models %d %s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("/models content-type=%s", ct)
	}
	var modelsResp types.ModelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		t.Fatalf("/models json: %v body=%s", err, body)
	}
	if len(modelsResp.Models) != 2 {
		t.Fatalf("expected 2 models, got %d", len(modelsResp.Models))
	}

	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("/readyz initial %d %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, sp.base+"/infer", types.InferRequest{Inputs: []types.Tensor{byteTensor(7, 8, 9)}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/infer %d %s", resp.StatusCode, body)
	}
	var out types.InferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("/infer json: %v", err)
	}
	if len(out.Outputs) != 1 || !bytes.Equal(out.Outputs[0].Data, []byte{7, 8, 9}) {
		t.Fatalf("unexpected outputs: %+v", out.Outputs)
	}

	resp, _ = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz after infer %d", resp.StatusCode)
	}

	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, body)
	}
	var st types.StatusResponse
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("/status json: %v body=%s", err, body)
	}
	if len(st.Pools) != 1 || len(st.Pools[0].Instances) < 1 {
		t.Fatalf("expected one pool with instances, got %+v", st.Pools)
	}

	resp, body = get(t, sp.base+"/metrics")
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte("modyn_http_requests_total")) {
		t.Fatalf("/metrics %d missing request counters", resp.StatusCode)
	}
}

func TestBlackbox_Infer_ModelNotFound_404(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := createTempModelsDir(t, "alpha.dummy")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, modelsDir, "alpha.dummy", port)

	resp, body := postJSON(t, sp.base+"/infer", types.InferRequest{Model: "missing.dummy", Inputs: []types.Tensor{byteTensor(1)}})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, body)
	}
}

func TestBlackbox_Infer_NoDefault_NoModel_404(t *testing.T) {
	bin := buildBinary(t)
	modelsDir := createTempModelsDir(t, "alpha.dummy")
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, modelsDir, "", port)

	resp, body := postJSON(t, sp.base+"/infer", types.InferRequest{Inputs: []types.Tensor{byteTensor(1)}})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, body)
	}
}
