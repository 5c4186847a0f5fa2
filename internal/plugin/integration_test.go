//go:build integration

package plugin

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"modyn/internal/backend"
	"modyn/internal/common/fsutil"
	"modyn/pkg/abi"
)

func TestGoPluginEndToEnd(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("go plugins are not supported on windows")
	}
	dir := t.TempDir()
	out := filepath.Join(dir, "libecho"+fsutil.LibraryExt())
	cmd := exec.Command("go", "build", "-buildmode=plugin", "-o", out, "../../examples/echoplugin")
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	require.NoError(t, cmd.Run())

	reg := backend.NewRegistry(backend.Config{})
	l := New(Config{SearchPaths: []string{dir}, Registrar: reg, HostVersion: abi.MustParseVersion("1.0.0")})
	reg.SetDiscoverer(l)
	t.Cleanup(func() { _ = l.Close() })

	require.Contains(t, reg.AvailableBackends(), abi.BackendID("echo"))
	e, err := reg.CreateEngine("echo", nil)
	require.NoError(t, err)
	require.NoError(t, e.LoadModel("m", nil))
	require.NoError(t, e.Close())

	require.NoError(t, l.SelfTest("echo"))
	v, err := l.Control("echo", "status", nil)
	require.NoError(t, err)
	require.Equal(t, true, v)
}
