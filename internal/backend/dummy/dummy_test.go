package dummy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modyn/pkg/abi"
)

func TestIdentityInference(t *testing.T) {
	e, err := Factory().Create(&abi.EngineConfig{})
	require.NoError(t, err)
	defer e.Close()

	in, err := abi.NewTensor("input", abi.DTypeFloat32, 2)
	require.NoError(t, err)
	copy(in.Data, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	out := &abi.Tensor{Name: "output"}

	require.ErrorIs(t, e.Infer([]*abi.Tensor{in}, []*abi.Tensor{out}), ErrNoModel)
	require.NoError(t, e.LoadModel("m.dummy", []byte("weights")))
	require.NoError(t, e.Infer([]*abi.Tensor{in}, []*abi.Tensor{out}))
	assert.Equal(t, in.Data, out.Data)
	assert.Equal(t, []int64{2}, out.Shape)
	assert.Equal(t, abi.BackendDummy, e.BackendType())
	assert.Equal(t, 7, e.(*Engine).WeightsSize())
}

func TestOptions(t *testing.T) {
	_, err := New(&abi.EngineConfig{Options: map[string]string{"latency_ms": "x"}})
	require.Error(t, err)

	e, err := New(&abi.EngineConfig{Options: map[string]string{"fail_load": "true"}})
	require.NoError(t, err)
	require.Error(t, e.LoadModel("m", nil))

	e, err = New(&abi.EngineConfig{Options: map[string]string{"fail_infer": "true"}})
	require.NoError(t, err)
	require.NoError(t, e.LoadModel("m", nil))
	require.Error(t, e.Infer(nil, nil))
	assert.Equal(t, 1, e.Calls())
}

func TestTensorInfoBounds(t *testing.T) {
	e, err := New(nil)
	require.NoError(t, err)
	_, err = e.InputInfo(1)
	require.Error(t, err)
	info, err := e.OutputInfo(0)
	require.NoError(t, err)
	assert.Equal(t, "output", info.Name)
}
