package manager

import (
	"context"
	"fmt"
	"time"

	"modyn/internal/instancepool"
	"modyn/pkg/abi"
	"modyn/pkg/types"
)

// Infer runs one inference for req. The model's pool is created on first
// use; the instance is chosen by the pool's strategy with req.Key as the
// affinity key.
func (m *Manager) Infer(ctx context.Context, req types.InferRequest) (types.InferResponse, error) {
	id, err := m.resolveID(req.Model)
	if err != nil {
		return types.InferResponse{}, err
	}
	inputs, err := decodeTensors(req.Inputs)
	if err != nil {
		return types.InferResponse{}, err
	}
	start := time.Now()
	outputs, e, err := m.run(ctx, id, req.Key, time.Duration(req.TimeoutMS)*time.Millisecond, inputs)
	if err != nil {
		return types.InferResponse{}, err
	}
	return types.InferResponse{
		Model:      id,
		Backend:    e.model.Backend,
		Outputs:    encodeTensors(outputs),
		DurationMS: float64(time.Since(start).Microseconds()) / 1000,
	}, nil
}

// Run is the tensor-level form of Infer. A zero timeout uses the pool's
// acquire timeout; the context deadline shortens it.
func (m *Manager) Run(ctx context.Context, modelID, key string, timeout time.Duration, inputs []*abi.Tensor) ([]*abi.Tensor, error) {
	id, err := m.resolveID(modelID)
	if err != nil {
		return nil, err
	}
	outputs, _, err := m.run(ctx, id, key, timeout, inputs)
	return outputs, err
}

func (m *Manager) run(ctx context.Context, id, key string, timeout time.Duration, inputs []*abi.Tensor) ([]*abi.Tensor, *entry, error) {
	e, err := m.ensure(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	timeout, err = m.acquireTimeout(ctx, timeout)
	if err != nil {
		return nil, e, err
	}
	var inst *instancepool.Instance
	err = m.withEviction(id, func() error {
		var aerr error
		inst, aerr = e.pool.AcquireKey(key, timeout)
		return aerr
	})
	if err != nil {
		return nil, e, m.classify(id, err)
	}

	n := inst.Engine().OutputCount()
	if n <= 0 {
		n = len(inputs)
	}
	outputs := make([]*abi.Tensor, n)
	for i := range outputs {
		outputs[i] = &abi.Tensor{}
	}
	ierr := inst.Infer(inputs, outputs)
	rerr := e.pool.Release(inst)

	m.mu.Lock()
	e.lastUsed = time.Now()
	m.mu.Unlock()
	m.recordUse(id, false, true)

	if ierr != nil {
		return nil, e, fmt.Errorf("infer %s: %w", id, ierr)
	}
	if rerr != nil {
		return nil, e, rerr
	}
	return outputs, e, nil
}

func (m *Manager) acquireTimeout(ctx context.Context, t time.Duration) (time.Duration, error) {
	if t <= 0 {
		t = m.poolDefaults.AcquireTimeout
	}
	if dl, ok := ctx.Deadline(); ok {
		rem := time.Until(dl)
		if rem <= 0 {
			return 0, ctx.Err()
		}
		if rem < t {
			t = rem
		}
	}
	return t, nil
}

func decodeTensors(in []types.Tensor) ([]*abi.Tensor, error) {
	if len(in) == 0 {
		return nil, invalidRequestError{msg: "at least one input tensor is required"}
	}
	out := make([]*abi.Tensor, len(in))
	for i, t := range in {
		dt := abi.ParseDType(t.DType)
		if dt == abi.DTypeUnknown {
			return nil, invalidRequestError{msg: fmt.Sprintf("input %d: unknown dtype %q", i, t.DType)}
		}
		x := &abi.Tensor{
			Name:   t.Name,
			DType:  dt,
			Shape:  append([]int64(nil), t.Shape...),
			Memory: abi.MemoryCPU,
			Data:   t.Data,
		}
		if x.Name == "" {
			x.Name = fmt.Sprintf("input%d", i)
		}
		if err := x.Validate(); err != nil {
			return nil, invalidRequestError{msg: err.Error()}
		}
		if dt.Size() > 0 && int64(len(t.Data)) != x.ByteSize() {
			return nil, invalidRequestError{msg: fmt.Sprintf("input %q: %d data bytes, shape needs %d", x.Name, len(t.Data), x.ByteSize())}
		}
		out[i] = x
	}
	return out, nil
}

func encodeTensors(in []*abi.Tensor) []types.Tensor {
	out := make([]types.Tensor, 0, len(in))
	for _, t := range in {
		if t == nil {
			continue
		}
		out = append(out, types.Tensor{
			Name:  t.Name,
			DType: t.DType.String(),
			Shape: append([]int64(nil), t.Shape...),
			Data:  t.Data,
		})
	}
	return out
}
