package abi

import (
	"fmt"
	"sync/atomic"
)

// MaxDims is the maximum tensor rank accepted at the ABI boundary.
const MaxDims = 8

// DType enumerates tensor element types.
type DType int

const (
	DTypeUnknown DType = iota
	DTypeFloat32
	DTypeFloat16
	DTypeInt8
	DTypeUint8
	DTypeInt32
	DTypeInt64
	DTypeBool
	DTypeString
)

var dtypeNames = map[DType]string{
	DTypeUnknown: "unknown",
	DTypeFloat32: "float32",
	DTypeFloat16: "float16",
	DTypeInt8:    "int8",
	DTypeUint8:   "uint8",
	DTypeInt32:   "int32",
	DTypeInt64:   "int64",
	DTypeBool:    "bool",
	DTypeString:  "string",
}

func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return "unknown"
}

// ParseDType maps a dtype name back to its value. Unknown names yield DTypeUnknown.
func ParseDType(s string) DType {
	for k, v := range dtypeNames {
		if v == s {
			return k
		}
	}
	return DTypeUnknown
}

// Size returns the element size in bytes, or 0 for variable-size types.
func (d DType) Size() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat16:
		return 2
	case DTypeInt8, DTypeUint8, DTypeBool:
		return 1
	case DTypeInt64:
		return 8
	default:
		return 0
	}
}

// Layout describes the logical ordering of a tensor's dimensions.
type Layout int

const (
	LayoutAny Layout = iota
	LayoutNCHW
	LayoutNHWC
	LayoutNC
)

// MemoryKind records where a tensor's bytes live.
type MemoryKind int

const (
	MemoryCPU MemoryKind = iota
	MemoryPooled
	MemoryDevice
)

// Tensor is the unit of exchange between the host and an Engine.
type Tensor struct {
	Name     string
	DType    DType
	Shape    []int64
	Layout   Layout
	Memory   MemoryKind
	Data     []byte
	OwnsData bool

	refs atomic.Int32
}

// NewTensor allocates a tensor that owns a zeroed buffer sized from dtype and shape.
func NewTensor(name string, dtype DType, shape ...int64) (*Tensor, error) {
	t := &Tensor{Name: name, DType: dtype, Shape: append([]int64(nil), shape...), OwnsData: true}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.Data = make([]byte, t.ByteSize())
	t.refs.Store(1)
	return t, nil
}

// Elements returns the product of the shape, or 0 for an empty shape.
func (t *Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ByteSize is the number of bytes implied by dtype and shape. Variable-size
// dtypes report the length of Data.
func (t *Tensor) ByteSize() int64 {
	if sz := t.DType.Size(); sz > 0 {
		return t.Elements() * int64(sz)
	}
	return int64(len(t.Data))
}

// Validate checks rank and dimension bounds.
func (t *Tensor) Validate() error {
	if len(t.Shape) > MaxDims {
		return fmt.Errorf("tensor %q: rank %d exceeds %d", t.Name, len(t.Shape), MaxDims)
	}
	for i, d := range t.Shape {
		if d < 0 {
			return fmt.Errorf("tensor %q: negative dim %d at %d", t.Name, d, i)
		}
	}
	return nil
}

// Retain increments the tensor's reference count.
func (t *Tensor) Retain() { t.refs.Add(1) }

// Release decrements the reference count and drops owned data at zero.
// It reports whether this call released the last reference.
func (t *Tensor) Release() bool {
	if t.refs.Add(-1) > 0 {
		return false
	}
	if t.OwnsData {
		t.Data = nil
	}
	return true
}

// RefCount returns the current reference count.
func (t *Tensor) RefCount() int32 { return t.refs.Load() }

// Info projects the descriptive part of a tensor.
func (t *Tensor) Info() TensorInfo {
	return TensorInfo{Name: t.Name, DType: t.DType, Shape: append([]int64(nil), t.Shape...), Layout: t.Layout}
}

// TensorInfo describes an engine input or output without data.
type TensorInfo struct {
	Name   string
	DType  DType
	Shape  []int64
	Layout Layout
}
