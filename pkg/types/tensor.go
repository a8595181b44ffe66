package types

import (
	"encoding/binary"
	"fmt"
	"math"
)

// DataType identifies the element type of a tensor.
type DataType string

const (
	Int8    DataType = "int8"
	UInt8   DataType = "uint8"
	Int16   DataType = "int16"
	UInt16  DataType = "uint16"
	Int32   DataType = "int32"
	UInt32  DataType = "uint32"
	Int64   DataType = "int64"
	UInt64  DataType = "uint64"
	Float32 DataType = "float32"
	Float64 DataType = "float64"
)

var typeSizes = map[DataType]int{
	Int8: 1, UInt8: 1,
	Int16: 2, UInt16: 2,
	Int32: 4, UInt32: 4,
	Int64: 8, UInt64: 8,
	Float32: 4, Float64: 8,
}

// ParseDataType maps a config string to a DataType. Unknown names are rejected.
func ParseDataType(s string) (DataType, error) {
	dt := DataType(s)
	if _, ok := typeSizes[dt]; !ok {
		return "", fmt.Errorf("unknown element type %q", s)
	}
	return dt, nil
}

// Size returns the element width in bytes, or 0 for an unknown type.
func (d DataType) Size() int { return typeSizes[d] }

// TensorInfo describes one tensor slot of a port: element type plus a
// fixed-rank dimension vector. Dims are immutable once a topology is resolved.
type TensorInfo struct {
	Type DataType `json:"type" yaml:"type" toml:"type"`
	Dims []int    `json:"dims" yaml:"dims" toml:"dims"`
}

// ElementCount returns the product of the dimension vector.
func (ti TensorInfo) ElementCount() int {
	n := 1
	for _, d := range ti.Dims {
		n *= d
	}
	return n
}

// ByteSize returns the total payload size one tensor of this shape occupies.
func (ti TensorInfo) ByteSize() int { return ti.ElementCount() * ti.Type.Size() }

// Equal reports whether two tensor descriptions match exactly.
func (ti TensorInfo) Equal(other TensorInfo) bool {
	if ti.Type != other.Type || len(ti.Dims) != len(other.Dims) {
		return false
	}
	for i := range ti.Dims {
		if ti.Dims[i] != other.Dims[i] {
			return false
		}
	}
	return true
}

// Tensor is one tensor payload: a shape description plus raw little-endian data.
type Tensor struct {
	Info TensorInfo `json:"info"`
	Data []byte     `json:"data"`
}

// Batch is the unit of submission and delivery: the tensors of one request
// (or one result) on a single port, in declaration order.
type Batch []Tensor

// FromFloat32s builds a float32 tensor with the given flat dimensions.
func FromFloat32s(vals []float32, dims ...int) Tensor {
	data := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	if len(dims) == 0 {
		dims = []int{len(vals)}
	}
	return Tensor{Info: TensorInfo{Type: Float32, Dims: dims}, Data: data}
}

// Float32s decodes the tensor payload as float32 values. It fails when the
// tensor's element type is not float32 or the payload length is short.
func (t Tensor) Float32s() ([]float32, error) {
	if t.Info.Type != Float32 {
		return nil, fmt.Errorf("tensor is %s, not float32", t.Info.Type)
	}
	n := t.Info.ElementCount()
	if len(t.Data) < 4*n {
		return nil, fmt.Errorf("tensor payload is %d bytes, need %d", len(t.Data), 4*n)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
	}
	return out, nil
}

// Clone returns a deep copy so dispatched payloads stay immutable.
func (t Tensor) Clone() Tensor {
	data := make([]byte, len(t.Data))
	copy(data, t.Data)
	dims := make([]int, len(t.Info.Dims))
	copy(dims, t.Info.Dims)
	return Tensor{Info: TensorInfo{Type: t.Info.Type, Dims: dims}, Data: data}
}

// Clone deep-copies every tensor in the batch.
func (b Batch) Clone() Batch {
	out := make(Batch, len(b))
	for i := range b {
		out[i] = b[i].Clone()
	}
	return out
}
