package gguf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// Tensor describes one entry of the GGUF tensor directory.
type Tensor struct {
	Name   string
	Kind   uint32
	Offset uint64 // byte offset relative to the tensor data section
	Shape  []uint64
}

func (t Tensor) Type() TensorType { return TensorType(t.Kind) }

func (t Tensor) Elements() uint64 {
	n := uint64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

func (t Tensor) Size() uint64 {
	bs := t.Type().BlockSize()
	return t.Elements() * t.Type().TypeSize() / bs
}

// Tensors is the full ordered tensor directory of a loaded file.
type Tensors struct {
	items  []*Tensor
	Offset uint64 // absolute byte offset of the tensor data section
}

func (ts Tensors) Items(prefix ...string) []*Tensor {
	if len(prefix) == 0 {
		return ts.items
	}
	var out []*Tensor
	for _, t := range ts.items {
		if strings.HasPrefix(t.Name, prefix[0]) {
			out = append(out, t)
		}
	}
	return out
}

func (ts Tensors) ByName(name string) (*Tensor, bool) {
	for _, t := range ts.items {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// Layer is the set of tensors belonging to one transformer block (or a
// global group such as "token_embd"), keyed by their suffix after the
// "blk.{i}." prefix is stripped.
type Layer map[string]*Tensor

// GroupLayers partitions the tensor directory by the numeric "blk.N."
// (or "mm.N.") prefix, matching the naming convention used throughout
// GGUF checkpoints.
func (ts Tensors) GroupLayers() map[string]Layer {
	layers := make(map[string]Layer)
	for _, t := range ts.items {
		parts := strings.Split(t.Name, ".")
		group := parts[0]
		rest := parts[1:]
		if (parts[0] == "blk" || parts[0] == "mm") && len(parts) > 2 {
			group = parts[0] + "." + parts[1]
			rest = parts[2:]
		}
		if _, ok := layers[group]; !ok {
			layers[group] = make(Layer)
		}
		layers[group][strings.Join(rest, ".")] = t
	}
	return layers
}

// View is an immutable, byte-addressable window into the memory-mapped
// GGUF file. It never mutates and may be freely shared across goroutines
// and InferenceStates.
type View struct {
	data []byte
}

// NewView wraps data as a View without a backing mmap, for synthetic
// tensors (tests, constant-folded biases materialized at load time).
func NewView(data []byte) View { return View{data: data} }

func (v View) Len() int { return len(v.data) }

func (v View) Bytes() []byte { return v.data }

// Slice derives a sub-view; it panics on out-of-range arguments since it
// is always called with offsets already validated against tensor sizes.
func (v View) Slice(offset, length int) View {
	return View{data: v.data[offset : offset+length]}
}

func (v View) Byte(offset int) byte { return v.data[offset] }

func (v View) U16(offset int) uint16 { return binary.LittleEndian.Uint16(v.data[offset:]) }
func (v View) U32(offset int) uint32 { return binary.LittleEndian.Uint32(v.data[offset:]) }
func (v View) U64(offset int) uint64 { return binary.LittleEndian.Uint64(v.data[offset:]) }

func (v View) I32(offset int) int32 { return int32(v.U32(offset)) }
func (v View) I64(offset int) int64 { return int64(v.U64(offset)) }

func (v View) F32(offset int) float32 { return math.Float32frombits(v.U32(offset)) }
func (v View) F64(offset int) float64 { return math.Float64frombits(v.U64(offset)) }

// Copy bulk-copies length bytes starting at srcOffset into dst.
func (v View) Copy(srcOffset int, dst []byte, length int) {
	copy(dst, v.data[srcOffset:srcOffset+length])
}

// TensorView returns the byte-addressable view of t's data, validating
// that its declared extent fits within the mapped region. The common
// case (tensor within one mmap segment) is zero-copy; a tensor that
// straddles a segment boundary is reassembled into an owned buffer.
func (f *File) TensorView(t *Tensor) (View, error) {
	start := int64(f.Tensors.Offset + t.Offset)
	size := int64(t.Size())
	if start+size > f.mapped.Len() {
		return View{}, parseErr(ErrTensorOOB, fmt.Sprintf("tensor %q at %d+%d exceeds file size %d", t.Name, start, size, f.mapped.Len()), nil)
	}
	if data, ok := f.mapped.Contiguous(start, int(size)); ok {
		return View{data: data}, nil
	}
	buf := make([]byte, size)
	f.mapped.ReadAt(buf, start, int(size))
	return View{data: buf}, nil
}
