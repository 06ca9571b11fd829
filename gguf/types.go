// Package gguf implements the GGUF v3 container format: header and
// metadata parsing, the tensor directory, and memory-mapped byte-exact
// access to tensor data. It is the C1 component of the inference engine.
package gguf

import "fmt"

// TensorType identifies the on-disk encoding of a tensor's elements.
// Values match the public GGUF/ggml tensor type ids.
type TensorType uint32

const (
	TensorTypeF32 TensorType = iota
	TensorTypeF16
	TensorTypeQ4_0
	TensorTypeQ4_1
	_ // unused ggml type 4
	_ // unused ggml type 5
	TensorTypeQ5_0
	TensorTypeQ5_1
	TensorTypeQ8_0
	TensorTypeQ8_1
	TensorTypeQ2_K
	TensorTypeQ3_K
	TensorTypeQ4_K
	TensorTypeQ5_K
	TensorTypeQ6_K
	TensorTypeQ8_K
	_ // IQ2_XXS, not implemented
	_ // IQ2_XS, not implemented
	TensorTypeIQ3_XXS
	_ // IQ1_S, not implemented
	TensorTypeIQ4_NL
	TensorTypeIQ3_S
	TensorTypeIQ2_S
	TensorTypeIQ4_XS
	TensorTypeI8
	TensorTypeI16
	TensorTypeI32
	TensorTypeI64
	TensorTypeF64
	_ // IQ1_M, not implemented
	TensorTypeBF16
	_
	_
	_
	_
	_
	_
	_
	_
	TensorTypeMXFP4
)

// ParseTensorType parses the GGUF string form of a tensor type.
func ParseTensorType(s string) (TensorType, error) {
	switch s {
	case "F32":
		return TensorTypeF32, nil
	case "F16":
		return TensorTypeF16, nil
	case "Q4_0":
		return TensorTypeQ4_0, nil
	case "Q4_1":
		return TensorTypeQ4_1, nil
	case "Q5_0":
		return TensorTypeQ5_0, nil
	case "Q5_1":
		return TensorTypeQ5_1, nil
	case "Q8_0":
		return TensorTypeQ8_0, nil
	case "Q8_1":
		return TensorTypeQ8_1, nil
	case "Q2_K":
		return TensorTypeQ2_K, nil
	case "Q3_K":
		return TensorTypeQ3_K, nil
	case "Q4_K":
		return TensorTypeQ4_K, nil
	case "Q5_K":
		return TensorTypeQ5_K, nil
	case "Q6_K":
		return TensorTypeQ6_K, nil
	case "Q8_K":
		return TensorTypeQ8_K, nil
	case "IQ3_XXS":
		return TensorTypeIQ3_XXS, nil
	case "IQ4_NL":
		return TensorTypeIQ4_NL, nil
	case "IQ3_S":
		return TensorTypeIQ3_S, nil
	case "IQ2_S":
		return TensorTypeIQ2_S, nil
	case "IQ4_XS":
		return TensorTypeIQ4_XS, nil
	case "I8":
		return TensorTypeI8, nil
	case "I16":
		return TensorTypeI16, nil
	case "I32":
		return TensorTypeI32, nil
	case "I64":
		return TensorTypeI64, nil
	case "F64":
		return TensorTypeF64, nil
	case "BF16":
		return TensorTypeBF16, nil
	case "MXFP4":
		return TensorTypeMXFP4, nil
	default:
		return 0, fmt.Errorf("unsupported quantization type %s", s)
	}
}

// IsQuantized reports whether t is a block-quantized (non-scalar) format.
func (t TensorType) IsQuantized() bool {
	switch t {
	case TensorTypeF32, TensorTypeF16, TensorTypeBF16,
		TensorTypeI8, TensorTypeI16, TensorTypeI32, TensorTypeI64, TensorTypeF64:
		return false
	default:
		return true
	}
}

// BlockSize returns the number of elements per encoded block.
func (t TensorType) BlockSize() uint64 {
	switch t {
	case TensorTypeF32, TensorTypeF16, TensorTypeBF16,
		TensorTypeI8, TensorTypeI16, TensorTypeI32, TensorTypeI64, TensorTypeF64:
		return 1
	case TensorTypeQ4_0, TensorTypeQ4_1, TensorTypeQ5_0, TensorTypeQ5_1,
		TensorTypeQ8_0, TensorTypeQ8_1, TensorTypeIQ4_NL, TensorTypeMXFP4:
		return 32
	default:
		return 256
	}
}

// TypeSize returns the encoded byte size of one block, following the
// GGUF block layouts (§3 of the spec, bit-for-bit with the reference
// byte-size formulas).
func (t TensorType) TypeSize() uint64 {
	bs := t.BlockSize()
	switch t {
	case TensorTypeF32:
		return 4
	case TensorTypeF16:
		return 2
	case TensorTypeBF16:
		return 2
	case TensorTypeQ4_0:
		return 2 + bs/2
	case TensorTypeQ4_1:
		return 2 + 2 + bs/2
	case TensorTypeQ5_0:
		return 2 + 4 + bs/2
	case TensorTypeQ5_1:
		return 2 + 2 + 4 + bs/2
	case TensorTypeQ8_0:
		return 2 + bs
	case TensorTypeQ8_1:
		return 2 + 2 + bs
	case TensorTypeQ2_K:
		return bs/16 + bs/4 + 2 + 2
	case TensorTypeQ3_K:
		return bs/8 + bs/4 + 12 + 2
	case TensorTypeQ4_K:
		return 2 + 2 + 12 + bs/2
	case TensorTypeQ5_K:
		return 2 + 2 + 12 + bs/8 + bs/2
	case TensorTypeQ6_K:
		return bs/2 + bs/4 + bs/16 + 2
	case TensorTypeQ8_K:
		return 4 + bs + 2*bs/16
	case TensorTypeIQ3_XXS:
		return 2 + bs/4 + bs/8
	case TensorTypeIQ4_NL:
		return 2 + bs/2
	case TensorTypeIQ3_S:
		return 2 + bs/4 + bs/8 + bs/32 + 4
	case TensorTypeIQ2_S:
		return 2 + bs/4 + bs/16
	case TensorTypeIQ4_XS:
		return 2 + 2 + bs/2 + bs/64
	case TensorTypeI8:
		return 1
	case TensorTypeI16:
		return 2
	case TensorTypeI32:
		return 4
	case TensorTypeI64:
		return 8
	case TensorTypeF64:
		return 8
	case TensorTypeMXFP4:
		return 1 + bs/2
	default:
		return 0
	}
}

// RowSize returns the byte size of a row of ne elements.
func (t TensorType) RowSize(ne uint64) uint64 {
	return t.TypeSize() * ne / t.BlockSize()
}

func (t TensorType) String() string {
	switch t {
	case TensorTypeF32:
		return "F32"
	case TensorTypeF16:
		return "F16"
	case TensorTypeQ4_0:
		return "Q4_0"
	case TensorTypeQ4_1:
		return "Q4_1"
	case TensorTypeQ5_0:
		return "Q5_0"
	case TensorTypeQ5_1:
		return "Q5_1"
	case TensorTypeQ8_0:
		return "Q8_0"
	case TensorTypeQ8_1:
		return "Q8_1"
	case TensorTypeQ2_K:
		return "Q2_K"
	case TensorTypeQ3_K:
		return "Q3_K"
	case TensorTypeQ4_K:
		return "Q4_K"
	case TensorTypeQ5_K:
		return "Q5_K"
	case TensorTypeQ6_K:
		return "Q6_K"
	case TensorTypeQ8_K:
		return "Q8_K"
	case TensorTypeIQ3_XXS:
		return "IQ3_XXS"
	case TensorTypeIQ4_NL:
		return "IQ4_NL"
	case TensorTypeIQ3_S:
		return "IQ3_S"
	case TensorTypeIQ2_S:
		return "IQ2_S"
	case TensorTypeIQ4_XS:
		return "IQ4_XS"
	case TensorTypeI8:
		return "I8"
	case TensorTypeI16:
		return "I16"
	case TensorTypeI32:
		return "I32"
	case TensorTypeI64:
		return "I64"
	case TensorTypeF64:
		return "F64"
	case TensorTypeBF16:
		return "BF16"
	case TensorTypeMXFP4:
		return "MXFP4"
	default:
		return fmt.Sprintf("unknown(%d)", uint32(t))
	}
}

// gguf metadata value type tags, as written in the key/value table.
const (
	valUint8 uint32 = iota
	valInt8
	valUint16
	valInt16
	valUint32
	valInt32
	valFloat32
	valBool
	valString
	valArray
	valUint64
	valInt64
	valFloat64
)
