package quant

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
)

// TestQ3_KSyntheticBlockMatchesScenarioS1 builds the single-superblock
// Q3_K tensor from the spec's S1 scenario: d=1.0, every sub-block scale
// decodes to 33 (centers to 1 after the -32 bias), hmask all zero, qs
// all zero. Every one of the 256 weights must dequantize to -4.0 and
// dot against an all-ones vector must equal -1024.0.
func TestQ3_KSyntheticBlockMatchesScenarioS1(t *testing.T) {
	buf := make([]byte, blockBytesQ3_K)
	// hmask [0:32] and qs [32:96] are already zero.
	scales := []byte{
		0x11, 0x11, 0x11, 0x11,
		0x11, 0x11, 0x11, 0x11,
		0xAA, 0xAA, 0xAA, 0xAA,
	}
	copy(buf[96:108], scales)
	dBits := float16.Fromfloat32(1.0).Bits()
	binary.LittleEndian.PutUint16(buf[108:110], dBits)

	v := gguf.NewView(buf)

	out := make([]float32, blockK)
	require.NoError(t, Dequantize(gguf.TensorTypeQ3_K, v, blockK, out))
	for i, w := range out {
		require.InDelta(t, -4.0, float64(w), 1e-5, "weight %d", i)
	}

	ones := make([]float32, blockK)
	for i := range ones {
		ones[i] = 1
	}
	dot, err := Dot(gguf.TensorTypeQ3_K, v, 0, ones, 0, blockK)
	require.NoError(t, err)
	require.InDelta(t, -1024.0, float64(dot), 1e-3)
}

// TestF32GetAndDotRoundTrip exercises the simplest format end to end:
// Get must recover exactly what was encoded, and Dot must equal the
// plain dot product.
func TestF32GetAndDotRoundTrip(t *testing.T) {
	values := []float32{1, -2, 3.5, -4.25}
	buf := make([]byte, 4*len(values))
	for i, f := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	v := gguf.NewView(buf)

	for i, want := range values {
		got, err := Get(gguf.TensorTypeF32, v, i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	dense := []float32{2, 2, 2, 2}
	dot, err := Dot(gguf.TensorTypeF32, v, 0, dense, 0, len(values))
	require.NoError(t, err)

	var want float32
	for _, f := range values {
		want += f * 2
	}
	require.InDelta(t, float64(want), float64(dot), 1e-5)
}

// TestQ8_0SpecializedDotMatchesGenericDequantDot is Property 1 (dequant
// consistency): the specialized integer-accumulator Q8_0xQ8_0 dot path
// must agree with the generic dequantize-then-kernel.Dot path within
// quantization rounding error.
func TestQ8_0SpecializedDotMatchesGenericDequantDot(t *testing.T) {
	buf := make([]byte, blockBytesQ8_0)
	scaleBits := float16.Fromfloat32(0.5).Bits()
	binary.LittleEndian.PutUint16(buf[0:2], scaleBits)
	for j := 0; j < blockSize32; j++ {
		buf[2+j] = byte(int8(j - 16))
	}
	v := gguf.NewView(buf)

	dense := make([]float32, blockSize32)
	for j := range dense {
		dense[j] = float32(j%5) - 2
	}

	specialized, err := Dot(gguf.TensorTypeQ8_0, v, 0, dense, 0, blockSize32)
	require.NoError(t, err)

	deq := make([]float32, blockSize32)
	require.NoError(t, Dequantize(gguf.TensorTypeQ8_0, v, blockSize32, deq))
	var generic float32
	for j := range deq {
		generic += deq[j] * dense[j]
	}

	require.InDelta(t, float64(generic), float64(specialized), 1.0)
}

func TestSupportedAndBlockSize(t *testing.T) {
	require.True(t, Supported(gguf.TensorTypeQ4_K))
	require.Equal(t, blockK, BlockSize(gguf.TensorTypeQ4_K))
	require.False(t, Supported(gguf.TensorType(9999)))
	require.Equal(t, 0, BlockSize(gguf.TensorType(9999)))
}

// TestIQ3AndIQ2GridFormatsAreUnsupported: these formats select
// codewords from large grid tables this repository cannot source (see
// iquants.go), so they must fail loudly rather than silently
// dequantize through invented codebooks.
func TestIQ3AndIQ2GridFormatsAreUnsupported(t *testing.T) {
	for _, tt := range []gguf.TensorType{gguf.TensorTypeIQ3_XXS, gguf.TensorTypeIQ3_S, gguf.TensorTypeIQ2_S} {
		require.False(t, Supported(tt), "type %v", tt)
		_, err := Get(tt, gguf.NewView(nil), 0)
		require.Error(t, err)
		err = Dequantize(tt, gguf.NewView(nil), 0, nil)
		require.Error(t, err)
	}
}

// TestMXFP4ZeroAndMaxExponentDequantizeToZero covers the spec-mandated
// special case: E8M0 exponent bytes 0 and 255 must decode the whole
// block to 0, not 2^-127 or an overflowing +Inf.
func TestMXFP4ZeroAndMaxExponentDequantizeToZero(t *testing.T) {
	for _, e8 := range []byte{0, 255} {
		buf := make([]byte, blockBytesMXFP4)
		buf[0] = e8
		for j := 1; j < len(buf); j++ {
			buf[j] = 0xFF // nonzero FP4 codes; must still all come out 0
		}
		v := gguf.NewView(buf)

		out := make([]float32, blockSize32)
		require.NoError(t, Dequantize(gguf.TensorTypeMXFP4, v, blockSize32, out))
		for i, w := range out {
			require.Equal(t, float32(0), w, "exp=%d index %d", e8, i)
		}
	}
}

// TestMXFP4NormalExponentScalesLUTValue sanity-checks the common case
// against the OCP E2M1 table at a mid-range exponent.
func TestMXFP4NormalExponentScalesLUTValue(t *testing.T) {
	buf := make([]byte, blockBytesMXFP4)
	buf[0] = 128 // 2^(128-127) = 2
	buf[1] = 0x06 // low nibble 6 -> LUT[6] = 4, high nibble 0 -> LUT[0] = 0
	v := gguf.NewView(buf)

	out := make([]float32, blockSize32)
	require.NoError(t, Dequantize(gguf.TensorTypeMXFP4, v, blockSize32, out))
	require.Equal(t, float32(8), out[0])
	require.Equal(t, float32(0), out[16])
}
