package quant

import "github.com/DenzoSOFTHub/gguf-infer/gguf"

// Simple (non-K) block formats: F32/F16/BF16 (block=1), Q4_0/Q5_0/Q8_0
// (block=32). Layouts follow the GGUF reference byte-for-byte.

const (
	blockSize32 = 32
)

func getF32(v gguf.View, i int) float32 { return v.F32(i * 4) }
func getF16(v gguf.View, i int) float32 { return f16ToF32(v.U16(i * 2)) }
func getBF16(v gguf.View, i int) float32 { return bf16ToF32(v.U16(i * 2)) }

// --- Q4_0: f16 scale || 16 nibble bytes (32 values). ------------------

const blockBytesQ4_0 = 2 + blockSize32/2

func getQ4_0(v gguf.View, i int) float32 {
	block := i / blockSize32
	j := i % blockSize32
	base := block * blockBytesQ4_0
	scale := f16ToF32(v.U16(base))
	var nib uint8
	if j < 16 {
		nib = v.Byte(base+2+j) & 0x0F
	} else {
		nib = v.Byte(base+2+(j-16)) >> 4
	}
	return (float32(int(nib)) - 8) * scale
}

func dequantBlockQ4_0(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ4_0
	scale := f16ToF32(v.U16(base))
	for j := 0; j < 16; j++ {
		b := v.Byte(base + 2 + j)
		out[j] = (float32(b&0x0F) - 8) * scale
		out[16+j] = (float32(b>>4) - 8) * scale
	}
}

// --- Q5_0: f16 scale || u32 high bits || 16 nibble bytes. -------------

const blockBytesQ5_0 = 2 + 4 + blockSize32/2

func getQ5_0(v gguf.View, i int) float32 {
	block := i / blockSize32
	j := i % blockSize32
	base := block * blockBytesQ5_0
	scale := f16ToF32(v.U16(base))
	qh := v.U32(base + 2)
	var lo uint8
	var hiPos int
	if j < 16 {
		lo = v.Byte(base+6+j) & 0x0F
		hiPos = j
	} else {
		lo = v.Byte(base+6+(j-16)) >> 4
		hiPos = j
	}
	hi := uint8((qh >> uint(hiPos)) & 1)
	return (float32(lo|hi<<4) - 16) * scale
}

func dequantBlockQ5_0(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ5_0
	scale := f16ToF32(v.U16(base))
	qh := v.U32(base + 2)
	for j := 0; j < 16; j++ {
		b := v.Byte(base + 6 + j)
		loLo := b & 0x0F
		loHi := b >> 4
		hiLo := uint8((qh >> uint(j)) & 1)
		hiHi := uint8((qh >> uint(16+j)) & 1)
		out[j] = (float32(loLo|hiLo<<4) - 16) * scale
		out[16+j] = (float32(loHi|hiHi<<4) - 16) * scale
	}
}

// --- Q8_0: f16 scale || 32 int8 values. --------------------------------

const blockBytesQ8_0 = 2 + blockSize32

func getQ8_0(v gguf.View, i int) float32 {
	block := i / blockSize32
	j := i % blockSize32
	base := block * blockBytesQ8_0
	scale := f16ToF32(v.U16(base))
	return float32(int8(v.Byte(base+2+j))) * scale
}

func dequantBlockQ8_0(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ8_0
	scale := f16ToF32(v.U16(base))
	for j := 0; j < 32; j++ {
		out[j] = float32(int8(v.Byte(base+2+j))) * scale
	}
}

// quantizeRowQ8_0 quantizes n (multiple of 32) dense values starting at
// dense[off] into per-block (scale, [32]int8) pairs, the activation-side
// step of the specialized Q4_0/Q8_0 integer-accumulator dot path
// required by the spec for these two interleaved formats.
func quantizeRowQ8_0(dense []float32, off, n int) (scales []float32, qs [][32]int8) {
	nb := n / blockSize32
	scales = make([]float32, nb)
	qs = make([][32]int8, nb)
	for b := 0; b < nb; b++ {
		var amax float32
		for j := 0; j < blockSize32; j++ {
			a := dense[off+b*blockSize32+j]
			if a < 0 {
				a = -a
			}
			if a > amax {
				amax = a
			}
		}
		scale := amax / 127.0
		scales[b] = scale
		if scale == 0 {
			continue
		}
		inv := 1 / scale
		for j := 0; j < blockSize32; j++ {
			qs[b][j] = int8(round(dense[off+b*blockSize32+j] * inv))
		}
	}
	return
}

func round(f float32) float32 {
	if f >= 0 {
		return float32(int(f + 0.5))
	}
	return float32(int(f - 0.5))
}

// dotQ4_0Q8_0 is the specialized integer-accumulator dot product
// between Q4_0 weight blocks and Q8_0-quantized activation blocks
// required by spec §4.2 for this pair of interleaved formats.
func dotQ4_0Q8_0(v gguf.View, rowOffsetElems int, dense []float32, denseOff, n int) float32 {
	nb := n / blockSize32
	blockOff := rowOffsetElems / blockSize32
	aScales, aQs := quantizeRowQ8_0(dense, denseOff, n)

	var sum float32
	for b := 0; b < nb; b++ {
		base := (blockOff + b) * blockBytesQ4_0
		wScale := f16ToF32(v.U16(base))
		aScale := aScales[b]
		if aScale == 0 {
			continue
		}
		var isum int32
		for j := 0; j < 16; j++ {
			byt := v.Byte(base + 2 + j)
			wLo := int32(byt&0x0F) - 8
			wHi := int32(byt>>4) - 8
			isum += wLo * int32(aQs[b][j])
			isum += wHi * int32(aQs[b][16+j])
		}
		sum += wScale * aScale * float32(isum)
	}
	return sum
}

// dotQ8_0Q8_0 is the analogous specialized path for Q8_0 weights
// against Q8_0-quantized activations.
func dotQ8_0Q8_0(v gguf.View, rowOffsetElems int, dense []float32, denseOff, n int) float32 {
	nb := n / blockSize32
	blockOff := rowOffsetElems / blockSize32
	aScales, aQs := quantizeRowQ8_0(dense, denseOff, n)

	var sum float32
	for b := 0; b < nb; b++ {
		base := (blockOff + b) * blockBytesQ8_0
		wScale := f16ToF32(v.U16(base))
		aScale := aScales[b]
		if aScale == 0 {
			continue
		}
		var isum int32
		for j := 0; j < blockSize32; j++ {
			w := int32(int8(v.Byte(base + 2 + j)))
			isum += w * int32(aQs[b][j])
		}
		sum += wScale * aScale * float32(isum)
	}
	return sum
}
