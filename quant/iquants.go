package quant

import "github.com/DenzoSOFTHub/gguf-infer/gguf"

// Non-linear (lookup-table) quantization formats. IQ4_NL/IQ4_XS use a
// small 16-entry per-nibble codebook that fits in source. IQ2_S/IQ3_S/
// IQ3_XXS instead select codewords from large (256/512/1024-entry)
// grid tables plus a sign-mask table; those constants are not present
// anywhere in this repository's teacher or example pack and are long
// enough (and sensitive enough to single-bit transcription errors) that
// hand-reproducing them from memory would silently corrupt every
// weight of any tensor using those formats. Rather than ship invented
// numbers that look plausible, IQ3_XXS/IQ3_S/IQ2_S are left
// unregistered below: Supported/Get/Dequantize/Dot all report them as
// unsupported, the same treatment IQ2_XXS/IQ2_XS/IQ1_S/IQ1_M already
// get in gguf/types.go. See DESIGN.md for where the real
// tables (ggml's iq3xxs_grid/iq3s_grid/iq2s_grid/ksigns_iq2xs in
// ggml-quants.c) would need to come from to add support properly.

// kValuesIQ4NL is the reference 16-point non-uniform codebook shared by
// IQ4_NL and IQ4_XS.
var kValuesIQ4NL = [16]int8{-127, -104, -83, -65, -49, -35, -22, -10, 1, 13, 25, 38, 53, 69, 89, 113}

// --- IQ4_NL: f16 scale || 16 nibble-index bytes (32 values). ----------

const blockBytesIQ4NL = 2 + blockSize32/2

func dequantBlockIQ4NL(v gguf.View, block int, out []float32) {
	base := block * blockBytesIQ4NL
	d := f16ToF32(v.U16(base))
	for j := 0; j < 16; j++ {
		b := v.Byte(base + 2 + j)
		out[j] = d * float32(kValuesIQ4NL[b&0x0F])
		out[16+j] = d * float32(kValuesIQ4NL[b>>4])
	}
}

// --- IQ4_XS: f16 d || 8x6-bit sub-block scales (packed in 2+4 bytes) ||
// 128 B nibble indices. Each 6-bit sub-block scale takes its low 4 bits
// from a nibble of the 4 low bytes and its high 2 bits from the 16-bit
// high word, applied per 32-element sub-block (8 sub-blocks of 32 = 256).

const blockBytesIQ4XS = 2 + 2 + blockK/64 + blockK/2 // 136

func dequantBlockIQ4XS(v gguf.View, block int, out []float32) {
	base := block * blockBytesIQ4XS
	d := f16ToF32(v.U16(base))
	scaleHi := v.U16(base + 2)
	scaleLoOff := base + 4
	qOff := base + 4 + blockK/64

	for sb := 0; sb < 8; sb++ {
		lo := v.Byte(scaleLoOff+sb/2) >> uint((sb%2)*4) & 0x0F
		hi := uint8((scaleHi >> uint(sb*2)) & 0x03)
		sc := int32(lo) | int32(hi)<<4
		scale := d * float32(sc-32)
		qBase := qOff + sb*16
		for j := 0; j < 16; j++ {
			b := v.Byte(qBase + j)
			out[sb*32+j] = scale * float32(kValuesIQ4NL[b&0x0F])
			out[sb*32+16+j] = scale * float32(kValuesIQ4NL[b>>4])
		}
	}
}

// --- MXFP4: u8 E8M0 exponent || 16 nibble FP4 indices (32 values). ----

const blockBytesMXFP4 = 1 + blockSize32/2

// fp4LUT is the OCP MXFP4 E2M1 value table indexed by the raw 4-bit
// code (sign in bit 3, magnitude in bits 0-2).
var fp4LUT = [16]float32{
	0, 0.5, 1, 1.5, 2, 3, 4, 6,
	-0, -0.5, -1, -1.5, -2, -3, -4, -6,
}

// dequantBlockMXFP4 special-cases the two OCP E8M0 exponent codes that
// don't follow the normal 2^(e-127) scale rule: e=0 is the reserved
// minimum and e=255 is NaN/zero-scale, and both dequantize the whole
// block to 0 rather than computing 2^-127 or overflowing to +Inf.
func dequantBlockMXFP4(v gguf.View, block int, out []float32) {
	base := block * blockBytesMXFP4
	e8 := v.Byte(base)
	if e8 == 0 || e8 == 255 {
		for j := 0; j < blockSize32; j++ {
			out[j] = 0
		}
		return
	}
	scale := exp2i(int(e8) - 127)
	for j := 0; j < 16; j++ {
		b := v.Byte(base + 1 + j)
		out[j] = scale * fp4LUT[b&0x0F]
		out[16+j] = scale * fp4LUT[b>>4]
	}
}

func exp2i(e int) float32 {
	if e >= 0 {
		f := float32(1)
		for i := 0; i < e; i++ {
			f *= 2
		}
		return f
	}
	f := float32(1)
	for i := 0; i < -e; i++ {
		f /= 2
	}
	return f
}
