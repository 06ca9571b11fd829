package quant

import "github.com/DenzoSOFTHub/gguf-infer/gguf"

// K-quant super-block formats (block=256). Each super-block packs a set
// of sub-block 6-bit scales (and, for Q2_K/Q4_K/Q5_K, 6-bit mins)
// alongside low-bit quants and high-bit extension masks. Layouts and
// bit-unpacking match the reference ggml K-quant formulas exactly.

const blockK = 256

// --- Q2_K: 16 B scale/min nibbles || 64 B 2-bit quants || f16 d || f16 dmin.

const blockBytesQ2_K = blockK/16 + blockK/4 + 2 + 2 // 84

func dequantBlockQ2_K(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ2_K
	scOff := base
	qOff := base + 16
	d := f16ToF32(v.U16(base + 16 + 64))
	dmin := f16ToF32(v.U16(base + 16 + 64 + 2))

	oi := 0
	is := 0
	for n := 0; n < blockK; n += 128 {
		shift := uint(0)
		qBase := qOff + n/4
		for j := 0; j < 4; j++ {
			sc := v.Byte(scOff + is)
			is++
			dl := d * float32(sc&0x0F)
			ml := dmin * float32(sc>>4)
			for l := 0; l < 16; l++ {
				q := (v.Byte(qBase+l) >> shift) & 3
				out[oi] = dl*float32(q) - ml
				oi++
			}

			sc = v.Byte(scOff + is)
			is++
			dl = d * float32(sc&0x0F)
			ml = dmin * float32(sc>>4)
			for l := 0; l < 16; l++ {
				q := (v.Byte(qBase+16+l) >> shift) & 3
				out[oi] = dl*float32(q) - ml
				oi++
			}
			shift += 2
		}
	}
}

// --- Q3_K: 32 B high-mask || 64 B low-2-bit || 12 B packed 6-bit scales || f16 d.

const blockBytesQ3_K = blockK/8 + blockK/4 + 12 + 2 // 110

// scale3K unpacks the k-th (0..15) signed 6-bit scale from the 12-byte
// packed array, following the reference's per-word bit recombination
// (here done per byte lane, which is equivalent since the SIMD masks in
// the original are repeated identically in every byte of each word).
func scale3K(raw [12]byte, k int) int {
	w := k / 4
	b := k % 4
	byte0 := raw[b]
	byte1 := raw[4+b]
	byte2 := raw[8+b]
	var val uint8
	switch w {
	case 0:
		val = (byte0 & 0x0F) | ((byte2 & 0x03) << 4)
	case 1:
		val = (byte1 & 0x0F) | (((byte2 >> 2) & 0x03) << 4)
	case 2:
		val = ((byte0 >> 4) & 0x0F) | (((byte2 >> 4) & 0x03) << 4)
	default:
		val = ((byte1 >> 4) & 0x0F) | (((byte2 >> 6) & 0x03) << 4)
	}
	return int(val)
}

func dequantBlockQ3_K(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ3_K
	hmOff := base
	qOff := base + 32
	scOff := base + 32 + 64
	d := f16ToF32(v.U16(scOff + 12))

	var scalesRaw [12]byte
	for i := range scalesRaw {
		scalesRaw[i] = v.Byte(scOff + i)
	}

	is, oi := 0, 0
	m := uint8(1)
	qBase := qOff
	for n := 0; n < blockK; n += 128 {
		shift := uint(0)
		for j := 0; j < 4; j++ {
			sc := scale3K(scalesRaw, is)
			is++
			dl := d * float32(sc-32)
			for l := 0; l < 16; l++ {
				hbit := float32(4)
				if v.Byte(hmOff+l)&m != 0 {
					hbit = 0
				}
				q := (v.Byte(qBase+l) >> shift) & 3
				out[oi] = dl * (float32(q) - hbit)
				oi++
			}

			sc = scale3K(scalesRaw, is)
			is++
			dl = d * float32(sc-32)
			for l := 0; l < 16; l++ {
				hbit := float32(4)
				if v.Byte(hmOff+l+16)&m != 0 {
					hbit = 0
				}
				q := (v.Byte(qBase+l+16) >> shift) & 3
				out[oi] = dl * (float32(q) - hbit)
				oi++
			}
			shift += 2
			m <<= 1
		}
		qBase += 32
	}
}

// --- Q4_K: f16 d || f16 dmin || 12 B packed 6-bit (scale,min)x8 || 128 B nibbles.

const blockBytesQ4_K = 2 + 2 + 12 + blockK/2 // 144

// scaleMinK4 unpacks the j-th (0..7) 6-bit scale and min from the
// 12-byte packed array (8 scales + 8 mins interleaved two-per-byte-pair).
func scaleMinK4(j int, q [12]byte) (sc, m uint8) {
	if j < 4 {
		sc = q[j] & 63
		m = q[j+4] & 63
	} else {
		sc = (q[j+4] & 0x0F) | ((q[j-4] >> 6) << 4)
		m = (q[j+4] >> 4) | ((q[j] >> 6) << 4)
	}
	return
}

func dequantBlockQ4_K(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ4_K
	d := f16ToF32(v.U16(base))
	dmin := f16ToF32(v.U16(base + 2))
	var scales [12]byte
	for i := range scales {
		scales[i] = v.Byte(base + 4 + i)
	}
	qOff := base + 4 + 12

	is, oi := 0, 0
	for j := 0; j < 4; j++ {
		sc1, m1 := scaleMinK4(is, scales)
		sc2, m2 := scaleMinK4(is+1, scales)
		d1, mm1 := d*float32(sc1), dmin*float32(m1)
		d2, mm2 := d*float32(sc2), dmin*float32(m2)
		qBase := qOff + j*32
		for l := 0; l < 32; l++ {
			b := v.Byte(qBase + l)
			out[oi] = d1*float32(b&0x0F) - mm1
			oi++
		}
		for l := 0; l < 32; l++ {
			b := v.Byte(qBase + l)
			out[oi] = d2*float32(b>>4) - mm2
			oi++
		}
		is += 2
	}
}

// --- Q5_K: Q4_K plus a 32 B high-bit mask.

const blockBytesQ5_K = 2 + 2 + 12 + blockK/8 + blockK/2 // 176

func dequantBlockQ5_K(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ5_K
	d := f16ToF32(v.U16(base))
	dmin := f16ToF32(v.U16(base + 2))
	var scales [12]byte
	for i := range scales {
		scales[i] = v.Byte(base + 4 + i)
	}
	qhOff := base + 4 + 12
	qOff := qhOff + 32

	is, oi := 0, 0
	u1, u2 := uint8(1), uint8(2)
	for j := 0; j < 4; j++ {
		sc1, m1 := scaleMinK4(is, scales)
		sc2, m2 := scaleMinK4(is+1, scales)
		d1, mm1 := d*float32(sc1), dmin*float32(m1)
		d2, mm2 := d*float32(sc2), dmin*float32(m2)
		qBase := qOff + j*32
		for l := 0; l < 32; l++ {
			qb := v.Byte(qBase + l)
			qh := v.Byte(qhOff + l)
			hi := float32(0)
			if qh&u1 != 0 {
				hi = 16
			}
			out[oi] = d1*(float32(qb&0x0F)+hi) - mm1
			oi++
		}
		for l := 0; l < 32; l++ {
			qb := v.Byte(qBase + l)
			qh := v.Byte(qhOff + l)
			hi := float32(0)
			if qh&u2 != 0 {
				hi = 16
			}
			out[oi] = d2*(float32(qb>>4)+hi) - mm2
			oi++
		}
		is += 2
		u1 <<= 2
		u2 <<= 2
	}
}

// --- Q6_K: 128 B low-4-bit || 64 B high-2-bit || 16 i8 sub-scales || f16 d.

const blockBytesQ6_K = blockK/2 + blockK/4 + blockK/16 + 2 // 210

func dequantBlockQ6_K(v gguf.View, block int, out []float32) {
	base := block * blockBytesQ6_K
	qlOff := base
	qhOff := qlOff + 128
	scOff := qhOff + 64
	d := f16ToF32(v.U16(scOff + 16))

	for n := 0; n < 2; n++ {
		qlBase := qlOff + n*64
		qhBase := qhOff + n*32
		scBase := scOff + n*8
		outBase := n * 128
		for l := 0; l < 32; l++ {
			is := l / 16
			qh := v.Byte(qhBase + l)
			ql0 := v.Byte(qlBase + l)
			ql32 := v.Byte(qlBase + l + 32)
			sc0 := int8(v.Byte(scBase + is))
			sc2 := int8(v.Byte(scBase + is + 2))
			sc4 := int8(v.Byte(scBase + is + 4))
			sc6 := int8(v.Byte(scBase + is + 6))

			q1 := int32(ql0&0x0F) | int32(qh>>0&3)<<4
			q2 := int32(ql32&0x0F) | int32(qh>>2&3)<<4
			q3 := int32(ql0>>4) | int32(qh>>4&3)<<4
			q4 := int32(ql32>>4) | int32(qh>>6&3)<<4

			out[outBase+l] = d * float32(sc0) * float32(q1-32)
			out[outBase+l+32] = d * float32(sc2) * float32(q2-32)
			out[outBase+l+64] = d * float32(sc4) * float32(q3-32)
			out[outBase+l+96] = d * float32(sc6) * float32(q4-32)
		}
	}
}
