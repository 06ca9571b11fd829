package quant

import (
	bfloat16 "github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// f16ToF32 decodes an IEEE-754 half-precision scale/element value.
func f16ToF32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}

// bf16ToF32 decodes a bfloat16 element value.
func bf16ToF32(bits uint16) float32 {
	b := []byte{byte(bits), byte(bits >> 8)}
	out := bfloat16.Decode(b)
	if len(out) == 0 {
		return 0
	}
	return out[0]
}
