// Package ffn implements the dense SwiGLU/GeGLU and mixture-of-experts
// feed-forward modules of spec §4.7.
package ffn

import (
	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/model"
)

// Dense runs one SwiGLU/GeGLU FFN step. xbIn is the pre-normalized
// layer input; xbOut receives the down-projection (length dim). hb and
// hb2 are caller-owned scratch of at least ffnDim elements each, used
// for the separate-projection path; the packed path allocates its own
// 2*ffnDim scratch since a single matmul must produce both halves.
// geglu selects the GELU-tanh activation (Gemma2/Gemma3); all other
// architectures use SiLU.
func Dense(w *model.FFNWeights, xbIn, hb, hb2, xbOut []float32, ffnDim int, geglu bool, workers int) {
	var gate, up []float32
	if w.WUpPacked != nil {
		packed := make([]float32, 2*ffnDim)
		w.WUpPacked.MatMulParallel(xbIn, packed, 2*ffnDim, len(xbIn), workers)
		gate, up = packed[:ffnDim], packed[ffnDim:]
	} else {
		gate, up = hb[:ffnDim], hb2[:ffnDim]
		w.WGate.MatMulParallel(xbIn, gate, ffnDim, len(xbIn), workers)
		w.WUp.MatMulParallel(xbIn, up, ffnDim, len(xbIn), workers)
	}

	if geglu {
		kernel.GELUTanh(gate, ffnDim)
	} else {
		kernel.SiLU(gate, ffnDim)
	}
	kernel.ElementwiseMul(gate, up, gate, ffnDim)

	w.WDown.MatMulParallel(gate, xbOut, len(xbOut), ffnDim, workers)
}
