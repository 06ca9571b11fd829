// Package engine drives the per-token forward pass (C9): embedding
// lookup, per-layer transformer blocks, final norm, output projection,
// logit scaling and soft-cap. Standard and GQA+MoE share the GQA
// attention pipeline (gqa.go) — they differ only in which layers carry
// an MoE FFN, which is resolved per layer from tensor presence rather
// than from the engine variant. MLA (mla.go) is a separate pipeline.
package engine

import (
	"math"

	"github.com/DenzoSOFTHub/gguf-infer/ffn"
	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
	"github.com/DenzoSOFTHub/gguf-infer/transformer"
)

// embedLookup copies token's embedding row into x (spec §4.9 step 1),
// scaling by sqrt(dim) for Gemma-family architectures.
func embedLookup(x []float32, g *model.GlobalWeights, token, dim int, embeddingScale float32) {
	base := token * dim
	for i := 0; i < dim; i++ {
		x[i] = g.TokenEmbd.Get(base + i)
	}
	if embeddingScale != 0 {
		kernel.Scale(x, 0, dim, embeddingScale)
	}
}

// finalProjection runs spec §4.9 steps 3-6: output norm, output
// projection (or tied embedding), optional Command-R logit scaling,
// optional Gemma2/3 soft-cap.
func finalProjection(g *model.GlobalWeights, xb, xbNormed, logits []float32, cfg *model.Config, workers int) {
	outNormW := materializeTensor(&g.OutputNorm, len(xb))
	kernel.RMSNorm(xbNormed, xb, outNormW, len(xb), cfg.RMSNormEps)

	g.Output.MatMulParallel(xbNormed, logits, int(cfg.VocabSize), len(xb), workers)

	if cfg.LogitScale != 0 {
		kernel.Scale(logits, 0, len(logits), cfg.LogitScale)
	}
	if cfg.FinalLogitSoftCap != 0 {
		cap := cfg.FinalLogitSoftCap
		for i := range logits {
			logits[i] = cap * float32(math.Tanh(float64(logits[i]/cap)))
		}
	}
}

func materializeTensor(t *quant.FloatTensor, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = t.Get(i)
	}
	return out
}

func ffnFnFor(lw *model.LayerWeights, cfg *model.Config, workers int) transformer.FFNFn {
	fw := &lw.FFN
	if fw.Kind == model.FFNMoE {
		p := ffn.MoEParams{
			ExpertCount: int(cfg.ExpertCount),
			ExpertUsed:  int(cfg.ExpertUsedCount),
			NormTopK:    cfg.NormTopKProb,
			FFNDim:      int(cfg.ExpertFFNLength),
			EmbedDim:    int(cfg.EmbeddingLength),
			Workers:     workers,
		}
		return func(in, out []float32) { ffn.MoE(fw, in, out, p) }
	}
	ffnDim := int(cfg.IntermediateSize)
	hb := make([]float32, ffnDim)
	hb2 := make([]float32, ffnDim)
	geglu := cfg.GeGLU()
	return func(in, out []float32) { ffn.Dense(fw, in, hb, hb2, out, ffnDim, geglu, workers) }
}
