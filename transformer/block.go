// Package transformer composes one transformer block (C8): norm,
// attention, residual, norm, FFN, residual, in the four layouts spec
// §4.8 describes. Attention and FFN are injected as closures so this
// package stays oblivious to GQA vs. MLA and dense vs. MoE.
package transformer

import (
	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
)

// Variant selects which of the four block layouts spec §4.8 describes
// applies to a given layer.
type Variant int

const (
	// PreNorm: norm -> attn -> residual; norm -> ffn -> residual.
	PreNorm Variant = iota
	// PrePostNorm (GLM4, Gemma2/3): an extra norm is applied to each
	// sublayer's output before it joins the residual stream.
	PrePostNorm
	// PostNormOnly (OLMo2): attention/FFN consume x directly; attn_norm/
	// ffn_norm normalize their output, not their input.
	PostNormOnly
	// ParallelFFN (Command-R): single pre-norm feeds both attention and
	// FFN; their outputs are summed into the residual with no ffn_norm.
	ParallelFFN
)

// VariantFor derives the block layout from tensor presence, per spec
// §4.8 ("no runtime flag is required beyond that"), with one exception:
// post-norm-only (OLMo2) cannot be distinguished from plain pre-norm by
// tensor presence alone (both carry only attn_norm/ffn_norm with no
// post_* tensors) — olmo2Style threads that one architecture-level bit.
func VariantFor(lw *model.LayerWeights, olmo2Style bool) Variant {
	switch {
	case lw.FFNNorm == nil:
		return ParallelFFN
	case lw.PostAttnNorm != nil && lw.PostFFNNorm != nil:
		return PrePostNorm
	case olmo2Style:
		return PostNormOnly
	default:
		return PreNorm
	}
}

// AttnFn runs one attention step, reading the (already normalized, or
// raw for PostNormOnly) input and writing the output projection.
type AttnFn func(in, out []float32, pos int)

// FFNFn runs one FFN step analogously.
type FFNFn func(in, out []float32)

// Scratch holds the buffers Block needs beyond the resident x; all are
// length dim (the embedding width) and owned by the caller's InferenceState.
type Scratch struct {
	Normed, AttnOut, FFNOut []float32
}

// Block runs one transformer layer in place on x (length dim), per the
// Variant's layout.
func Block(x []float32, lw *model.LayerWeights, variant Variant, rmsEps float32, attn AttnFn, ffn FFNFn, s Scratch, pos int) {
	dim := len(x)
	attnNormW := materialize(&lw.AttnNorm, dim)

	switch variant {
	case ParallelFFN:
		kernel.RMSNorm(s.Normed, x, attnNormW, dim, rmsEps)
		attn(s.Normed, s.AttnOut, pos)
		ffn(s.Normed, s.FFNOut)
		kernel.Accumulate(x, s.AttnOut, dim)
		kernel.Accumulate(x, s.FFNOut, dim)

	case PreNorm:
		kernel.RMSNorm(s.Normed, x, attnNormW, dim, rmsEps)
		attn(s.Normed, s.AttnOut, pos)
		kernel.Accumulate(x, s.AttnOut, dim)

		ffnNormW := materialize(lw.FFNNorm, dim)
		kernel.RMSNorm(s.Normed, x, ffnNormW, dim, rmsEps)
		ffn(s.Normed, s.FFNOut)
		kernel.Accumulate(x, s.FFNOut, dim)

	case PrePostNorm:
		kernel.RMSNorm(s.Normed, x, attnNormW, dim, rmsEps)
		attn(s.Normed, s.AttnOut, pos)
		postAttnW := materialize(lw.PostAttnNorm, dim)
		kernel.RMSNorm(s.AttnOut, s.AttnOut, postAttnW, dim, rmsEps)
		kernel.Accumulate(x, s.AttnOut, dim)

		ffnNormW := materialize(lw.FFNNorm, dim)
		kernel.RMSNorm(s.Normed, x, ffnNormW, dim, rmsEps)
		ffn(s.Normed, s.FFNOut)
		postFFNW := materialize(lw.PostFFNNorm, dim)
		kernel.RMSNorm(s.FFNOut, s.FFNOut, postFFNW, dim, rmsEps)
		kernel.Accumulate(x, s.FFNOut, dim)

	case PostNormOnly:
		attn(x, s.AttnOut, pos)
		kernel.RMSNorm(s.AttnOut, s.AttnOut, attnNormW, dim, rmsEps)
		kernel.Accumulate(x, s.AttnOut, dim)

		ffn(x, s.FFNOut)
		ffnNormW := materialize(lw.FFNNorm, dim)
		kernel.RMSNorm(s.FFNOut, s.FFNOut, ffnNormW, dim, rmsEps)
		kernel.Accumulate(x, s.FFNOut, dim)
	}
}

func materialize(t *quant.FloatTensor, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = t.Get(i)
	}
	return out
}
