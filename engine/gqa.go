package engine

import (
	"github.com/DenzoSOFTHub/gguf-infer/attention"
	"github.com/DenzoSOFTHub/gguf-infer/kvcache"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/rope"
	"github.com/DenzoSOFTHub/gguf-infer/transformer"
)

// GQAState is the InferenceState (spec §3) for the GQA attention
// pipeline. A single State serves both the Standard engine (every layer
// dense) and the GQA+MoE engine (some or all layers MoE, per
// leading_dense_block_count) — the per-layer FFN closure already
// dispatches to dense or MoE, so the state and forward loop need no
// variant switch of their own.
type GQAState struct {
	X, Xb, Xb2      []float32
	Q, K, V, Att    []float32
	Normed, AttnOut []float32
	FFNOut          []float32
	Logits          []float32
	Cache           *kvcache.Standard
	Pos             int

	ops []layerOps
}

type layerOps struct {
	variant transformer.Variant
	ffn     transformer.FFNFn
	params  attention.StandardParams
}

// NewStandardState builds the InferenceState for the Standard engine
// variant (spec §4.9): every layer uses dense SwiGLU/GeGLU FFN.
func NewStandardState(w *model.Weights, maxSeqLen, workers int) *GQAState {
	return newGQAState(w, maxSeqLen, workers)
}

// NewGQAMoEState builds the InferenceState for the GQA+MoE engine
// variant (spec §4.9): layers may be dense or MoE per tensor presence,
// matching architectures such as Qwen3-MoE and GPT-OSS.
func NewGQAMoEState(w *model.Weights, maxSeqLen, workers int) *GQAState {
	return newGQAState(w, maxSeqLen, workers)
}

func newGQAState(w *model.Weights, maxSeqLen, workers int) *GQAState {
	cfg := w.Config
	dim := int(cfg.EmbeddingLength)
	headSize := int(cfg.HeadDimK)
	headCount := int(cfg.HeadCount)
	headCountKV := int(cfg.HeadCountKV)
	kvDim := headCountKV * headSize
	qDim := headCount * headSize

	s := &GQAState{
		X:       make([]float32, dim),
		Xb:      make([]float32, dim),
		Xb2:     make([]float32, qDim),
		Q:       make([]float32, qDim),
		K:       make([]float32, kvDim),
		V:       make([]float32, kvDim),
		Att:     make([]float32, headCount*maxSeqLen),
		Normed:  make([]float32, dim),
		AttnOut: make([]float32, dim),
		FFNOut:  make([]float32, dim),
		Logits:  make([]float32, cfg.VocabSize),
		Cache:   kvcache.NewStandard(int(cfg.BlockCount), maxSeqLen, kvDim),
		ops:     make([]layerOps, len(w.Layers)),
	}

	olmo2 := cfg.PostNormOnly()
	for i := range w.Layers {
		lw := &w.Layers[i]
		s.ops[i] = layerOps{
			variant: transformer.VariantFor(lw, olmo2),
			ffn:     ffnFnFor(lw, cfg, workers),
			params: attention.StandardParams{
				HeadCount:   headCount,
				HeadCountKV: headCountKV,
				HeadSize:    headSize,
				Layer:       i,
				Workers:     workers,
			},
		}
	}
	return s
}

// GQAEngine drives the Standard and GQA+MoE forward passes. Weights are
// shared-immutable across all States; Forward must not be called
// concurrently on the same State.
type GQAEngine struct {
	Weights *model.Weights
	Table   *rope.Table
	Workers int
}

// Forward runs spec §4.9 for one token at position pos, returning a
// view into state.Logits.
func (e *GQAEngine) Forward(state *GQAState, token, pos int) []float32 {
	cfg := e.Weights.Config
	dim := int(cfg.EmbeddingLength)

	embedLookup(state.X, &e.Weights.Global, token, dim, cfg.EmbeddingScale)
	state.Pos = pos

	for i := range e.Weights.Layers {
		lw := &e.Weights.Layers[i]
		ops := &state.ops[i]
		attnFn := func(in, out []float32, pos int) {
			attention.Standard(&lw.Attn, in, state.Q, state.K, state.V, state.Att, state.Xb2, out,
				state.Cache, pos, ops.params, e.Table)
		}
		transformer.Block(state.X, lw, ops.variant, cfg.RMSNormEps, attnFn, ops.ffn,
			transformer.Scratch{Normed: state.Normed, AttnOut: state.AttnOut, FFNOut: state.FFNOut}, pos)
	}

	finalProjection(&e.Weights.Global, state.X, state.Xb, state.Logits, cfg, e.Workers)
	return state.Logits
}
