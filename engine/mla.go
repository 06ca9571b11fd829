package engine

import (
	"github.com/DenzoSOFTHub/gguf-infer/attention"
	"github.com/DenzoSOFTHub/gguf-infer/kvcache"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/rope"
	"github.com/DenzoSOFTHub/gguf-infer/transformer"
)

// MLAState is the InferenceState (spec §3) for Multi-head Latent
// Attention (DeepSeek2). Per-layer FFN dispatches to dense or MoE from
// tensor presence, handling DeepSeek2's dense-prefix/MoE hybrid layout
// (leading_dense_block_count) without any extra state here.
type MLAState struct {
	X, Xb           []float32
	Q, CKV, KVDecomp, Xb2 []float32
	Att             []float32
	Normed, AttnOut []float32
	FFNOut          []float32
	Logits          []float32
	Cache           *kvcache.MLA
	Pos             int

	ops []mlaLayerOps
}

type mlaLayerOps struct {
	variant transformer.Variant
	ffn     transformer.FFNFn
	params  attention.MLAParams
}

// NewMLAState builds the InferenceState for the MLA engine variant.
func NewMLAState(w *model.Weights, maxSeqLen, workers int) *MLAState {
	cfg := w.Config
	dim := int(cfg.EmbeddingLength)
	headCount := int(cfg.HeadCount)
	keyLen := int(cfg.HeadDimK)
	valueLen := int(cfg.HeadDimV)
	loraRank := int(cfg.MLAKVLoraRank)
	ropeDim := int(cfg.MLARopeHeadDim)
	if ropeDim == 0 {
		ropeDim = int(cfg.RopeDimCount)
	}
	nope := keyLen - ropeDim

	s := &MLAState{
		X:        make([]float32, dim),
		Xb:       make([]float32, dim),
		Q:        make([]float32, headCount*keyLen),
		CKV:      make([]float32, loraRank+ropeDim),
		KVDecomp: make([]float32, headCount*(nope+valueLen)),
		Xb2:      make([]float32, headCount*valueLen),
		Att:      make([]float32, headCount*maxSeqLen),
		Normed:   make([]float32, dim),
		AttnOut:  make([]float32, dim),
		FFNOut:   make([]float32, dim),
		Logits:   make([]float32, cfg.VocabSize),
		Cache:    kvcache.NewMLA(int(cfg.BlockCount), maxSeqLen, headCount, keyLen, valueLen),
		ops:      make([]mlaLayerOps, len(w.Layers)),
	}

	olmo2 := cfg.PostNormOnly()
	for i := range w.Layers {
		lw := &w.Layers[i]
		s.ops[i] = mlaLayerOps{
			variant: transformer.VariantFor(lw, olmo2),
			ffn:     ffnFnFor(lw, cfg, workers),
			params: attention.MLAParams{
				HeadCount: headCount,
				KeyLen:    keyLen,
				ValueLen:  valueLen,
				LoraRank:  loraRank,
				RopeDim:   ropeDim,
				Layer:     i,
				Workers:   workers,
			},
		}
	}
	return s
}

// MLAEngine drives the MLA forward pass (DeepSeek2).
type MLAEngine struct {
	Weights *model.Weights
	Table   *rope.Table
	Workers int
}

// Forward runs spec §4.9 for one token at position pos using MLA
// attention, returning a view into state.Logits.
func (e *MLAEngine) Forward(state *MLAState, token, pos int) []float32 {
	cfg := e.Weights.Config
	dim := int(cfg.EmbeddingLength)
	mscale := e.Table.GetMScale()

	embedLookup(state.X, &e.Weights.Global, token, dim, cfg.EmbeddingScale)
	state.Pos = pos

	for i := range e.Weights.Layers {
		lw := &e.Weights.Layers[i]
		ops := &state.ops[i]
		attnFn := func(in, out []float32, pos int) {
			attention.MLA(&lw.Attn, in, state.Q, state.CKV, state.KVDecomp, state.Xb2, out, state.Att,
				state.Cache, pos, ops.params, e.Table, mscale)
		}
		transformer.Block(state.X, lw, ops.variant, cfg.RMSNormEps, attnFn, ops.ffn,
			transformer.Scratch{Normed: state.Normed, AttnOut: state.AttnOut, FFNOut: state.FFNOut}, pos)
	}

	finalProjection(&e.Weights.Global, state.X, state.Xb, state.Logits, cfg, e.Workers)
	return state.Logits
}
