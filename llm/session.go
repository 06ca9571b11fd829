package llm

import (
	"github.com/DenzoSOFTHub/gguf-infer/engine"
	"github.com/DenzoSOFTHub/gguf-infer/model"
)

// session pairs one InferenceState with the forward closure for
// whichever engine variant (Standard, GQA+MoE, or MLA) the loaded
// model requires; the facade and convcache never need to know which.
type session struct {
	forward func(token, pos int) []float32
	peekXb  func() []float32
}

// newSession builds the forward/peek closures for w, selecting MLA when
// layer 0's attention kind is model.AttnMLA (only layer 0 is checked;
// DeepSeek2 uses MLA on every layer) and the shared GQA pipeline
// otherwise — Standard and GQA+MoE are the same pipeline per the engine
// package doc in engine/common.go.
func newSession(w *model.Weights, maxSeqLen, workers int) *session {
	cfg := w.Config
	if len(w.Layers) > 0 && w.Layers[0].Attn.Kind == model.AttnMLA {
		ropeDim := int(cfg.MLARopeHeadDim)
		if ropeDim == 0 {
			ropeDim = int(cfg.RopeDimCount)
		}
		table := engine.BuildRopeTable(cfg, ropeDim, maxSeqLen)
		st := engine.NewMLAState(w, maxSeqLen, workers)
		eng := &engine.MLAEngine{Weights: w, Table: table, Workers: workers}
		return &session{
			forward: func(token, pos int) []float32 { return eng.Forward(st, token, pos) },
			peekXb:  func() []float32 { return st.Xb },
		}
	}

	table := engine.BuildRopeTable(cfg, int(cfg.RopeDimCount), maxSeqLen)
	st := engine.NewGQAMoEState(w, maxSeqLen, workers)
	eng := &engine.GQAEngine{Weights: w, Table: table, Workers: workers}
	return &session{
		forward: func(token, pos int) []float32 { return eng.Forward(st, token, pos) },
		peekXb:  func() []float32 { return st.Xb },
	}
}
