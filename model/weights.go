package model

import (
	"fmt"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
)

// AttnKind selects which attention algebra (C6) a layer uses.
type AttnKind int

const (
	AttnStandard AttnKind = iota
	AttnMLA
)

// FFNKind selects dense vs. mixture-of-experts FFN (C7).
type FFNKind int

const (
	FFNDense FFNKind = iota
	FFNMoE
)

// AttentionWeights is the per-layer attention tensor record of spec §3.
// Kind determines which fields are populated.
type AttentionWeights struct {
	Kind AttnKind

	// Standard GQA. WQKV, when non-nil, is a single merged projection
	// producing q_dim+2*kv_dim values and takes precedence over WQ/WK/WV.
	WQ, WK, WV, WO     *quant.FloatTensor
	WQKV               *quant.FloatTensor
	QBias, KBias, VBias *quant.FloatTensor
	QNorm, KNorm       *quant.FloatTensor

	// MLA (DeepSeek2).
	WQ2     *quant.FloatTensor // full-rank per-head query projection
	WKvA    *quant.FloatTensor // xb -> (c_latent ++ k_rope_raw)
	WKvB    *quant.FloatTensor // c_latent_n -> per-head (nope ++ v)
	KvANorm *quant.FloatTensor
	WOut    *quant.FloatTensor // MLA output projection (named separately from WO to keep the two algebras visually distinct)
}

// FFNWeights is the per-layer FFN tensor record of spec §3.
type FFNWeights struct {
	Kind FFNKind

	// Dense. Either {WGate,WUp} are both set (separate projections) or
	// WUpPacked alone is set (one matmul, first half gate / second half up).
	WGate, WUp, WDown *quant.FloatTensor
	WUpPacked         *quant.FloatTensor

	// MoE. Expert tensors are 3D, packed along the expert axis.
	RouterGateInp                   *quant.FloatTensor
	ExpertGate, ExpertUp, ExpertDown *quant.FloatTensor
	SharedGate, SharedUp, SharedDown *quant.FloatTensor
}

// LayerWeights is one transformer block's resolved tensor handles. A nil
// FFNNorm signals the parallel-FFN block variant (Command-R, §4.8); nil
// PostAttnNorm/PostFFNNorm signal the plain pre-norm variant.
type LayerWeights struct {
	AttnNorm     quant.FloatTensor
	PostAttnNorm *quant.FloatTensor
	FFNNorm      *quant.FloatTensor
	PostFFNNorm  *quant.FloatTensor

	Attn AttentionWeights
	FFN  FFNWeights
}

// GlobalWeights are the tensors shared across all layers.
type GlobalWeights struct {
	TokenEmbd        quant.FloatTensor
	OutputNorm       quant.FloatTensor
	Output           quant.FloatTensor
	OutputTiedToEmbd bool
}

// Weights is the fully-resolved weight directory (C4) for one loaded
// model: the typed Config plus every layer's and global tensor handle.
// Immutable for the engine's lifetime; shared across InferenceStates.
type Weights struct {
	Config *Config
	Global GlobalWeights
	Layers []LayerWeights
}

// Load resolves f's tensor directory into Weights for cfg's architecture,
// per the canonical naming of spec §6. Every tensor required by the
// detected attention/FFN kind must be present; its absence is a
// MissingTensorError identifying the logical slot.
func Load(f *gguf.File, cfg *Config) (*Weights, error) {
	layerGroups := f.Tensors.GroupLayers()

	w := &Weights{Config: cfg}

	embd, err := required(f, layerGroups["token_embd"]["weight"], "token_embd.weight")
	if err != nil {
		return nil, err
	}
	w.Global.TokenEmbd = embd

	outNorm, err := required(f, layerGroups["output_norm"]["weight"], "output_norm.weight")
	if err != nil {
		return nil, err
	}
	w.Global.OutputNorm = outNorm

	if out, ok := optional(f, layerGroups["output"]["weight"], "output.weight"); ok {
		w.Global.Output = *out
	} else {
		w.Global.Output = embd
		w.Global.OutputTiedToEmbd = true
	}

	w.Layers = make([]LayerWeights, cfg.BlockCount)
	for i := range w.Layers {
		group := layerGroups[fmt.Sprintf("blk.%d", i)]
		lw, err := loadLayer(f, group, i)
		if err != nil {
			return nil, err
		}
		w.Layers[i] = lw
	}
	return w, nil
}

func loadLayer(f *gguf.File, g gguf.Layer, idx int) (LayerWeights, error) {
	var lw LayerWeights

	attnNorm, err := required(f, g["attn_norm.weight"], fmt.Sprintf("blk.%d.attn_norm.weight", idx))
	if err != nil {
		return lw, err
	}
	lw.AttnNorm = attnNorm
	lw.PostAttnNorm, _ = optional(f, g["post_attention_norm.weight"], "")
	lw.FFNNorm, _ = optional(f, g["ffn_norm.weight"], "")
	lw.PostFFNNorm, _ = optional(f, g["post_ffn_norm.weight"], "")

	attn, err := loadAttention(f, g, idx)
	if err != nil {
		return lw, err
	}
	lw.Attn = attn

	ffn, err := loadFFN(f, g, idx)
	if err != nil {
		return lw, err
	}
	lw.FFN = ffn

	return lw, nil
}

func loadAttention(f *gguf.File, g gguf.Layer, idx int) (AttentionWeights, error) {
	var a AttentionWeights

	if _, isMLA := g["attn_kv_a_mqa.weight"]; isMLA {
		a.Kind = AttnMLA
		wq, err := required(f, g["attn_q.weight"], fmt.Sprintf("blk.%d.attn_q.weight", idx))
		if err != nil {
			return a, err
		}
		a.WQ2 = &wq
		wkvA, err := required(f, g["attn_kv_a_mqa.weight"], fmt.Sprintf("blk.%d.attn_kv_a_mqa.weight", idx))
		if err != nil {
			return a, err
		}
		a.WKvA = &wkvA
		wkvB, err := required(f, g["attn_kv_b.weight"], fmt.Sprintf("blk.%d.attn_kv_b.weight", idx))
		if err != nil {
			return a, err
		}
		a.WKvB = &wkvB
		kvANorm, err := required(f, g["attn_kv_a_norm.weight"], fmt.Sprintf("blk.%d.attn_kv_a_norm.weight", idx))
		if err != nil {
			return a, err
		}
		a.KvANorm = &kvANorm
		wo, err := required(f, g["attn_output.weight"], fmt.Sprintf("blk.%d.attn_output.weight", idx))
		if err != nil {
			return a, err
		}
		a.WOut = &wo
		return a, nil
	}

	a.Kind = AttnStandard
	if wqkv, ok := optional(f, g["attn_qkv.weight"], ""); ok {
		a.WQKV = wqkv
	} else {
		wq, err := required(f, g["attn_q.weight"], fmt.Sprintf("blk.%d.attn_q.weight", idx))
		if err != nil {
			return a, err
		}
		a.WQ = &wq
		wk, err := required(f, g["attn_k.weight"], fmt.Sprintf("blk.%d.attn_k.weight", idx))
		if err != nil {
			return a, err
		}
		a.WK = &wk
		wv, err := required(f, g["attn_v.weight"], fmt.Sprintf("blk.%d.attn_v.weight", idx))
		if err != nil {
			return a, err
		}
		a.WV = &wv
	}
	wo, err := required(f, g["attn_output.weight"], fmt.Sprintf("blk.%d.attn_output.weight", idx))
	if err != nil {
		return a, err
	}
	a.WO = &wo

	a.QBias, _ = optional(f, g["attn_q.bias"], "")
	a.KBias, _ = optional(f, g["attn_k.bias"], "")
	a.VBias, _ = optional(f, g["attn_v.bias"], "")
	a.QNorm, _ = optional(f, g["attn_q_norm.weight"], "")
	a.KNorm, _ = optional(f, g["attn_k_norm.weight"], "")
	return a, nil
}

func loadFFN(f *gguf.File, g gguf.Layer, idx int) (FFNWeights, error) {
	var ffn FFNWeights

	if _, isMoE := g["ffn_gate_inp.weight"]; isMoE {
		ffn.Kind = FFNMoE
		router, err := required(f, g["ffn_gate_inp.weight"], fmt.Sprintf("blk.%d.ffn_gate_inp.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.RouterGateInp = &router
		gate, err := required(f, g["ffn_gate_exps.weight"], fmt.Sprintf("blk.%d.ffn_gate_exps.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.ExpertGate = &gate
		up, err := required(f, g["ffn_up_exps.weight"], fmt.Sprintf("blk.%d.ffn_up_exps.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.ExpertUp = &up
		down, err := required(f, g["ffn_down_exps.weight"], fmt.Sprintf("blk.%d.ffn_down_exps.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.ExpertDown = &down

		ffn.SharedGate, _ = optional(f, g["ffn_gate_shexp.weight"], "")
		ffn.SharedUp, _ = optional(f, g["ffn_up_shexp.weight"], "")
		ffn.SharedDown, _ = optional(f, g["ffn_down_shexp.weight"], "")
		return ffn, nil
	}

	ffn.Kind = FFNDense
	down, err := required(f, g["ffn_down.weight"], fmt.Sprintf("blk.%d.ffn_down.weight", idx))
	if err != nil {
		return ffn, err
	}
	ffn.WDown = &down

	if gate, ok := optional(f, g["ffn_gate.weight"], ""); ok {
		ffn.WGate = gate
		up, err := required(f, g["ffn_up.weight"], fmt.Sprintf("blk.%d.ffn_up.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.WUp = &up
	} else {
		up, err := required(f, g["ffn_up.weight"], fmt.Sprintf("blk.%d.ffn_up.weight", idx))
		if err != nil {
			return ffn, err
		}
		ffn.WUpPacked = &up
	}
	return ffn, nil
}

func required(f *gguf.File, t *gguf.Tensor, slot string) (quant.FloatTensor, error) {
	if t == nil {
		return quant.FloatTensor{}, missingTensor(slot)
	}
	if !quant.Supported(t.Type()) {
		return quant.FloatTensor{}, fmt.Errorf("model: %w: %s has type %d", ErrUnsupportedQuantForPath, slot, t.Type())
	}
	ft, err := quant.NewFloatTensor(f, t)
	if err != nil {
		return quant.FloatTensor{}, fmt.Errorf("model: loading %s: %w", slot, err)
	}
	return ft, nil
}

func optional(f *gguf.File, t *gguf.Tensor, slot string) (*quant.FloatTensor, bool) {
	if t == nil {
		return nil, false
	}
	ft, err := required(f, t, slot)
	if err != nil {
		return nil, false
	}
	return &ft, true
}
