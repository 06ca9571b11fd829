// Package model resolves a decoded GGUF file (C1) into the typed
// configuration and per-layer weight handles (C4) that the rest of the
// engine (rope/attention/ffn/transformer/engine) consumes. Unlike the
// teacher, which dispatches to one Go type per architecture, this
// package is architecture-generic: the four transformer block variants,
// GQA vs. MLA attention, and dense vs. MoE FFN are all detected from
// tensor presence and metadata, not from a per-architecture switch.
package model

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
)

// Config is the parsed, typed form of a GGUF file's metadata table: the
// scalar hyperparameters every downstream component (rope, attention,
// ffn, transformer, engine) needs, plus the architecture-dependent
// behavior flags the spec ties to tensor/metadata presence rather than
// to a named architecture.
type Config struct {
	Architecture string
	Name         string

	BlockCount      uint64
	EmbeddingLength uint64
	ContextLength   uint64
	VocabSize       uint64

	HeadCount   uint64
	HeadCountKV uint64
	HeadDimK    uint64
	HeadDimV    uint64

	IntermediateSize uint64 // dense FFN width ({arch}.feed_forward_length)

	RopeDimCount    uint64
	RopeFreqBase    float32
	RopeFreqScale   float32
	RopeNeox        bool
	RopeScalingFactor float32
	YarnOrigCtx     uint64
	YarnExtFactor   float32
	YarnAttnFac     float32
	YarnBetaFast    float32
	YarnBetaSlow    float32
	YarnLogMul      float32

	RMSNormEps float32

	ExpertCount       uint64
	ExpertUsedCount   uint64
	ExpertSharedCount uint64
	ExpertFFNLength   uint64 // per-expert intermediate size, if distinct from IntermediateSize
	NormTopKProb      bool
	LeadingDenseBlockCount uint64 // dense-prefix/MoE hybrids (DeepSeek2): first N blocks are dense

	EmbeddingScale  float32 // sqrt(EmbeddingLength) for Gemma-style input scaling; 0 disables
	LogitScale      float32 // Command-R-style final logit scaling; 0 disables
	AttnLogitSoftCap float32
	FinalLogitSoftCap float32

	MLAKVLoraRank   uint64
	MLAQLoraRank    uint64
	MLARopeHeadDim  uint64

	Alignment uint64
}

// NewConfig builds a Config from a decoded GGUF metadata table.
func NewConfig(kv gguf.KV) (*Config, error) {
	arch := kv.Architecture()
	if arch == "unknown" {
		return nil, fmt.Errorf("model: %w: missing general.architecture", ErrUnsupportedArchitecture)
	}

	c := &Config{
		Architecture:    arch,
		Name:            kv.Name(),
		BlockCount:      kv.BlockCount(),
		EmbeddingLength: kv.EmbeddingLength(),
		ContextLength:   kv.ContextLength(),
		VocabSize:       uint64(kv.Uint("vocab_size", uint32(len(kv.Strings("tokenizer.ggml.tokens"))))),
		HeadCount:       kv.HeadCount(),
		HeadCountKV:     kv.HeadCountKV(),
		HeadDimK:        kv.EmbeddingHeadCountK(),
		HeadDimV:        kv.EmbeddingHeadCountV(),
		IntermediateSize: uint64(kv.Uint("feed_forward_length")),
		RopeDimCount:    kv.RopeDimensionCount(),
		RopeFreqBase:    kv.RopeFreqBase(),
		RopeFreqScale:   kv.Float("rope.freq_scale", 1.0),
		RopeNeox:        ropeIsNeox(arch),
		RopeScalingFactor: kv.Float("rope.scaling.factor", 1.0),
		YarnOrigCtx:     uint64(kv.Uint("rope.scaling.original_context_length")),
		YarnExtFactor:   kv.Float("rope.scaling.extrapolation_factor", 1.0),
		YarnAttnFac:     kv.Float("rope.scaling.attn_factor", 0),
		YarnBetaFast:    kv.Float("rope.scaling.beta_fast", 32.0),
		YarnBetaSlow:    kv.Float("rope.scaling.beta_slow", 1.0),
		YarnLogMul:      kv.Float("rope.scaling.yarn_log_multiplier", 0.1),
		RMSNormEps:      kv.RMSNormEps(),
		ExpertCount:     uint64(kv.Uint("expert_count")),
		ExpertUsedCount: uint64(kv.Uint("expert_used_count")),
		ExpertSharedCount: uint64(kv.Uint("expert_shared_count")),
		ExpertFFNLength: uint64(kv.Uint("expert_feed_forward_length")),
		NormTopKProb:    kv.Bool("expert_weights_norm", normTopKProbDefault(arch)),
		LeadingDenseBlockCount: uint64(kv.Uint("leading_dense_block_count")),
		LogitScale:      kv.Float("logit_scale", 0),
		AttnLogitSoftCap: kv.Float("attn_logit_softcapping", 0),
		FinalLogitSoftCap: kv.Float("final_logit_softcapping", 0),
		MLAKVLoraRank:   uint64(kv.Uint("attention.kv_lora_rank")),
		MLAQLoraRank:    uint64(kv.Uint("attention.q_lora_rank")),
		MLARopeHeadDim:  uint64(kv.Uint("attention.rope_dimension_count_rope")),
		Alignment:       uint64(kv.Uint("general.alignment", 32)),
	}

	if c.ExpertFFNLength == 0 {
		c.ExpertFFNLength = c.IntermediateSize
	}

	if _, ok := kv[arch+".expert_weights_norm"]; !ok && c.ExpertCount > 0 {
		slog.Warn("model: expert_weights_norm absent, using architecture default",
			"architecture", arch, "norm_topk_prob", c.NormTopKProb)
	}

	if gemmaScalesEmbeddings(arch) {
		c.EmbeddingScale = sqrtf(float32(c.EmbeddingLength))
	}

	if c.HeadCount == 0 || c.BlockCount == 0 || c.EmbeddingLength == 0 {
		return nil, fmt.Errorf("model: %w: missing core hyperparameters", ErrMissingRequiredTensor)
	}
	return c, nil
}

// ropeIsNeox reports whether rotary embeddings use the NEOX (split-half
// pair) layout instead of the NORMAL (adjacent-pair) layout. Per the
// GGUF convention this is architecture-determined, not a tensor flag.
func ropeIsNeox(arch string) bool {
	switch arch {
	case "llama", "llama4", "mistral3":
		return false
	default:
		return true
	}
}

// normTopKProbDefault resolves the spec's MoE Open Question:
// DeepSeek-V2 does not renormalize top-K router weights; DeepSeek-V3
// and every other MoE architecture this engine supports does.
func normTopKProbDefault(arch string) bool {
	return arch != "deepseek2"
}

func gemmaScalesEmbeddings(arch string) bool {
	return arch == "gemma2" || arch == "gemma3"
}

// PostNormOnly reports whether this architecture applies attn_norm/
// ffn_norm to each sublayer's output rather than its input (OLMo2) —
// the one spec §4.8 block variant tensor presence alone can't resolve.
func (c *Config) PostNormOnly() bool {
	return c.Architecture == "olmo2"
}

// GeGLU reports whether this architecture's dense FFN uses the
// GELU-tanh activation (Gemma2/Gemma3) instead of SiLU.
func (c *Config) GeGLU() bool {
	return gemmaScalesEmbeddings(c.Architecture)
}

// RopeNeoxLayout reports whether RoPE uses the NEOX (split-half) layout.
func (c *Config) RopeNeoxLayout() bool {
	return c.RopeNeox
}

func sqrtf(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}
