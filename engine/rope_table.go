package engine

import (
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/rope"
)

// BuildRopeTable precomputes the RoPE/YaRN table for cfg. dimCount is
// the number of dimensions actually rotated — cfg.RopeDimCount for
// Standard/GQA+MoE, cfg.MLARopeHeadDim (R) for MLA, since MLA rotates
// only the shared latent "rope" suffix, not the full head.
func BuildRopeTable(cfg *model.Config, dimCount, maxSeqLen int) *rope.Table {
	layout := rope.Normal
	if cfg.RopeNeoxLayout() {
		layout = rope.Neox
	}
	return rope.Precompute(rope.Params{
		DimCount:      dimCount,
		FreqBase:      cfg.RopeFreqBase,
		FreqScale:     cfg.RopeFreqScale,
		Layout:        layout,
		ScalingFactor: cfg.RopeScalingFactor,
		OrigCtx:       int(cfg.YarnOrigCtx),
		AttnFactorCfg: cfg.YarnAttnFac,
		BetaFast:      cfg.YarnBetaFast,
		BetaSlow:      cfg.YarnBetaSlow,
		YarnLogMul:    cfg.YarnLogMul,
	}, maxSeqLen)
}
