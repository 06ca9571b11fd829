// Package rope implements rotary positional embedding with YaRN
// NTK-by-parts scaling (C5). A Table is precomputed once per model load
// and applied per token per head; the engine never recomputes
// trigonometry on the hot path.
package rope

import "math"

// Layout selects which dimension pairs rotate together.
type Layout int

const (
	// Normal rotates adjacent pairs (v[2i], v[2i+1]).
	Normal Layout = iota
	// Neox rotates split-half pairs (v[i], v[dim/2+i]).
	Neox
)

// Params are the scalar inputs to table precomputation, taken from
// ModelConfig. FreqFactors, when non-nil, divides each pair's base
// frequency (Llama-3 long-RoPE); it must have length DimCount/2.
// ScalingFactor<=1 disables YaRN entirely (tables degrade to plain RoPE).
type Params struct {
	DimCount  int
	FreqBase  float32
	FreqScale float32 // rope.freq_scale; 1.0 when absent
	Layout    Layout

	FreqFactors []float32

	ScalingFactor float32 // rope.scaling.factor; <=1 disables YaRN
	OrigCtx       int     // rope.scaling.original_context_length
	AttnFactorCfg float32 // rope.scaling.attn_factor override; 0 => derive from YarnLogMul
	BetaFast      float32
	BetaSlow      float32
	YarnLogMul    float32 // rope.scaling.yarn_log_multiplier
}

// Table holds precomputed per-(position, pair) cos/sin values and the
// attention-magnitude correction scalar mscale.
type Table struct {
	dimCount int
	layout   Layout
	cos      [][]float32 // [pos][i], i in [0, dimCount/2)
	sin      [][]float32
	mscale   float32
}

// GetMScale returns the attention magnitude scalar; mscale^2/sqrt(headDim)
// replaces the standard 1/sqrt(headDim) attention scale when YaRN is
// active (mscale==1 when it is not).
func (t *Table) GetMScale() float32 { return t.mscale }

func (t *Table) DimCount() int { return t.dimCount }

// Precompute builds cos/sin tables for positions [0, maxSeqLen).
func Precompute(p Params, maxSeqLen int) *Table {
	half := p.DimCount / 2
	t := &Table{
		dimCount: p.DimCount,
		layout:   p.Layout,
		cos:      make([][]float32, maxSeqLen),
		sin:      make([][]float32, maxSeqLen),
		mscale:   1,
	}

	yarnActive := p.ScalingFactor > 1 && p.OrigCtx > 0

	freqScale := p.FreqScale
	if freqScale == 0 {
		freqScale = 1
	}

	var corrLow, corrHigh float64
	if yarnActive {
		corrLow = math.Floor(yarnCorrDim(float64(p.BetaFast), p.DimCount, p.OrigCtx, float64(p.FreqBase)))
		corrHigh = math.Ceil(yarnCorrDim(float64(p.BetaSlow), p.DimCount, p.OrigCtx, float64(p.FreqBase)))

		attnFactor := float64(p.AttnFactorCfg)
		if attnFactor == 0 {
			logSF := math.Log(float64(p.ScalingFactor))
			attnFactor = 1 + 0.1*logSF*(1+0.1*float64(p.YarnLogMul)*logSF)
		}
		// mscale^2/sqrt(headDim) is applied by the caller; the table only
		// stores mscale itself.
		t.mscale = float32(attnFactor)
	}

	freqs := make([]float64, half)
	for i := 0; i < half; i++ {
		base := math.Pow(float64(p.FreqBase), -2*float64(i)/float64(p.DimCount))
		if p.FreqFactors != nil && i < len(p.FreqFactors) && p.FreqFactors[i] != 0 {
			base /= float64(p.FreqFactors[i])
		}
		if !yarnActive {
			freqs[i] = base
			continue
		}
		ramp := 1 - clamp01((float64(i)-corrLow)/math.Max(1e-3, corrHigh-corrLow))
		thetaInterp := float64(freqScale) * base
		thetaExtrap := base
		freqs[i] = thetaInterp*(1-ramp) + thetaExtrap*ramp
	}

	for pos := 0; pos < maxSeqLen; pos++ {
		cosRow := make([]float32, half)
		sinRow := make([]float32, half)
		for i := 0; i < half; i++ {
			angle := float64(pos) * freqs[i]
			cosRow[i] = float32(math.Cos(angle))
			sinRow[i] = float32(math.Sin(angle))
		}
		t.cos[pos] = cosRow
		t.sin[pos] = sinRow
	}
	return t
}

// yarn_corr_dim(beta) = n*log(n_ctx_orig / (beta*2*pi)) / (2*log(theta))
func yarnCorrDim(beta float64, dimCount, origCtx int, theta float64) float64 {
	return float64(dimCount) * math.Log(float64(origCtx)/(beta*2*math.Pi)) / (2 * math.Log(theta))
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Apply rotates the first t.DimCount dimensions of vec (one attention
// head) in place at position pos; dimensions beyond DimCount pass
// through unchanged (partial RoPE).
func (t *Table) Apply(vec []float32, pos int) {
	half := t.dimCount / 2
	cosRow := t.cos[pos]
	sinRow := t.sin[pos]

	switch t.layout {
	case Normal:
		for i := 0; i < half; i++ {
			a, b := vec[2*i], vec[2*i+1]
			c, s := cosRow[i], sinRow[i]
			vec[2*i] = a*c - b*s
			vec[2*i+1] = a*s + b*c
		}
	case Neox:
		for i := 0; i < half; i++ {
			a, b := vec[i], vec[half+i]
			c, s := cosRow[i], sinRow[i]
			vec[i] = a*c - b*s
			vec[half+i] = a*s + b*c
		}
	}
}
