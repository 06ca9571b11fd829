package ffn

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
)

func floatsTensor(data []float32) *quant.FloatTensor {
	buf := make([]byte, len(data)*4)
	for i, f := range data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	ft := quant.FloatTensor{Type: gguf.TensorTypeF32, View: gguf.NewView(buf), Elements: len(data)}
	return &ft
}

// TestTopKStableTieBreak verifies spec §4.7's stable tie-break: equal
// logits resolve to the lower index.
func TestTopKStableTieBreak(t *testing.T) {
	logits := []float32{1, 1, 1, 0}
	sel := topK(logits, 2)
	require.Equal(t, 0, sel[0].idx)
	require.Equal(t, 1, sel[1].idx)
}

// TestMoENormTopKConservation is Property 9: when norm_topk_prob is set
// and every expert computes an identical FFN output, the combined
// output must equal that single output exactly, proving the selected
// router weights sum to 1.0 regardless of which experts were chosen.
func TestMoENormTopKConservation(t *testing.T) {
	const (
		embedDim    = 2
		ffnDim      = 2
		expertCount = 3
		expertUsed  = 2
	)

	// Router: expert e's logit = row_e . xbIn, tuned so experts 0 and 2
	// are selected (logits 3 and 2 beat expert 1's logit of 1).
	router := floatsTensor([]float32{
		3, 0,
		1, 0,
		2, 0,
	})

	identity2x2 := func() []float32 { return []float32{1, 0, 0, 1} }
	var gateData, upData, downData []float32
	for e := 0; e < expertCount; e++ {
		gateData = append(gateData, identity2x2()...)
		upData = append(upData, identity2x2()...)
		downData = append(downData, identity2x2()...)
	}

	w := &model.FFNWeights{
		Kind:          model.FFNMoE,
		RouterGateInp: router,
		ExpertGate:    floatsTensor(gateData),
		ExpertUp:      floatsTensor(upData),
		ExpertDown:    floatsTensor(downData),
	}

	xbIn := []float32{1, 0}
	xbOut := make([]float32, embedDim)
	MoE(w, xbIn, xbOut, MoEParams{
		ExpertCount: expertCount,
		ExpertUsed:  expertUsed,
		NormTopK:    true,
		FFNDim:      ffnDim,
		EmbedDim:    embedDim,
		Workers:     2,
	})

	sigmoid1 := 1 / (1 + math.Exp(-1))
	wantFirst := float32(1 * sigmoid1) // SiLU(1)*1, down=identity

	require.InDelta(t, float64(wantFirst), float64(xbOut[0]), 1e-4)
	require.InDelta(t, 0.0, float64(xbOut[1]), 1e-5)
}
