package ffn

import (
	"sort"

	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"golang.org/x/sync/errgroup"
)

// MoEParams carries the router/expert dimensions for one MoE FFN step.
type MoEParams struct {
	ExpertCount int
	ExpertUsed  int
	NormTopK    bool // renormalize selected router weights to sum to 1 (spec's norm_topk_prob)
	FFNDim      int  // per-expert intermediate size
	EmbedDim    int
	Workers     int
}

type selection struct {
	idx    int
	weight float32
}

// topK selects the ExpertUsed highest router logits, breaking ties by
// lower index (spec §4.7's stable tie-break requirement).
func topK(logits []float32, k int) []selection {
	idx := make([]int, len(logits))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		if logits[idx[a]] != logits[idx[b]] {
			return logits[idx[a]] > logits[idx[b]]
		}
		return idx[a] < idx[b]
	})
	sel := make([]selection, k)
	for i := 0; i < k; i++ {
		sel[i] = selection{idx: idx[i], weight: logits[idx[i]]}
	}
	return sel
}

// MoE runs one mixture-of-experts FFN step (spec §4.7). xbIn is the
// pre-normalized, saved layer input; xbOut receives the combined expert
// (and optional shared-expert) output, replacing whatever it held.
// Per-expert outputs are computed in parallel into disjoint buffers,
// then accumulated into xbOut in a fixed sequential order (selection
// order, which is itself deterministic for a fixed router output) per
// spec §9's determinism requirement — floating point accumulation is
// not associative, so the reduction order must not vary with scheduling.
func MoE(w *model.FFNWeights, xbIn, xbOut []float32, p MoEParams) {
	router := make([]float32, p.ExpertCount)
	w.RouterGateInp.MatMulParallel(xbIn, router, p.ExpertCount, p.EmbedDim, p.Workers)
	kernel.Softmax(router, 0, p.ExpertCount)

	selected := topK(router, p.ExpertUsed)
	if p.NormTopK {
		var sum float32
		for _, s := range selected {
			sum += s.weight
		}
		if sum > 0 {
			for i := range selected {
				selected[i].weight /= sum
			}
		}
	}

	outs := make([][]float32, len(selected))
	var g errgroup.Group
	for i, s := range selected {
		i, s := i, s
		g.Go(func() error {
			gateT := w.ExpertGate.ExpertSlice(s.idx, p.FFNDim, p.EmbedDim)
			upT := w.ExpertUp.ExpertSlice(s.idx, p.FFNDim, p.EmbedDim)
			downT := w.ExpertDown.ExpertSlice(s.idx, p.EmbedDim, p.FFNDim)

			gate := make([]float32, p.FFNDim)
			up := make([]float32, p.FFNDim)
			gateT.MatMulParallel(xbIn, gate, p.FFNDim, p.EmbedDim, 1)
			upT.MatMulParallel(xbIn, up, p.FFNDim, p.EmbedDim, 1)
			kernel.SiLU(gate, p.FFNDim)
			kernel.ElementwiseMul(gate, up, gate, p.FFNDim)

			out := make([]float32, p.EmbedDim)
			downT.MatMulParallel(gate, out, p.EmbedDim, p.FFNDim, 1)
			outs[i] = out
			return nil
		})
	}
	_ = g.Wait()

	for i := range xbOut {
		xbOut[i] = 0
	}

	if w.SharedGate != nil {
		sharedFFNDim := w.SharedGate.Elements / p.EmbedDim
		gate := make([]float32, sharedFFNDim)
		up := make([]float32, sharedFFNDim)
		w.SharedGate.MatMulParallel(xbIn, gate, sharedFFNDim, p.EmbedDim, p.Workers)
		w.SharedUp.MatMulParallel(xbIn, up, sharedFFNDim, p.EmbedDim, p.Workers)
		kernel.SiLU(gate, sharedFFNDim)
		kernel.ElementwiseMul(gate, up, gate, sharedFFNDim)
		shared := make([]float32, p.EmbedDim)
		w.SharedDown.MatMulParallel(gate, shared, p.EmbedDim, sharedFFNDim, p.Workers)
		kernel.Accumulate(xbOut, shared, p.EmbedDim)
	}

	for i, s := range selected {
		kernel.Saxpy(s.weight, outs[i], 0, xbOut, 0, p.EmbedDim)
	}
}
