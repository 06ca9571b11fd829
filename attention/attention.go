// Package attention implements the standard GQA and MLA attention
// algebras of spec §4.6, operating on pre-allocated InferenceState
// scratch buffers and a model.Weights layer record.
package attention

import (
	"math"

	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/kvcache"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
	"github.com/DenzoSOFTHub/gguf-infer/rope"
	"golang.org/x/sync/errgroup"
)

// StandardParams carries the dimensions a GQA attention step needs;
// these come from model.Config and are resolved once per engine, not
// per token.
type StandardParams struct {
	HeadCount   int
	HeadCountKV int
	HeadSize    int
	Layer       int
	Workers     int
}

// Standard runs one GQA attention step (spec §4.6) at position pos.
// xbIn is the pre-normalized layer input (length dim); xbOut receives
// the output projection (length dim). q, k, v, xb2 are caller-owned
// scratch sized headCount*headSize / headCountKV*headSize /
// headCountKV*headSize / headCount*headSize respectively. att must hold
// headCount*cache.MaxSeqLen elements, giving each head a disjoint score
// row so the head-parallel loop below allocates nothing.
func Standard(w *model.AttentionWeights, xbIn, q, k, v, att, xb2, xbOut []float32,
	cache *kvcache.Standard, pos int, p StandardParams, table *rope.Table) {

	qDim := p.HeadCount * p.HeadSize
	kvDim := p.HeadCountKV * p.HeadSize

	if w.WQKV != nil {
		packed := make([]float32, qDim+2*kvDim)
		w.WQKV.MatMulParallel(xbIn, packed, qDim+2*kvDim, len(xbIn), p.Workers)
		copy(q[:qDim], packed[:qDim])
		copy(k[:kvDim], packed[qDim:qDim+kvDim])
		copy(v[:kvDim], packed[qDim+kvDim:])
	} else {
		w.WQ.MatMulParallel(xbIn, q, qDim, len(xbIn), p.Workers)
		w.WK.MatMulParallel(xbIn, k, kvDim, len(xbIn), p.Workers)
		w.WV.MatMulParallel(xbIn, v, kvDim, len(xbIn), p.Workers)
	}

	if w.QBias != nil {
		for i := 0; i < qDim; i++ {
			q[i] += w.QBias.Get(i)
		}
	}
	if w.KBias != nil {
		for i := 0; i < kvDim; i++ {
			k[i] += w.KBias.Get(i)
		}
	}
	if w.VBias != nil {
		for i := 0; i < kvDim; i++ {
			v[i] += w.VBias.Get(i)
		}
	}

	if w.QNorm != nil {
		qnWeights := materialize(w.QNorm, p.HeadSize)
		for h := 0; h < p.HeadCount; h++ {
			seg := q[h*p.HeadSize : (h+1)*p.HeadSize]
			kernel.RMSNorm(seg, seg, qnWeights, p.HeadSize, 1e-6)
		}
	}
	if w.KNorm != nil {
		knWeights := materialize(w.KNorm, p.HeadSize)
		for h := 0; h < p.HeadCountKV; h++ {
			seg := k[h*p.HeadSize : (h+1)*p.HeadSize]
			kernel.RMSNorm(seg, seg, knWeights, p.HeadSize, 1e-6)
		}
	}

	for h := 0; h < p.HeadCount; h++ {
		table.Apply(q[h*p.HeadSize:(h+1)*p.HeadSize], pos)
	}
	for h := 0; h < p.HeadCountKV; h++ {
		table.Apply(k[h*p.HeadSize:(h+1)*p.HeadSize], pos)
	}

	copy(cache.KRow(p.Layer, pos), k[:kvDim])
	copy(cache.VRow(p.Layer, pos), v[:kvDim])

	// mscale is 1 for non-YaRN models (GetMScale's no-scaling case), so
	// this reduces to the plain 1/sqrt(head_size) scale for them; YaRN-
	// scaled standard architectures get the same magnitude correction
	// MLA applies via mscale^2/sqrt(key_len), per spec §4.5.
	mscale := table.GetMScale()
	scale := mscale * mscale / float32(math.Sqrt(float64(p.HeadSize)))
	kvMul := p.HeadCount / p.HeadCountKV

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > p.HeadCount {
		workers = p.HeadCount
	}
	chunk := (p.HeadCount + workers - 1) / workers

	var g errgroup.Group
	for wi := 0; wi < workers; wi++ {
		start := wi * chunk
		if start >= p.HeadCount {
			break
		}
		end := start + chunk
		if end > p.HeadCount {
			end = p.HeadCount
		}
		g.Go(func() error {
			for h := start; h < end; h++ {
				kvHead := h / kvMul
				qh := q[h*p.HeadSize : (h+1)*p.HeadSize]
				scores := att[h*cache.MaxSeqLen : h*cache.MaxSeqLen+pos+1]
				for t := 0; t <= pos; t++ {
					kt := cache.K[p.Layer][t*cache.KVDim+kvHead*p.HeadSize : t*cache.KVDim+(kvHead+1)*p.HeadSize]
					scores[t] = kernel.Dot(qh, 0, kt, 0, p.HeadSize) * scale
				}
				kernel.Softmax(scores, 0, pos+1)

				out := xb2[h*p.HeadSize : (h+1)*p.HeadSize]
				for i := range out {
					out[i] = 0
				}
				for t := 0; t <= pos; t++ {
					vt := cache.V[p.Layer][t*cache.KVDim+kvHead*p.HeadSize : t*cache.KVDim+(kvHead+1)*p.HeadSize]
					kernel.Saxpy(scores[t], vt, 0, out, 0, p.HeadSize)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	w.WO.MatMulParallel(xb2, xbOut, len(xbOut), qDim, p.Workers)
}

func materialize(t *quant.FloatTensor, n int) []float32 {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = t.Get(i)
	}
	return out
}
