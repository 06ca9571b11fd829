package attention

import (
	"math"

	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"github.com/DenzoSOFTHub/gguf-infer/kvcache"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/rope"
	"golang.org/x/sync/errgroup"
)

// MLAParams carries the dimensions an MLA attention step needs.
// NOpe = KeyLen - RopeDim is derived, not stored.
type MLAParams struct {
	HeadCount int
	KeyLen    int // K: full per-head query/key dim
	ValueLen  int // V
	LoraRank  int // Z: kv_lora_rank, latent compression width
	RopeDim   int // R: rotated suffix of K
	Layer     int
	Workers   int
}

// MLA runs one Multi-head Latent Attention step (spec §4.6) at position
// pos. xbIn is the pre-normalized layer input. q is scratch of length
// HeadCount*KeyLen; cKV is scratch of length LoraRank+RopeDim; kvDecomp
// is scratch of length HeadCount*(NOpe+ValueLen); xb2 is scratch of
// length HeadCount*ValueLen; att must hold HeadCount*cache.MaxSeqLen
// elements. mscale is rope.Table.GetMScale(); MLA folds it into the
// attention scale itself as mscale^2/sqrt(KeyLen).
func MLA(w *model.AttentionWeights, xbIn, q, cKV, kvDecomp, xb2, xbOut, att []float32,
	cache *kvcache.MLA, pos int, p MLAParams, table *rope.Table, mscale float32) {

	nope := p.KeyLen - p.RopeDim

	w.WQ2.MatMulParallel(xbIn, q, p.HeadCount*p.KeyLen, len(xbIn), p.Workers)
	w.WKvA.MatMulParallel(xbIn, cKV, p.LoraRank+p.RopeDim, len(xbIn), p.Workers)

	cLatent := cKV[:p.LoraRank]
	kRopeRaw := cKV[p.LoraRank : p.LoraRank+p.RopeDim]

	latentNormed := materialize(w.KvANorm, p.LoraRank)
	kernel.RMSNorm(cLatent, cLatent, latentNormed, p.LoraRank, 1e-6)

	w.WKvB.MatMulParallel(cLatent, kvDecomp, p.HeadCount*(nope+p.ValueLen), p.LoraRank, p.Workers)

	table.Apply(kRopeRaw, pos)
	for h := 0; h < p.HeadCount; h++ {
		qHead := q[h*p.KeyLen : (h+1)*p.KeyLen]
		table.Apply(qHead[nope:p.KeyLen], pos)
	}

	stride := nope + p.ValueLen
	for h := 0; h < p.HeadCount; h++ {
		decomp := kvDecomp[h*stride : (h+1)*stride]
		kRow := cache.KRow(p.Layer, pos, h)
		copy(kRow[:nope], decomp[:nope])
		copy(kRow[nope:], kRopeRaw)
		copy(cache.VRow(p.Layer, pos, h), decomp[nope:nope+p.ValueLen])
	}

	scale := mscale * mscale / float32(math.Sqrt(float64(p.KeyLen)))

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
				qHead := q[h*p.KeyLen : (h+1)*p.KeyLen]
				scores := att[h*cache.MaxSeqLen : h*cache.MaxSeqLen+pos+1]
				for t := 0; t <= pos; t++ {
					scores[t] = kernel.Dot(qHead, 0, cache.K[p.Layer], t*p.HeadCount*p.KeyLen+h*p.KeyLen, p.KeyLen) * scale
				}
				kernel.Softmax(scores, 0, pos+1)

				out := xb2[h*p.ValueLen : (h+1)*p.ValueLen]
				for i := range out {
					out[i] = 0
				}
				for t := 0; t <= pos; t++ {
					kernel.Saxpy(scores[t], cache.V[p.Layer], t*p.HeadCount*p.ValueLen+h*p.ValueLen, out, 0, p.ValueLen)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	w.WOut.MatMulParallel(xb2, xbOut, len(xbOut), p.HeadCount*p.ValueLen, p.Workers)
}

