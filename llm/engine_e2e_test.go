package llm

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DenzoSOFTHub/gguf-infer/convcache"
	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/model"
	"github.com/DenzoSOFTHub/gguf-infer/quant"
)

// f32Tensor builds a dense row-major F32 quant.FloatTensor from fill,
// the same synthetic-tensor construction attention_test.go and
// transformer/block_test.go use.
func f32Tensor(rows, cols int, fill func(r, c int) float32) quant.FloatTensor {
	buf := make([]byte, rows*cols*4)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			binary.LittleEndian.PutUint32(buf[(r*cols+c)*4:], math.Float32bits(fill(r, c)))
		}
	}
	return quant.FloatTensor{Type: gguf.TensorTypeF32, View: gguf.NewView(buf), Elements: rows * cols}
}

func f32Vec(n int, fill func(i int) float32) quant.FloatTensor {
	return f32Tensor(1, n, func(_, c int) float32 { return fill(c) })
}

// wiggle is a small deterministic pseudo-random generator used only to
// give the synthetic weights below varied, non-degenerate values.
func wiggle(r, c, salt int) float32 {
	return float32((r*7+c*3+salt*11)%9) - 4
}

// newTestWeights builds a tiny, fully dense, single-layer standard-GQA
// model: dim=4, head_count=2, head_count_kv=1 (kv_mul=2), head_size=2,
// ffn_dim=4, vocab=5. Every weight is a fixed deterministic F32 matrix
// rather than zeros, so the forward pass actually exercises attention,
// RoPE and the FFN instead of trivially collapsing.
func newTestWeights() *model.Weights {
	const (
		dim         = 4
		headCount   = 2
		headCountKV = 1
		headSize    = 2
		kvDim       = headCountKV * headSize
		ffnDim      = 4
		vocab       = 5
	)

	cfg := &model.Config{
		Architecture:     "llama",
		BlockCount:       1,
		EmbeddingLength:  dim,
		ContextLength:    64,
		VocabSize:        vocab,
		HeadCount:        headCount,
		HeadCountKV:      headCountKV,
		HeadDimK:         headSize,
		HeadDimV:         headSize,
		IntermediateSize: ffnDim,
		RopeDimCount:     headSize,
		RopeFreqBase:     10000,
		RopeFreqScale:    1,
		RopeNeox:         false,
		RMSNormEps:       1e-5,
		Alignment:        32,
	}

	ones := f32Vec(dim, func(i int) float32 { return 1 })

	attn := model.AttentionWeights{
		Kind: model.AttnStandard,
		WQ:   ptr(f32Tensor(headCount*headSize, dim, func(r, c int) float32 { return wiggle(r, c, 1) })),
		WK:   ptr(f32Tensor(kvDim, dim, func(r, c int) float32 { return wiggle(r, c, 2) })),
		WV:   ptr(f32Tensor(kvDim, dim, func(r, c int) float32 { return wiggle(r, c, 3) })),
		WO:   ptr(f32Tensor(dim, headCount*headSize, func(r, c int) float32 { return wiggle(r, c, 4) })),
	}
	ffn := model.FFNWeights{
		Kind:   model.FFNDense,
		WGate:  ptr(f32Tensor(ffnDim, dim, func(r, c int) float32 { return wiggle(r, c, 5) })),
		WUp:    ptr(f32Tensor(ffnDim, dim, func(r, c int) float32 { return wiggle(r, c, 6) })),
		WDown:  ptr(f32Tensor(dim, ffnDim, func(r, c int) float32 { return wiggle(r, c, 7) })),
	}
	ffnNorm := ones
	layer := model.LayerWeights{
		AttnNorm: ones,
		FFNNorm:  &ffnNorm,
		Attn:     attn,
		FFN:      ffn,
	}

	embd := f32Tensor(vocab, dim, func(r, c int) float32 { return wiggle(r, c, 8) })
	return &model.Weights{
		Config: cfg,
		Global: model.GlobalWeights{
			TokenEmbd:  embd,
			OutputNorm: ones,
			Output:     f32Tensor(vocab, dim, func(r, c int) float32 { return wiggle(r, c, 9) }),
		},
		Layers: []model.LayerWeights{layer},
	}
}

func ptr(t quant.FloatTensor) *quant.FloatTensor { return &t }

// TestForwardIsDeterministic is Property 8: two independent sessions
// over the model run forward over the identical token sequence and
// must produce bit-identical logits — MatMulParallel's row partitioning
// is a pure function of (rows, workers) and every worker writes
// disjoint output slots, so there is no reduction-order nondeterminism
// to introduce drift.
func TestForwardIsDeterministic(t *testing.T) {
	w := newTestWeights()
	tokens := []int{0, 2, 4, 1}

	run := func() []float32 {
		sess := newSession(w, 16, 2)
		var logits []float32
		for i, tok := range tokens {
			logits = sess.forward(tok, i)
		}
		return append([]float32(nil), logits...)
	}

	a := run()
	b := run()
	require.Equal(t, a, b)
}

// TestResumeFromCacheMatchesFreshDecode covers Properties 6 and 7: a
// session that prefills only the first part of a prompt, gets cached
// with cache.Put as Generate does, is taken back via Engine.resume, and
// then continues from the cached
// KV state must produce the same final-position logits as a single
// session run fresh over the whole prompt — the KV cache for the
// shared prefix is exactly reusable regardless of which call produced
// it, and the conversation cache's exact-match resume path must engage
// for a repeated identical request.
func TestResumeFromCacheMatchesFreshDecode(t *testing.T) {
	w := newTestWeights()
	const maxSeqLen = 16
	tokens := []int{0, 2, 4, 1}

	fresh := newSession(w, maxSeqLen, 1)
	var wantLogits []float32
	for i, tok := range tokens {
		wantLogits = fresh.forward(tok, i)
	}

	e := &Engine{Weights: w, MaxContextLength: maxSeqLen, Workers: 1}
	cacheKey := "fixed-key"

	partial := newSession(w, maxSeqLen, 1)
	for i := 0; i < len(tokens)-1; i++ {
		partial.forward(tokens[i], i)
	}
	e.cache = convcache.New()
	e.cache.Put(cacheKey, &convcache.Entry{State: partial, PromptTokens: append([]int(nil), tokens[:len(tokens)-1]...)})

	sess, prefillStart := e.resume(cacheKey, tokens)
	require.Same(t, partial, sess, "exact cache hit must return the cached session, not a fresh one")
	require.Equal(t, len(tokens)-1, prefillStart, "only the uncached final token should need prefill")

	var gotLogits []float32
	for i := prefillStart; i < len(tokens); i++ {
		gotLogits = sess.forward(tokens[i], i)
	}

	require.InDeltaSlice(t, wantLogits, gotLogits, 1e-4)
}

// TestResumeDivergentPrefixFallsBackToFreshSession covers the collision
// branch of resume: a cache hit whose cached tokens share no prefix
// with the new request must discard the stale session rather than
// reuse KV state computed for a different prompt.
func TestResumeDivergentPrefixFallsBackToFreshSession(t *testing.T) {
	w := newTestWeights()
	const maxSeqLen = 16

	e := &Engine{Weights: w, MaxContextLength: maxSeqLen, Workers: 1}
	stale := newSession(w, maxSeqLen, 1)
	e.cache = convcache.New()
	e.cache.Put("k", &convcache.Entry{State: stale, PromptTokens: []int{9, 9, 9}})

	sess, prefillStart := e.resume("k", []int{0, 1, 2})
	require.NotSame(t, stale, sess)
	require.Equal(t, 0, prefillStart)
}
