// Package kvcache implements the per-layer key/value store of spec §3.
// A cache is mutated exclusively by the owning InferenceState at
// positions [0, curPos]; it is never shared across concurrent
// generations.
package kvcache

// Standard is the GQA key/value cache: one [maxSeqLen x kvDim] array of
// K and one of V per layer.
type Standard struct {
	K, V      [][]float32
	MaxSeqLen int
	KVDim     int
}

// NewStandard allocates a cache for layers transformer blocks.
func NewStandard(layers, maxSeqLen, kvDim int) *Standard {
	s := &Standard{MaxSeqLen: maxSeqLen, KVDim: kvDim, K: make([][]float32, layers), V: make([][]float32, layers)}
	for l := range s.K {
		s.K[l] = make([]float32, maxSeqLen*kvDim)
		s.V[l] = make([]float32, maxSeqLen*kvDim)
	}
	return s
}

// KRow returns the kvDim-length slot for (layer, pos), for both reading
// past keys and writing the current step's key.
func (s *Standard) KRow(layer, pos int) []float32 {
	off := pos * s.KVDim
	return s.K[layer][off : off+s.KVDim]
}

func (s *Standard) VRow(layer, pos int) []float32 {
	off := pos * s.KVDim
	return s.V[layer][off : off+s.KVDim]
}

// MLA is the Multi-head Latent Attention key/value cache: per layer, a
// [maxSeqLen x headCount*keyLen] K array (nope||rope reconstructed in
// full per head) and a [maxSeqLen x headCount*valueLen] V array.
type MLA struct {
	K, V      [][]float32
	MaxSeqLen int
	HeadCount int
	KeyLen    int
	ValueLen  int
}

func NewMLA(layers, maxSeqLen, headCount, keyLen, valueLen int) *MLA {
	m := &MLA{MaxSeqLen: maxSeqLen, HeadCount: headCount, KeyLen: keyLen, ValueLen: valueLen,
		K: make([][]float32, layers), V: make([][]float32, layers)}
	for l := range m.K {
		m.K[l] = make([]float32, maxSeqLen*headCount*keyLen)
		m.V[l] = make([]float32, maxSeqLen*headCount*valueLen)
	}
	return m
}

func (m *MLA) KRow(layer, pos, head int) []float32 {
	stride := m.HeadCount * m.KeyLen
	off := pos*stride + head*m.KeyLen
	return m.K[layer][off : off+m.KeyLen]
}

func (m *MLA) VRow(layer, pos, head int) []float32 {
	stride := m.HeadCount * m.ValueLen
	off := pos*stride + head*m.ValueLen
	return m.V[layer][off : off+m.ValueLen]
}
