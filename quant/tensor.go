package quant

import "github.com/DenzoSOFTHub/gguf-infer/gguf"

// FloatTensor is the polymorphic weight tensor of spec §3: a
// (quant_type, view, element_count) triple exposing get/dot/matmul_parallel
// without callers needing to branch on the underlying block format.
// Immutable; freely shared across InferenceStates.
type FloatTensor struct {
	Type     gguf.TensorType
	View     gguf.View
	Elements int
}

// NewFloatTensor resolves t's byte range within f into a FloatTensor.
func NewFloatTensor(f *gguf.File, t *gguf.Tensor) (FloatTensor, error) {
	v, err := f.TensorView(t)
	if err != nil {
		return FloatTensor{}, err
	}
	return FloatTensor{Type: t.Type(), View: v, Elements: int(t.Elements())}, nil
}

// Get dequantizes element i.
func (ft FloatTensor) Get(i int) float32 {
	val, _ := Get(ft.Type, ft.View, i)
	return val
}

// Dot computes dot(row at rowOffset, dense[denseOff:denseOff+n]).
func (ft FloatTensor) Dot(rowOffset int, dense []float32, denseOff, n int) float32 {
	val, _ := Dot(ft.Type, ft.View, rowOffset, dense, denseOff, n)
	return val
}

// ExpertSlice returns the sub-tensor for expert e within a 3D,
// expert-axis-packed tensor of expert_count rows of outDim x inDim
// matrices (spec §4.7: "expert e's weights begin at byte offset
// e*out_dim*in_dim in elements"). The returned FloatTensor behaves like
// a standalone outDim x inDim weight matrix.
func (ft FloatTensor) ExpertSlice(e, outDim, inDim int) FloatTensor {
	elemsPerExpert := outDim * inDim
	byteOff := int(ft.Type.RowSize(uint64(e * elemsPerExpert)))
	byteLen := int(ft.Type.RowSize(uint64(elemsPerExpert)))
	return FloatTensor{Type: ft.Type, View: ft.View.Slice(byteOff, byteLen), Elements: elemsPerExpert}
}

// MatMulParallel computes out[r] = dot(row r, dense) for r in [0,rows),
// where the tensor holds a rows x cols matrix, using workers goroutines.
func (ft FloatTensor) MatMulParallel(dense []float32, out []float32, rows, cols, workers int) error {
	return MatMulParallel(ft.Type, ft.View, rows, cols, dense, 0, workers, out)
}
