package kernel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSoftmaxSumsToOneAndPreservesOrder(t *testing.T) {
	v := []float32{2, 1, 4, 0, 3}
	Softmax(v, 0, len(v))

	var sum float32
	for _, p := range v {
		require.GreaterOrEqual(t, p, float32(0))
		require.LessOrEqual(t, p, float32(1))
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-5)

	require.Less(t, v[3], v[1])
	require.Less(t, v[1], v[0])
	require.Less(t, v[0], v[4])
	require.Less(t, v[4], v[2])
}

func TestSoftmaxSubrange(t *testing.T) {
	v := []float32{99, 1, 2, 3, 99}
	Softmax(v, 1, 3)
	require.Equal(t, float32(99), v[0])
	require.Equal(t, float32(99), v[4])

	var sum float32
	for _, p := range v[1:4] {
		sum += p
	}
	require.InDelta(t, 1.0, sum, 1e-5)
}

func TestRMSNormUnitWeightsPreservesNormApprox(t *testing.T) {
	n := 8
	x := make([]float32, n)
	w := make([]float32, n)
	for i := range x {
		x[i] = float32(i+1) * 3.5
		w[i] = 1
	}
	out := make([]float32, n)
	RMSNorm(out, x, w, n, 1e-5)

	var ss float32
	for _, v := range out {
		ss += v * v
	}
	require.InDelta(t, float64(n), float64(ss), 0.05*float64(n))
}

func TestRMSNormScaleInvariant(t *testing.T) {
	n := 6
	x := []float32{1, -2, 3, -4, 5, -6}
	w := make([]float32, n)
	for i := range w {
		w[i] = 1
	}
	scaled := make([]float32, n)
	for i, v := range x {
		scaled[i] = v * 10
	}

	out1 := make([]float32, n)
	out2 := make([]float32, n)
	RMSNorm(out1, x, w, n, 1e-8)
	RMSNorm(out2, scaled, w, n, 1e-8)

	for i := range out1 {
		require.InDelta(t, float64(out1[i]), float64(out2[i]), 1e-3)
	}
}

func TestDotAndSaxpy(t *testing.T) {
	a := []float32{1, 2, 3, 4}
	b := []float32{4, 3, 2, 1}
	require.Equal(t, float32(1*4+2*3+3*2+4*1), Dot(a, 0, b, 0, 4))

	y := []float32{0, 0, 0, 0}
	Saxpy(2, a, 0, y, 0, 4)
	require.Equal(t, []float32{2, 4, 6, 8}, y)
}

func TestSiLUKnownValues(t *testing.T) {
	x := []float32{0, 1, 2}
	SiLU(x, len(x))
	require.InDelta(t, 0.0, x[0], 1e-6)
	require.InDelta(t, 0.7311, x[1], 1e-3)  // 1*sigmoid(1)
	require.InDelta(t, 1.7616, x[2], 1e-3)  // 2*sigmoid(2)
}

func TestGELUTanhZeroAtOriginAndFavorsPositiveInputs(t *testing.T) {
	g := []float32{-2, -1, 0, 1, 2}
	GELUTanh(g, len(g))
	require.InDelta(t, 0, g[2], 1e-6)
	require.Less(t, g[1], g[3])
	require.Less(t, g[0], g[4])
}
