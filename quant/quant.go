// Package quant implements the GGUF block-quantized tensor formats (C2)
// and the dense kernels (C3, via kernel.Dot) that read them. Every
// format is exposed through one registry keyed by gguf.TensorType, so
// callers never switch on format by hand.
package quant

import (
	"fmt"

	"github.com/DenzoSOFTHub/gguf-infer/gguf"
	"github.com/DenzoSOFTHub/gguf-infer/kernel"
	"golang.org/x/sync/errgroup"
)

type dequantBlockFunc func(v gguf.View, block int, out []float32)
type specializedDotFunc func(v gguf.View, rowOffsetElems int, dense []float32, denseOff, n int) float32

type format struct {
	blockSize      int
	dequantBlock   dequantBlockFunc
	specializedDot specializedDotFunc
}

func scalarBlock(get func(gguf.View, int) float32) dequantBlockFunc {
	return func(v gguf.View, block int, out []float32) { out[0] = get(v, block) }
}

var registry = map[gguf.TensorType]*format{
	gguf.TensorTypeF32:  {blockSize: 1, dequantBlock: scalarBlock(getF32)},
	gguf.TensorTypeF16:  {blockSize: 1, dequantBlock: scalarBlock(getF16)},
	gguf.TensorTypeBF16: {blockSize: 1, dequantBlock: scalarBlock(getBF16)},

	gguf.TensorTypeQ4_0: {blockSize: blockSize32, dequantBlock: dequantBlockQ4_0, specializedDot: dotQ4_0Q8_0},
	gguf.TensorTypeQ5_0: {blockSize: blockSize32, dequantBlock: dequantBlockQ5_0},
	gguf.TensorTypeQ8_0: {blockSize: blockSize32, dequantBlock: dequantBlockQ8_0, specializedDot: dotQ8_0Q8_0},

	gguf.TensorTypeQ2_K: {blockSize: blockK, dequantBlock: dequantBlockQ2_K},
	gguf.TensorTypeQ3_K: {blockSize: blockK, dequantBlock: dequantBlockQ3_K},
	gguf.TensorTypeQ4_K: {blockSize: blockK, dequantBlock: dequantBlockQ4_K},
	gguf.TensorTypeQ5_K: {blockSize: blockK, dequantBlock: dequantBlockQ5_K},
	gguf.TensorTypeQ6_K: {blockSize: blockK, dequantBlock: dequantBlockQ6_K},

	gguf.TensorTypeIQ4_NL: {blockSize: blockSize32, dequantBlock: dequantBlockIQ4NL},
	gguf.TensorTypeIQ4_XS: {blockSize: blockK, dequantBlock: dequantBlockIQ4XS},

	gguf.TensorTypeMXFP4: {blockSize: blockSize32, dequantBlock: dequantBlockMXFP4},

	// IQ3_XXS, IQ3_S and IQ2_S are intentionally left unregistered: see
	// the comment at the top of iquants.go.
}

// Supported reports whether t has a registered dequantization path.
func Supported(t gguf.TensorType) bool {
	_, ok := registry[t]
	return ok
}

// Get dequantizes the single element at index i. It materializes the
// whole containing block to do so, so callers that need many elements
// from the same tensor should prefer Dequantize or Dot instead.
func Get(t gguf.TensorType, v gguf.View, i int) (float32, error) {
	f, ok := registry[t]
	if !ok {
		return 0, fmt.Errorf("quant: unsupported tensor type %d", t)
	}
	block := i / f.blockSize
	within := i % f.blockSize
	buf := make([]float32, f.blockSize)
	f.dequantBlock(v, block, buf)
	return buf[within], nil
}

// BlockSize reports the registered block size for t, or 0 if unsupported.
func BlockSize(t gguf.TensorType) int {
	f, ok := registry[t]
	if !ok {
		return 0
	}
	return f.blockSize
}

// Dequantize fully decodes n elements of a tensor starting at element
// offset 0 into out. Used for small tensors (norms, biases) and for
// inspection/testing; row-dense matmul goes through Dot/MatMulParallel
// instead, which materialize at most one row at a time.
func Dequantize(t gguf.TensorType, v gguf.View, n int, out []float32) error {
	f, ok := registry[t]
	if !ok {
		return fmt.Errorf("quant: unsupported tensor type %d", t)
	}
	nb := n / f.blockSize
	buf := make([]float32, f.blockSize)
	for b := 0; b < nb; b++ {
		f.dequantBlock(v, b, buf)
		copy(out[b*f.blockSize:], buf)
	}
	return nil
}

// Dot computes dot(weight_row, dense[denseOff:denseOff+n]) where the
// weight row of type t begins at element offset rowOffsetElems within
// v. Q4_0/Q8_0 weights take the specialized integer-accumulator path;
// every other format dequantizes the row block by block into a
// per-call scratch buffer of n elements and reduces it with a single
// kernel.Dot.
func Dot(t gguf.TensorType, v gguf.View, rowOffsetElems int, dense []float32, denseOff, n int) (float32, error) {
	f, ok := registry[t]
	if !ok {
		return 0, fmt.Errorf("quant: unsupported tensor type %d", t)
	}
	if f.specializedDot != nil {
		return f.specializedDot(v, rowOffsetElems, dense, denseOff, n), nil
	}

	blockOff := rowOffsetElems / f.blockSize
	nb := n / f.blockSize
	scratch := make([]float32, n)
	buf := make([]float32, f.blockSize)
	for b := 0; b < nb; b++ {
		f.dequantBlock(v, blockOff+b, buf)
		copy(scratch[b*f.blockSize:], buf)
	}
	return kernel.Dot(scratch, 0, dense, denseOff, n), nil
}

// MatMulParallel computes out[r] = Dot(row r of the rows x n weight
// matrix, dense) for r in [0,rows), splitting the row range into
// `workers` contiguous chunks. Partitioning is a pure function of
// (rows, workers): row r always lands in chunk r/ceil(rows/workers),
// regardless of goroutine scheduling, so results are identical for a
// fixed worker count. Each worker writes disjoint out[] slots, so no
// reduction/ordering concern arises across workers.
func MatMulParallel(t gguf.TensorType, v gguf.View, rows, n int, dense []float32, denseOff int, workers int, out []float32) error {
	if rows == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > rows {
		workers = rows
	}
	chunk := (rows + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= rows {
			break
		}
		end := start + chunk
		if end > rows {
			end = rows
		}
		g.Go(func() error {
			for r := start; r < end; r++ {
				dot, err := Dot(t, v, r*n, dense, denseOff, n)
				if err != nil {
					return err
				}
				out[r] = dot
			}
			return nil
		})
	}
	return g.Wait()
}
