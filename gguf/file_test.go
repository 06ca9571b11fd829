package gguf

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeString appends a GGUF v3 string: uint64 length followed by the
// raw bytes (no NUL terminator; that's a v1-only quirk readString
// already special-cases).
func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint64(len(s)))
	buf.WriteString(s)
}

// buildMinimalGGUF encodes a version-3 GGUF file with two metadata keys
// and one F32 tensor, mirroring decodeHeader/decodeTensorDirectory's
// expected byte layout field-for-field.
func buildMinimalGGUF(t *testing.T, weights []float32) []byte {
	t.Helper()
	var buf bytes.Buffer

	buf.WriteString(magic)
	binary.Write(&buf, binary.LittleEndian, uint32(3)) // version
	binary.Write(&buf, binary.LittleEndian, uint64(1)) // tensor count
	binary.Write(&buf, binary.LittleEndian, uint64(2)) // kv count

	writeString(&buf, "general.architecture")
	binary.Write(&buf, binary.LittleEndian, valString)
	writeString(&buf, "llama")

	writeString(&buf, "general.alignment")
	binary.Write(&buf, binary.LittleEndian, valUint32)
	binary.Write(&buf, binary.LittleEndian, uint32(32))

	writeString(&buf, "test.weight")
	binary.Write(&buf, binary.LittleEndian, uint32(1))          // n_dims
	binary.Write(&buf, binary.LittleEndian, uint64(len(weights))) // shape[0]
	binary.Write(&buf, binary.LittleEndian, uint32(TensorTypeF32))
	binary.Write(&buf, binary.LittleEndian, uint64(0)) // offset within data section

	offset := int64(buf.Len())
	pad := ggufPadding(offset, 32)
	buf.Write(make([]byte, pad))

	for _, w := range weights {
		binary.Write(&buf, binary.LittleEndian, math.Float32bits(w))
	}

	return buf.Bytes()
}

// TestOpenRoundTripsHeaderMetadataAndTensorData is Property 2: a file
// encoded with the layout decodeHeader/decodeTensorDirectory expect must
// decode back to the same metadata and the same tensor bytes, with the
// data section starting at the first general.alignment boundary at or
// after the end of the directory, as ggufPadding computes.
func TestOpenRoundTripsHeaderMetadataAndTensorData(t *testing.T) {
	weights := []float32{1, -2, 3.5, -4.25}
	raw := buildMinimalGGUF(t, weights)

	path := filepath.Join(t.TempDir(), "model.gguf")
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	f, err := Open(path, -1)
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, uint32(3), f.Version)
	require.Equal(t, "llama", f.KV.Architecture())
	require.Equal(t, uint32(32), f.KV.Uint("general.alignment"))

	tensor, ok := f.Tensors.ByName("test.weight")
	require.True(t, ok)
	require.Equal(t, TensorTypeF32, tensor.Type())
	require.Equal(t, uint64(len(weights)), tensor.Elements())

	view, err := f.TensorView(tensor)
	require.NoError(t, err)
	for i, want := range weights {
		require.Equal(t, want, view.F32(i*4))
	}
}

// TestOpenRejectsBadMagic exercises the ErrBadMagic path on a file whose
// first four bytes aren't "GGUF".
func TestOpenRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.gguf")
	require.NoError(t, os.WriteFile(path, []byte("NOPE0000000000000000"), 0o644))

	_, err := Open(path, -1)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrBadMagic, perr.Kind)
}

// TestOpenRejectsTruncatedHeader covers a file that ends mid-header.
func TestOpenRejectsTruncatedHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.gguf")
	require.NoError(t, os.WriteFile(path, []byte(magic), 0o644))

	_, err := Open(path, -1)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, ErrTruncated, perr.Kind)
}

// TestGroupLayersSplitsByBlockPrefix matches the "blk.N." grouping
// convention Tensors.GroupLayers relies on for per-layer weight lookup.
func TestGroupLayersSplitsByBlockPrefix(t *testing.T) {
	ts := Tensors{items: []*Tensor{
		{Name: "blk.0.attn_q.weight"},
		{Name: "blk.0.attn_k.weight"},
		{Name: "blk.1.attn_q.weight"},
		{Name: "token_embd.weight"},
	}}

	layers := ts.GroupLayers()
	require.Len(t, layers["blk.0"], 2)
	require.Len(t, layers["blk.1"], 1)
	require.Contains(t, layers["blk.0"], "attn_q.weight")
	require.Contains(t, layers["token_embd"], "weight")
}
