package gguf

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// File is a fully-decoded, memory-mapped GGUF model: header, metadata,
// tensor directory, and the underlying mapping that backs every
// TensorView. Its lifetime equals the engine's; Close releases the
// mapping.
type File struct {
	Version uint32
	KV      KV
	Tensors Tensors

	// KeyOrder preserves metadata keys in the order they were declared
	// in the file. KV itself is a plain map (fast, architecture-prefixed
	// lookups); diagnostics that want to reproduce a GGUF file's own
	// layout (cmd/gguflm inspect) read this instead of KV.SortedKeys().
	KeyOrder *orderedmap.OrderedMap[string, any]

	mapped *mappedFile
	file   *os.File
}

// Open memory-maps path and decodes its GGUF header, metadata, and
// tensor directory. maxArraySize bounds how much of any single metadata
// array is retained in memory (negative disables the bound); large
// arrays such as full vocabularies are typically left to the tokenizer
// collaborator rather than duplicated here.
func Open(path string, maxArraySize int) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	mf, err := mapFile(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	r := bufio.NewReaderSize(f, 32<<10)

	d, err := decodeHeader(r, maxArraySize)
	if err != nil {
		mf.Close()
		f.Close()
		return nil, err
	}

	kv := make(KV, d.numKV)
	order := orderedmap.New[string, any](orderedmap.WithCapacity[string, any](int(d.numKV)))
	for i := uint64(0); i < d.numKV; i++ {
		key, err := d.readString(r)
		if err != nil {
			mf.Close()
			f.Close()
			return nil, parseErr(ErrTruncated, "reading metadata key", err)
		}
		val, err := d.readValue(r)
		if err != nil {
			mf.Close()
			f.Close()
			return nil, parseErr(ErrTruncated, fmt.Sprintf("reading metadata value for %q", key), err)
		}
		kv[key] = val
		order.Set(key, val)
	}

	tensors, totalElements, err := d.decodeTensorDirectory(r)
	if err != nil {
		mf.Close()
		f.Close()
		return nil, err
	}
	kv["general.parameter_count"] = totalElements

	// The tensor data section begins at the next `general.alignment`
	// boundary (default 32) after the directory we just consumed.
	offset, err := currentOffset(f, r)
	if err != nil {
		mf.Close()
		f.Close()
		return nil, err
	}

	alignment := int64(kv.Uint("general.alignment", 32))
	dataOffset := offset + ggufPadding(offset, alignment)

	result := &File{
		Version:  d.version,
		KV:       kv,
		Tensors:  Tensors{items: tensors, Offset: uint64(dataOffset)},
		KeyOrder: order,
		mapped:   mf,
		file:     f,
	}

	slog.Debug("gguf: decoded file",
		"architecture", kv.Architecture(),
		"version", d.version,
		"tensors", len(tensors),
		"kv_pairs", len(kv),
		"data_offset", dataOffset)

	return result, nil
}

// Close releases the memory mapping and underlying file handle.
func (f *File) Close() error {
	if f.mapped != nil {
		f.mapped.Close()
	}
	if f.file != nil {
		return f.file.Close()
	}
	return nil
}

// currentOffset reports the logical stream position: the file's raw
// seek position minus whatever bufio has already read ahead but not
// yet handed out.
func currentOffset(f *os.File, r *bufio.Reader) (int64, error) {
	pos, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	return pos - int64(r.Buffered()), nil
}
