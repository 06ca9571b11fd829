package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
)

const magic = "GGUF"

// decoder turns a stream of GGUF bytes into KV metadata and a tensor
// directory. It mirrors the teacher's containerGGUF/gguf split but
// folds both into one step since this engine always reads a whole file
// up front (no lazy lookahead is needed once the file is mmap'd).
type decoder struct {
	byteOrder    binary.ByteOrder
	version      uint32
	numTensor    uint64
	numKV        uint64
	maxArraySize int
	scratch      [16 << 10]byte
}

func decodeHeader(r io.Reader, maxArraySize int) (*decoder, error) {
	var magicBuf [4]byte
	if _, err := io.ReadFull(r, magicBuf[:]); err != nil {
		return nil, parseErr(ErrTruncated, "reading magic", err)
	}
	if string(magicBuf[:]) != magic {
		return nil, parseErr(ErrBadMagic, fmt.Sprintf("got %q", magicBuf[:]), nil)
	}

	d := &decoder{byteOrder: binary.LittleEndian, maxArraySize: maxArraySize}
	if err := binary.Read(r, d.byteOrder, &d.version); err != nil {
		return nil, parseErr(ErrTruncated, "reading version", err)
	}
	if d.version < 1 || d.version > 3 {
		return nil, parseErr(ErrBadVersion, fmt.Sprintf("version %d", d.version), nil)
	}

	switch d.version {
	case 1:
		var nt, nkv uint32
		if err := binary.Read(r, d.byteOrder, &nt); err != nil {
			return nil, parseErr(ErrTruncated, "reading tensor count", err)
		}
		if err := binary.Read(r, d.byteOrder, &nkv); err != nil {
			return nil, parseErr(ErrTruncated, "reading kv count", err)
		}
		d.numTensor, d.numKV = uint64(nt), uint64(nkv)
	default:
		if err := binary.Read(r, d.byteOrder, &d.numTensor); err != nil {
			return nil, parseErr(ErrTruncated, "reading tensor count", err)
		}
		if err := binary.Read(r, d.byteOrder, &d.numKV); err != nil {
			return nil, parseErr(ErrTruncated, "reading kv count", err)
		}
	}
	return d, nil
}

func read[T any](d *decoder, r io.Reader) (T, error) {
	var t T
	err := binary.Read(r, d.byteOrder, &t)
	return t, err
}

func (d *decoder) readString(r io.Reader) (string, error) {
	if d.version == 1 {
		var length uint64
		if err := binary.Read(r, d.byteOrder, &length); err != nil {
			return "", err
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", err
		}
		if length > 0 {
			buf = buf[:length-1] // drop the V1 NUL terminator
		}
		return string(buf), nil
	}

	buf := d.scratch[:8]
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	length := int(d.byteOrder.Uint64(buf))
	if length > len(d.scratch) {
		buf = make([]byte, length)
	} else {
		buf = d.scratch[:length]
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func (d *decoder) readValue(r io.Reader) (any, error) {
	t, err := read[uint32](d, r)
	if err != nil {
		return nil, err
	}
	switch t {
	case valUint8:
		return read[uint8](d, r)
	case valInt8:
		return read[int8](d, r)
	case valUint16:
		return read[uint16](d, r)
	case valInt16:
		return read[int16](d, r)
	case valUint32:
		return read[uint32](d, r)
	case valInt32:
		return read[int32](d, r)
	case valUint64:
		return read[uint64](d, r)
	case valInt64:
		return read[int64](d, r)
	case valFloat32:
		return read[float32](d, r)
	case valFloat64:
		return read[float64](d, r)
	case valBool:
		v, err := read[uint8](d, r)
		return v != 0, err
	case valString:
		return d.readString(r)
	case valArray:
		return d.readArray(r)
	default:
		return nil, fmt.Errorf("invalid metadata value type: %d", t)
	}
}

func (d *decoder) readArray(r io.Reader) (any, error) {
	elemType, err := read[uint32](d, r)
	if err != nil {
		return nil, err
	}
	n, err := read[uint64](d, r)
	if err != nil {
		return nil, err
	}

	switch elemType {
	case valUint8:
		return readArrayData(d, r, newArray[uint8](int(n), d.maxArraySize))
	case valInt8:
		return readArrayData(d, r, newArray[int8](int(n), d.maxArraySize))
	case valUint16:
		return readArrayData(d, r, newArray[uint16](int(n), d.maxArraySize))
	case valInt16:
		return readArrayData(d, r, newArray[int16](int(n), d.maxArraySize))
	case valUint32:
		return readArrayData(d, r, newArray[uint32](int(n), d.maxArraySize))
	case valInt32:
		return readArrayData(d, r, newArray[int32](int(n), d.maxArraySize))
	case valUint64:
		return readArrayData(d, r, newArray[uint64](int(n), d.maxArraySize))
	case valInt64:
		return readArrayData(d, r, newArray[int64](int(n), d.maxArraySize))
	case valFloat32:
		return readArrayData(d, r, newArray[float32](int(n), d.maxArraySize))
	case valFloat64:
		return readArrayData(d, r, newArray[float64](int(n), d.maxArraySize))
	case valBool:
		return readBoolArrayData(d, r, newArray[bool](int(n), d.maxArraySize))
	case valString:
		return readStringArrayData(d, r, newArray[string](int(n), d.maxArraySize))
	default:
		return nil, fmt.Errorf("invalid array element type: %d", elemType)
	}
}

func readArrayData[T any](d *decoder, r io.Reader, a *array[T]) (any, error) {
	for i := range a.size {
		v, err := read[T](d, r)
		if err != nil {
			return nil, err
		}
		if a.values != nil {
			a.values[i] = v
		}
	}
	return a, nil
}

func readBoolArrayData(d *decoder, r io.Reader, a *array[bool]) (any, error) {
	for i := range a.size {
		v, err := read[uint8](d, r)
		if err != nil {
			return nil, err
		}
		if a.values != nil {
			a.values[i] = v != 0
		}
	}
	return a, nil
}

func readStringArrayData(d *decoder, r io.Reader, a *array[string]) (any, error) {
	for i := range a.size {
		v, err := d.readString(r)
		if err != nil {
			return nil, err
		}
		if a.values != nil {
			a.values[i] = v
		}
	}
	return a, nil
}

// decodeTensorDirectory reads the n tensor directory entries following
// the metadata table: name, dims, quant type, byte offset.
func (d *decoder) decodeTensorDirectory(r io.Reader) ([]*Tensor, uint64, error) {
	tensors := make([]*Tensor, 0, d.numTensor)
	var totalElements uint64

	for i := uint64(0); i < d.numTensor; i++ {
		name, err := d.readString(r)
		if err != nil {
			return nil, 0, parseErr(ErrTruncated, "reading tensor name", err)
		}

		nDims, err := read[uint32](d, r)
		if err != nil {
			return nil, 0, parseErr(ErrTruncated, "reading tensor dims", err)
		}

		shape := make([]uint64, nDims)
		for j := range shape {
			shape[j], err = read[uint64](d, r)
			if err != nil {
				return nil, 0, parseErr(ErrTruncated, "reading tensor shape", err)
			}
		}

		kind, err := read[uint32](d, r)
		if err != nil {
			return nil, 0, parseErr(ErrTruncated, "reading tensor kind", err)
		}
		if !isKnownTensorType(TensorType(kind)) {
			return nil, 0, parseErr(ErrUnknownQuant, fmt.Sprintf("tensor %q type %d", name, kind), nil)
		}

		offset, err := read[uint64](d, r)
		if err != nil {
			return nil, 0, parseErr(ErrTruncated, "reading tensor offset", err)
		}

		t := &Tensor{Name: name, Kind: kind, Offset: offset, Shape: shape}
		tensors = append(tensors, t)
		totalElements += t.Elements()
	}
	return tensors, totalElements, nil
}

func isKnownTensorType(t TensorType) bool {
	return t.TypeSize() > 0
}

// ggufPadding computes the distance from offset to the next alignment
// boundary, matching the reference `ggml_pad`-style formula.
func ggufPadding(offset, alignment int64) int64 {
	return (alignment - offset%alignment) % alignment
}
