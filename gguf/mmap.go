package gguf

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// segmentSize bounds a single mmap call to 1 GiB so files larger than a
// platform's maximum single mapping still load; segments are mapped
// back-to-back and reads crossing a boundary are reassembled byte-wise.
const segmentSize = 1 << 30

// mappedFile is a read-only memory mapping of a file, chunked into
// fixed-size segments. Lifetime equals the owning File/engine.
type mappedFile struct {
	segments [][]byte
	size     int64
}

func mapFile(f *os.File) (*mappedFile, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &mappedFile{size: 0}, nil
	}

	mf := &mappedFile{size: size}
	for off := int64(0); off < size; off += segmentSize {
		length := min(segmentSize, size-off)
		seg, err := unix.Mmap(int(f.Fd()), off, int(length), unix.PROT_READ, unix.MAP_SHARED)
		if err != nil {
			mf.unmapAll()
			return nil, fmt.Errorf("mmap segment at %d (%d bytes): %w", off, length, err)
		}
		mf.segments = append(mf.segments, seg)
	}
	return mf, nil
}

func (mf *mappedFile) unmapAll() {
	for _, seg := range mf.segments {
		_ = unix.Munmap(seg)
	}
	mf.segments = nil
}

func (mf *mappedFile) Close() error {
	mf.unmapAll()
	return nil
}

func (mf *mappedFile) Len() int64 { return mf.size }

// ReadAt copies length bytes starting at off into dst, crossing segment
// boundaries byte-wise if necessary.
func (mf *mappedFile) ReadAt(dst []byte, off int64, length int) {
	if length == 0 {
		return
	}
	segIdx := off / segmentSize
	segOff := off % segmentSize
	written := 0
	for written < length {
		seg := mf.segments[segIdx]
		n := min(length-written, len(seg)-int(segOff))
		copy(dst[written:written+n], seg[segOff:int(segOff)+n])
		written += n
		segIdx++
		segOff = 0
	}
}

// Contiguous returns a direct slice into the mapping when [off, off+length)
// lies entirely within one segment (the common case for all but the
// largest tensors), avoiding a copy. The ok=false path falls back to a
// byte-wise reassembled copy via ReadAt.
func (mf *mappedFile) Contiguous(off int64, length int) (data []byte, ok bool) {
	segIdx := off / segmentSize
	segOff := off % segmentSize
	if int(segIdx) >= len(mf.segments) {
		return nil, false
	}
	seg := mf.segments[segIdx]
	if int(segOff)+length > len(seg) {
		return nil, false
	}
	return seg[segOff : int(segOff)+length], true
}
