// Package zpaq binds the libzpaq compression library by Matt Mahoney
// (https://mattmahoney.net/dc/zpaq.html). It exposes the library's streaming
// Compressor and Decompresser through Go Reader/Writer callback interfaces.
package zpaq

// #cgo CXXFLAGS: -std=c++11 -O2
// #cgo LDFLAGS: -lzpaq -lstdc++
// #include <stdlib.h>
// #include "shim.h"
import "C"

import (
	"fmt"
	"os"
	"runtime/cgo"
	"unsafe"
)

// EOF is the end-of-stream sentinel returned by Reader.Get.
const EOF = -1

// Reader supplies bytes to the codec. Get returns the next byte (0..255) or
// EOF. Read fills p with up to len(p) bytes and returns the count, 0 at end
// of stream.
type Reader interface {
	Get() int
	Read(p []byte) int
}

// Writer receives bytes from the codec.
type Writer interface {
	Put(c int)
	Write(p []byte)
}

var errorHandler = func(msg string) {
	fmt.Fprintf(os.Stderr, "Oops: %s\n", msg)
	os.Exit(2)
}

// SetErrorHandler installs fn as the callback invoked when libzpaq reports an
// unrecoverable error (bad input, out of memory). fn must terminate the
// process; the library cannot continue after an error.
func SetErrorHandler(fn func(msg string)) {
	errorHandler = fn
}

// Error reports a fatal codec-level error through the installed handler, the
// same path libzpaq itself uses. It does not return.
func Error(msg string) {
	errorHandler(msg)
}

// Compressor wraps libzpaq::Compressor. All input is pulled from the Reader
// given at construction and all compressed output is pushed to the Writer.
type Compressor struct {
	ptr     *C.zpaq_compressor
	in, out cgo.Handle
}

// NewCompressor creates a Compressor reading from r and writing to w. It is
// the caller's responsibility to call Close when done, otherwise underlying
// objects in the zpaq library will not be freed.
func NewCompressor(r Reader, w Writer) *Compressor {
	in := cgo.NewHandle(r)
	out := cgo.NewHandle(w)
	return &Compressor{
		ptr: C.zpaq_compressor_new(C.uintptr_t(in), C.uintptr_t(out)),
		in:  in,
		out: out,
	}
}

// WriteTag writes a 13-byte locator tag so the block can be found by
// Decompresser.FindBlock when embedded in arbitrary data.
func (c *Compressor) WriteTag() {
	C.zpaq_compressor_write_tag(c.ptr)
}

// StartBlock begins a block at the given method level (1=fast, 2=mid,
// 3=max).
func (c *Compressor) StartBlock(level int) {
	C.zpaq_compressor_start_block(c.ptr, C.int(level))
}

// StartSegment begins a segment with no stored filename or comment.
func (c *Compressor) StartSegment() {
	C.zpaq_compressor_start_segment(c.ptr)
}

// Compress compresses up to n bytes from the Reader, fewer if end of stream
// is reached first. It reports whether the Reader has more input.
func (c *Compressor) Compress(n int) bool {
	return C.zpaq_compressor_compress(c.ptr, C.int(n)) != 0
}

// EndSegment ends the current segment.
func (c *Compressor) EndSegment() {
	C.zpaq_compressor_end_segment(c.ptr)
}

// EndBlock ends the current block.
func (c *Compressor) EndBlock() {
	C.zpaq_compressor_end_block(c.ptr)
}

// Close releases all the resources occupied by c.
// c cannot be used after the release.
func (c *Compressor) Close() {
	if c.ptr == nil {
		return
	}
	C.zpaq_compressor_free(c.ptr)
	c.ptr = nil
	c.in.Delete()
	c.out.Delete()
}

// Decompresser wraps libzpaq::Decompresser.
type Decompresser struct {
	ptr     *C.zpaq_decompresser
	in, out cgo.Handle
}

// NewDecompresser creates a Decompresser reading compressed data from r and
// writing decoded data to w. It is the caller's responsibility to call Close
// when done.
func NewDecompresser(r Reader, w Writer) *Decompresser {
	in := cgo.NewHandle(r)
	out := cgo.NewHandle(w)
	return &Decompresser{
		ptr: C.zpaq_decompresser_new(C.uintptr_t(in), C.uintptr_t(out)),
		in:  in,
		out: out,
	}
}

// FindBlock scans the input for the start of the next block. On success it
// returns the estimated memory in bytes required to decompress, and true.
func (d *Decompresser) FindBlock() (mem float64, ok bool) {
	var m C.double
	found := C.zpaq_decompresser_find_block(d.ptr, &m)
	return float64(m), found != 0
}

// FindFilename reads to the start of the next segment within the current
// block, reporting whether one exists.
func (d *Decompresser) FindFilename() bool {
	return C.zpaq_decompresser_find_filename(d.ptr) != 0
}

// ReadComment reads and discards the current segment's comment.
func (d *Decompresser) ReadComment() {
	C.zpaq_decompresser_read_comment(d.ptr)
}

// Decompress decodes up to n bytes of output, or all remaining segment data
// when n is -1. It reports whether more output remains in the segment.
func (d *Decompresser) Decompress(n int) bool {
	return C.zpaq_decompresser_decompress(d.ptr, C.int(n)) != 0
}

// ReadSegmentEnd skips any remaining segment data and reads the end-of-
// segment marker. Calling it without a prior Decompress skips the segment.
func (d *Decompresser) ReadSegmentEnd() {
	C.zpaq_decompresser_read_segment_end(d.ptr)
}

// Close releases all the resources occupied by d.
// d cannot be used after the release.
func (d *Decompresser) Close() {
	if d.ptr == nil {
		return
	}
	C.zpaq_decompresser_free(d.ptr)
	d.ptr = nil
	d.in.Delete()
	d.out.Delete()
}

//export pzpipeGet
func pzpipeGet(h C.uintptr_t) C.int {
	return C.int(cgo.Handle(h).Value().(Reader).Get())
}

//export pzpipeRead
func pzpipeRead(h C.uintptr_t, buf *C.char, n C.int) C.int {
	r := cgo.Handle(h).Value().(Reader)
	return C.int(r.Read(unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(n))))
}

//export pzpipePut
func pzpipePut(h C.uintptr_t, c C.int) {
	cgo.Handle(h).Value().(Writer).Put(int(c))
}

//export pzpipeWrite
func pzpipeWrite(h C.uintptr_t, buf *C.char, n C.int) {
	w := cgo.Handle(h).Value().(Writer)
	w.Write(unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(n)))
}

//export pzpipeError
func pzpipeError(msg *C.char) {
	errorHandler(C.GoString(msg))
}
