package zpaq

import (
	"bytes"
	"strings"
	"testing"
)

type sliceReader struct {
	buf []byte
	pos int
}

func (r *sliceReader) Get() int {
	if r.pos == len(r.buf) {
		return EOF
	}
	c := r.buf[r.pos]
	r.pos++
	return int(c)
}

func (r *sliceReader) Read(p []byte) int {
	n := copy(p, r.buf[r.pos:])
	r.pos += n
	return n
}

type sliceWriter struct {
	buf []byte
}

func (w *sliceWriter) Put(c int)      { w.buf = append(w.buf, byte(c)) }
func (w *sliceWriter) Write(p []byte) { w.buf = append(w.buf, p...) }

func compress(t *testing.T, in []byte) []byte {
	t.Helper()
	var out sliceWriter
	c := NewCompressor(&sliceReader{buf: in}, &out)
	defer c.Close()
	c.WriteTag()
	c.StartBlock(2)
	c.StartSegment()
	c.Compress(len(in) + 1) // short read reports end of data
	c.EndSegment()
	c.EndBlock()
	return out.buf
}

func TestCompressDecompressRoundTrip(t *testing.T) {
	input := []byte(strings.Repeat("Hello world, this is quite something", 10))
	compressed := compress(t, input)
	if len(compressed) == 0 {
		t.Fatal("compressed output is empty")
	}

	var out sliceWriter
	d := NewDecompresser(&sliceReader{buf: compressed}, &out)
	defer d.Close()
	if _, ok := d.FindBlock(); !ok {
		t.Fatal("FindBlock failed on fresh compressed stream")
	}
	if !d.FindFilename() {
		t.Fatal("FindFilename failed")
	}
	d.ReadComment()
	d.Decompress(-1)
	d.ReadSegmentEnd()

	if !bytes.Equal(out.buf, input) {
		t.Fatalf("round trip mismatch: %d bytes in, %d bytes out", len(input), len(out.buf))
	}
}

func TestEmptySegmentRoundTrip(t *testing.T) {
	compressed := compress(t, nil)

	var out sliceWriter
	d := NewDecompresser(&sliceReader{buf: compressed}, &out)
	defer d.Close()
	if _, ok := d.FindBlock(); !ok {
		t.Fatal("FindBlock failed")
	}
	if !d.FindFilename() {
		t.Fatal("FindFilename failed")
	}
	d.ReadComment()
	d.Decompress(-1)
	d.ReadSegmentEnd()

	if len(out.buf) != 0 {
		t.Fatalf("empty segment decoded to %d bytes", len(out.buf))
	}
}

func TestFindBlockSkipsLeadingGarbage(t *testing.T) {
	input := []byte("payload behind garbage")
	stream := append([]byte("not a zpaq stream at all"), compress(t, input)...)

	var out sliceWriter
	d := NewDecompresser(&sliceReader{buf: stream}, &out)
	defer d.Close()
	if _, ok := d.FindBlock(); !ok {
		t.Fatal("FindBlock did not locate the tagged block behind garbage")
	}
	if !d.FindFilename() {
		t.Fatal("FindFilename failed")
	}
	d.ReadComment()
	d.Decompress(-1)
	d.ReadSegmentEnd()

	if !bytes.Equal(out.buf, input) {
		t.Fatalf("decoded %q, want %q", out.buf, input)
	}
}

func TestFindBlockReportsNoBlock(t *testing.T) {
	var out sliceWriter
	d := NewDecompresser(&sliceReader{buf: []byte("nothing here")}, &out)
	defer d.Close()
	if _, ok := d.FindBlock(); ok {
		t.Fatal("FindBlock reported a block in garbage")
	}
}
