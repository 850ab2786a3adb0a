package pzpipe

import (
	"io"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pzpipe/pzpipe/zpaq"
)

// scanLookback is how many bytes before the scan cursor are retained across
// block extractions; older bytes are freed. It matches the codec's 64 KiB
// input read-ahead. Because Read serves one byte per call, the cursor itself
// lands on the block boundary and the retained bytes are not scanned again.
const scanLookback = 1 << 16

// blockScanner buffers the compressed source on demand and recognizes
// complete zpaq blocks so each can be handed to an independent decode
// worker. It implements zpaq.Reader for the probe Decompresser; the cursor
// and end-of-stream marker are indices into the owned buffer, immune to
// reallocation.
type blockScanner struct {
	src  io.Reader
	buf  []byte
	pos  int
	mark int // cut made at the previous extraction; next block starts at or after it
	end  int // index of source end within buf, -1 while unknown
	err  error
}

func newBlockScanner(src io.Reader) *blockScanner {
	return &blockScanner{src: src, end: -1}
}

func (s *blockScanner) Get() int {
	if s.end >= 0 && s.pos == s.end {
		return zpaq.EOF
	}
	if s.pos == len(s.buf) && !s.fill() {
		return zpaq.EOF
	}
	c := s.buf[s.pos]
	s.pos++
	return int(c)
}

// Read hands out a single byte per call. The codec pulls input through an
// up-to-64-KiB internal read-ahead; serving it wholesale would leave the
// cursor as much as 64 KiB past the block boundary when the probe
// Decompresser is discarded, losing the read-ahead bytes and making small
// blocks scan twice. One byte per call keeps the cursor on the boundary.
func (s *blockScanner) Read(p []byte) int {
	if len(p) == 0 {
		return 0
	}
	c := s.Get()
	if c == zpaq.EOF {
		return 0
	}
	p[0] = byte(c)
	return 1
}

// fill reads up to ChunkSize more source bytes into the buffer, recording
// the end of the stream when it is reached. It reports whether a byte is now
// available at the cursor.
func (s *blockScanner) fill() bool {
	if s.end >= 0 || s.err != nil {
		return false
	}
	start := len(s.buf)
	s.buf = append(s.buf, make([]byte, ChunkSize)...)
	n, err := io.ReadFull(s.src, s.buf[start:])
	s.buf = s.buf[:start+n]
	switch err {
	case nil:
	case io.EOF, io.ErrUnexpectedEOF:
		s.end = start + n
	default:
		s.err = err
		s.end = start + n
	}
	return s.pos < len(s.buf)
}

// scanBlock advances the cursor past the next complete block and returns the
// byte range a worker needs to decode it. The probe skips the segment data
// (ReadSegmentEnd without a Decompress), so nothing is decoded twice.
func (s *blockScanner) scanBlock() ([]byte, bool) {
	d := zpaq.NewDecompresser(s, nopWriter{})
	defer d.Close()
	if _, ok := d.FindBlock(); !ok {
		return nil, false
	}
	if !d.FindFilename() {
		return nil, false
	}
	d.ReadComment()
	d.ReadSegmentEnd()
	return s.extract(), true
}

// extract hands back the bytes scanned since the previous extraction: the
// complete block, preceded by at most a few residual bytes of the previous
// block's trailer, which the worker's own FindBlock skips. The scanner then
// frees everything more than scanLookback bytes behind the cursor and marks
// the cursor as the start of the next block's range.
func (s *blockScanner) extract() []byte {
	block := append([]byte(nil), s.buf[s.mark:s.pos]...)
	keep := s.pos - scanLookback
	if keep < 0 {
		keep = 0
	}
	tail := append([]byte(nil), s.buf[keep:]...)
	s.buf = tail
	s.pos -= keep
	if s.end >= 0 {
		s.end -= keep
	}
	s.mark = s.pos
	return block
}

// decompressBlock is one in-flight decompression task. The worker goroutine
// owns the compressed input and decoded output until done is closed.
type decompressBlock struct {
	seq  uint64
	out  boundedWriter
	done chan struct{}
}

func (b *decompressBlock) decompress(in []byte) {
	defer close(b.done)
	d := zpaq.NewDecompresser(&memReader{buf: in}, &b.out)
	defer d.Close()
	if _, ok := d.FindBlock(); !ok {
		return
	}
	if !d.FindFilename() {
		return
	}
	d.ReadComment()
	d.Decompress(-1)
	d.ReadSegmentEnd()
}

// Reader is an io.ReadCloser that decodes a stream produced by Writer.
// Blocks are located by the scanner and decoded on up to maxThreads worker
// goroutines; decoded bytes are delivered strictly in block order. Reader
// takes ownership of the wrapped source: Close closes it when it is an
// io.Closer.
type Reader struct {
	src        io.Reader
	scanner    *blockScanner
	pending    []*decompressBlock
	view       []byte
	maxThreads int
	seq        uint64
	eof        bool
}

// NewReader creates a Reader decoding the compressed stream r with up to
// maxThreads blocks decoding concurrently. maxThreads < 1 selects the host
// concurrency, floored to 2.
func NewReader(r io.Reader, maxThreads int) *Reader {
	if maxThreads < 1 {
		maxThreads = autoThreadCount()
	}
	return &Reader{
		src:        r,
		scanner:    newBlockScanner(r),
		maxThreads: maxThreads,
	}
}

func (r *Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(r.view) == 0 {
		if r.eof {
			return 0, io.EOF
		}
		if err := r.underflow(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.view)
	r.view = r.view[n:]
	return n, nil
}

// underflow refills the worker pipeline to maxThreads, then joins the head
// worker and takes its decoded output as the current view. An empty pipeline
// after refilling, or a block that decoded to nothing, marks end of stream.
func (r *Reader) underflow() error {
	for len(r.pending) < r.maxThreads {
		in, ok := r.scanner.scanBlock()
		if !ok {
			break
		}
		blk := &decompressBlock{seq: r.seq, done: make(chan struct{})}
		r.seq++
		blk.out.buf = make([]byte, ChunkSize*10)
		r.pending = append(r.pending, blk)
		log.Debugf("decompressing block %d (%d compressed bytes)", blk.seq, len(in))
		go blk.decompress(in)
	}
	if err := r.scanner.err; err != nil {
		return errors.Wrap(err, "reading compressed stream")
	}
	if len(r.pending) == 0 {
		r.eof = true
		return nil
	}
	head := r.pending[0]
	<-head.done
	r.pending = r.pending[1:]
	if head.out.n == 0 {
		r.eof = true
		return nil
	}
	log.Debugf("block %d decoded to %d bytes", head.seq, head.out.n)
	r.view = head.out.buf[:head.out.n]
	return nil
}

// Close joins any outstanding workers and closes the wrapped source.
func (r *Reader) Close() error {
	for _, blk := range r.pending {
		<-blk.done
	}
	r.pending = nil
	r.view = nil
	r.eof = true
	if c, ok := r.src.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// CopyPayload copies an uncompressed-record payload from src to dst. The
// compressed stream carries one extra zero byte at its very end (see
// Writer.Close); CopyPayload holds one byte of lookahead and drops the final
// byte of the stream when, and only when, it is zero.
func CopyPayload(dst io.Writer, src io.Reader) (int64, error) {
	var written int64
	var held byte
	var have bool
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if have {
				if werr := writeByte(dst, held); werr != nil {
					return written, werr
				}
				written++
			}
			held = buf[n-1]
			have = true
			if n > 1 {
				if _, werr := dst.Write(buf[:n-1]); werr != nil {
					return written, werr
				}
				written += int64(n - 1)
			}
		}
		if err == io.EOF {
			if have && held != 0 {
				if werr := writeByte(dst, held); werr != nil {
					return written, werr
				}
				written++
			}
			return written, nil
		}
		if err != nil {
			return written, err
		}
	}
}

func writeByte(w io.Writer, c byte) error {
	var b [1]byte
	b[0] = c
	_, err := w.Write(b[:])
	return err
}
