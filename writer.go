package pzpipe

import (
	"io"
	"runtime"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/pzpipe/pzpipe/zpaq"
)

// methodLevel is the zpaq compression method passed to StartBlock
// (mid compression).
const methodLevel = 2

// Writer is an io.WriteCloser that zpaq-compresses everything written to it
// into the wrapped io.Writer. The input stream is split into consecutive
// ChunkSize blocks (the last may be shorter); each block is compressed on
// its own goroutine and finished blocks are written downstream strictly in
// submission order. At most maxThreads blocks are in flight at any instant:
// writes block once the pipeline is full until the head block has been
// drained.
type Writer struct {
	w          io.Writer
	buf        []byte // current input block, grows to ChunkSize
	pending    []*compressBlock
	maxThreads int
	seq        uint64
	closed     bool
}

// compressBlock is one in-flight compression task. The worker goroutine owns
// in and out until done is closed; afterwards the draining side owns them.
type compressBlock struct {
	seq  uint64
	out  appendWriter
	done chan struct{}
}

// NewWriter creates a Writer emitting compressed blocks to w with up to
// maxThreads blocks compressing concurrently. maxThreads < 1 selects the
// host concurrency, floored to 2.
func NewWriter(w io.Writer, maxThreads int) *Writer {
	if maxThreads < 1 {
		maxThreads = autoThreadCount()
	}
	return &Writer{
		w:          w,
		buf:        make([]byte, 0, ChunkSize),
		maxThreads: maxThreads,
	}
}

func autoThreadCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// Write buffers p, compressing and emitting a block every time ChunkSize
// bytes have accumulated.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("write to closed Writer")
	}
	written := 0
	for len(p) > 0 {
		if len(w.buf) == ChunkSize {
			if err := w.flushBlock(false); err != nil {
				return written, err
			}
		}
		n := ChunkSize - len(w.buf)
		if n > len(p) {
			n = len(p)
		}
		w.buf = append(w.buf, p[:n]...)
		p = p[n:]
		written += n
	}
	return written, nil
}

// Close compresses the remaining partial block and waits for every in-flight
// block to be written downstream. It is idempotent and does not close the
// wrapped writer.
//
// Close appends a single zero byte to the logical stream before flushing.
// The reference pzpipe build does the same, and its decoder drops the last
// decoded byte to compensate, so the extra byte is required for files to be
// interchangeable in both directions. Reader-side stripping is done by
// CopyPayload.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	_, err := w.Write([]byte{0})
	w.closed = true
	if err != nil {
		return err
	}
	return w.flushBlock(true)
}

// flushBlock hands the current input buffer to a new worker and drains
// finished blocks. With final set it drains everything, joining each worker;
// otherwise it joins only as needed to stay within maxThreads.
func (w *Writer) flushBlock(final bool) error {
	blk := &compressBlock{seq: w.seq, done: make(chan struct{})}
	w.seq++
	in := w.buf
	w.buf = make([]byte, 0, ChunkSize)
	w.pending = append(w.pending, blk)
	log.Debugf("compressing block %d (%d bytes)", blk.seq, len(in))
	go blk.compress(in)
	return w.drain(final)
}

func (b *compressBlock) compress(in []byte) {
	defer close(b.done)
	b.out.buf = make([]byte, 0, len(in)+len(in)/64+512)
	c := zpaq.NewCompressor(&memReader{buf: in}, &b.out)
	defer c.Close()
	c.WriteTag()
	c.StartBlock(methodLevel)
	c.StartSegment()
	// Always request a full chunk; the reader reports end of data on a
	// short final block.
	c.Compress(ChunkSize)
	c.EndSegment()
	c.EndBlock()
}

func (b *compressBlock) finished() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (w *Writer) drain(final bool) error {
	for len(w.pending) > 0 {
		head := w.pending[0]
		if !final && len(w.pending) < w.maxThreads && !head.finished() {
			// The pipeline has slots free and the head is still
			// compressing; let it run and come back on the next block.
			break
		}
		<-head.done
		if _, err := w.w.Write(head.out.buf); err != nil {
			return errors.Wrapf(err, "writing compressed block %d", head.seq)
		}
		log.Debugf("emitted block %d (%d compressed bytes)", head.seq, len(head.out.buf))
		w.pending = w.pending[1:]
	}
	return nil
}
