package pzpipe

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countBlocks runs the boundary scanner over a compressed stream and counts
// the complete blocks it recognizes.
func countBlocks(t *testing.T, compressed []byte) int {
	t.Helper()
	s := newBlockScanner(bytes.NewReader(compressed))
	n := 0
	for {
		if _, ok := s.scanBlock(); !ok {
			break
		}
		n++
	}
	require.NoError(t, s.err)
	return n
}

func TestScannerEmptySource(t *testing.T) {
	s := newBlockScanner(bytes.NewReader(nil))
	_, ok := s.scanBlock()
	assert.False(t, ok)
}

func TestScannerGarbageSource(t *testing.T) {
	// No zpaq locator tag anywhere: the scanner must report no blocks
	// instead of hanging or erroring.
	s := newBlockScanner(bytes.NewReader(bytes.Repeat([]byte{0xAA, 0x55}, 4096)))
	_, ok := s.scanBlock()
	assert.False(t, ok)
}

func TestScannerExtractsEachBlockOnce(t *testing.T) {
	var comp bytes.Buffer
	w := NewWriter(&comp, 1)
	payload := testPayload(50_000)
	_, err := w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// A small stream's blocks sit well inside the retained lookback
	// window; the scanner must still see each exactly once.
	require.Equal(t, 1, countBlocks(t, comp.Bytes()))
}

func TestReaderEOFSticky(t *testing.T) {
	var comp bytes.Buffer
	w := NewWriter(&comp, 1)
	_, err := w.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r := NewReader(bytes.NewReader(comp.Bytes()), 2)
	defer r.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 0}, out, "raw decoded stream carries the appended zero")

	n, err := r.Read(make([]byte, 16))
	assert.Zero(t, n)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderClosesSource(t *testing.T) {
	var comp bytes.Buffer
	w := NewWriter(&comp, 1)
	require.NoError(t, w.Close())

	src := &closeRecorder{Reader: bytes.NewReader(comp.Bytes())}
	r := NewReader(src, 1)
	_, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.True(t, src.closed)
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestCopyPayloadStripsFinalZero(t *testing.T) {
	cases := []struct {
		in   []byte
		want []byte
	}{
		{nil, nil},
		{[]byte{0}, nil},
		{[]byte{7}, []byte{7}},
		{[]byte{1, 2, 3, 0}, []byte{1, 2, 3}},
		{[]byte{1, 2, 0, 0}, []byte{1, 2, 0}},
		{[]byte{1, 2, 3}, []byte{1, 2, 3}},
		{[]byte{0, 0, 0}, []byte{0, 0}},
	}
	for _, c := range cases {
		var out bytes.Buffer
		n, err := CopyPayload(&out, bytes.NewReader(c.in))
		require.NoError(t, err)
		assert.Equal(t, c.want, out.Bytes(), "input %x", c.in)
		assert.EqualValues(t, len(c.want), n)
	}
}

func TestCopyPayloadOneBytePerRead(t *testing.T) {
	// Exercise the lookahead across minimal reads.
	src := oneByteReader{data: []byte{9, 8, 0, 7, 0}}
	var out bytes.Buffer
	_, err := CopyPayload(&out, &src)
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8, 0, 7}, out.Bytes())
}

// oneByteReader returns one byte per Read call.
type oneByteReader struct {
	data []byte
	pos  int
}

func (r *oneByteReader) Read(p []byte) (int, error) {
	if r.pos == len(r.data) {
		return 0, io.EOF
	}
	p[0] = r.data[r.pos]
	r.pos++
	return 1, nil
}
