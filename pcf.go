// Package pzpipe implements the PCF ("PreCompressed File") container and
// parallel pipelined zpaq stream adapters behind it. Writer splits the input
// into fixed-size blocks and compresses them on concurrent workers while
// emitting them in order; Reader scans the compressed stream for block
// boundaries and decodes blocks concurrently, delivering bytes in their
// original order.
package pzpipe

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ChunkSize is the number of input bytes compressed into each zpaq block,
// and the sizing basis for decode buffers.
const ChunkSize = 262144 * 4 * 10 // 10 MB

const headerMagic = "PCF"

// Version is a PCF container version triple. Patch is a single ASCII
// letter.
type Version struct {
	Major uint8
	Minor uint8
	Patch byte
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d%c", v.Major, v.Minor, v.Patch)
}

// BuildVersion is the container version this build reads and writes. There
// is no cross-version compatibility; ReadHeader rejects everything else.
var BuildVersion = Version{Major: 0, Minor: 2, Patch: 'a'}

// ErrBadHeader is returned by ReadHeader when the PCF magic is missing.
var ErrBadHeader = errors.New("no valid PCF header")

// BadVersionError is returned by ReadHeader when the file was produced by a
// different pzpipe version.
type BadVersionError struct {
	Got Version
}

func (e *BadVersionError) Error() string {
	return fmt.Sprintf("file was made with a different PZPipe version (PCF version info: %d.%d.%d)",
		e.Got.Major, e.Got.Minor, e.Got.Patch)
}

// WriteHeader emits the PCF header: the magic, the build version triple and
// the basename of inputName terminated by a NUL. An empty name encodes as a
// single NUL.
func WriteHeader(w io.Writer, inputName string) error {
	var hdr bytes.Buffer
	hdr.WriteString(headerMagic)
	hdr.WriteByte(BuildVersion.Major)
	hdr.WriteByte(BuildVersion.Minor)
	hdr.WriteByte(BuildVersion.Patch)
	hdr.WriteString(stripPath(inputName))
	hdr.WriteByte(0)
	_, err := w.Write(hdr.Bytes())
	return errors.Wrap(err, "writing PCF header")
}

// ReadHeader parses and validates the PCF header from r and returns the
// embedded original filename, which may be empty.
func ReadHeader(r io.Reader) (string, error) {
	var buf [3]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", errors.Wrap(err, "reading PCF magic")
	}
	if string(buf[:]) != headerMagic {
		return "", ErrBadHeader
	}
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return "", errors.Wrap(err, "reading PCF version")
	}
	got := Version{Major: buf[0], Minor: buf[1], Patch: buf[2]}
	if got != BuildVersion {
		return "", &BadVersionError{Got: got}
	}
	var name strings.Builder
	var c [1]byte
	for {
		if _, err := io.ReadFull(r, c[:]); err != nil {
			return "", errors.Wrap(err, "reading embedded filename")
		}
		if c[0] == 0 {
			return name.String(), nil
		}
		name.WriteByte(c[0])
	}
}

// stripPath returns everything after the last path separator, or name
// unchanged if it contains none.
func stripPath(name string) string {
	if i := strings.LastIndexByte(name, filepath.Separator); i >= 0 {
		return name[i+1:]
	}
	return name
}
