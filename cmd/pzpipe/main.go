// Command pzpipe compresses a file into the PCF container using parallel
// pipelined zpaq block compression, and decompresses such containers back.
//
// Usage: pzpipe [-switches] input_file
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/pzpipe/pzpipe"
	"github.com/pzpipe/pzpipe/console"
	"github.com/pzpipe/pzpipe/zpaq"
)

const copyBufSize = 512

type options struct {
	decompress bool
	verbose    bool
	inputName  string
	outputName string
	threads    int
}

// cliError is a rejected command line: either a batch error code (exit with
// that code), a plain message (exit 1), or a bare usage request.
type cliError struct {
	code  int
	msg   string
	usage bool
}

// parseArgs mirrors the reference switch grammar: single-letter switches,
// case-insensitive, with values glued to the letter. Switches after the
// input file are rejected.
func parseArgs(args []string) (options, *cliError) {
	opts := options{threads: autoThreads()}
	inputGiven := false
	outputGiven := false
	threadsGiven := false

	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			if inputGiven {
				return opts, &cliError{usage: true}
			}
			if len(arg) == 1 {
				return opts, &cliError{usage: true}
			}
			switch c := arg[1]; {
			case c == 'T' || c == 't':
				if threadsGiven {
					return opts, &cliError{code: console.ErrOnlySetThreadCountOnce}
				}
				n, ok := parseCount(arg[2:])
				if !ok {
					return opts, &cliError{msg: "ERROR: Only numbers allowed for ZPAQ thread count"}
				}
				if max := runtime.NumCPU(); n > max {
					n = max
				}
				opts.threads = n
				threadsGiven = true
			case c == 'V' || c == 'v':
				if len(arg) > 2 {
					return opts, &cliError{msg: fmt.Sprintf("ERROR: Unknown switch %q", arg)}
				}
				opts.verbose = true
			case c == 'D' || c == 'd':
				if len(arg) > 2 {
					return opts, &cliError{msg: fmt.Sprintf("ERROR: Unknown switch %q", arg)}
				}
				opts.decompress = true
			case c == 'O' || c == 'o':
				if outputGiven {
					return opts, &cliError{code: console.ErrMoreThanOneOutputFile}
				}
				if len(arg) == 2 {
					return opts, &cliError{code: console.ErrDontUseSpace}
				}
				opts.outputName = arg[2:]
				outputGiven = true
			default:
				return opts, &cliError{msg: fmt.Sprintf("ERROR: Unknown switch %q", arg)}
			}
			continue
		}
		if inputGiven {
			return opts, &cliError{code: console.ErrMoreThanOneInputFile}
		}
		opts.inputName = arg
		inputGiven = true
	}

	if !inputGiven {
		return opts, &cliError{usage: true}
	}
	if opts.threads == 0 {
		opts.threads = 2
	}
	return opts, nil
}

func parseCount(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, false
		}
	}
	return n, true
}

func autoThreads() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

func printUsage() {
	console.Print("Usage: pzpipe [-switches] input_file\n\n")
	console.Print("  d            Decompress ZPAQ stream\n")
	console.Print("  o[filename]  Write output to [filename] <[input_file].zpaq or file in header>\n")
	console.Print("  t[count]     Set ZPAQ thread count <auto-detect: %d>\n", autoThreads())
	console.Print("  v            Verbose (debug) mode <off>\n")
	os.Exit(1)
}

func fatalf(format string, args ...interface{}) {
	console.Print(format, args...)
	console.Print("\n")
	os.Exit(1)
}

func main() {
	intr := make(chan os.Signal, 1)
	signal.Notify(intr, os.Interrupt)
	go func() {
		<-intr
		console.Print("\n\nCTRL-C detected\n")
		console.Fatal(console.ErrCtrlC)
	}()

	console.Print("\nPZPipe v%d.%d%c %s/%s - USE AT YOUR OWN RISK!\n",
		pzpipe.BuildVersion.Major, pzpipe.BuildVersion.Minor, pzpipe.BuildVersion.Patch,
		runtime.GOOS, runtime.GOARCH)
	console.Print("  LibZPAQ by Matt Mahoney (https://mattmahoney.net/dc/zpaq.html)\n\n")

	opts, cerr := parseArgs(os.Args[1:])
	if cerr != nil {
		switch {
		case cerr.usage:
			printUsage()
		case cerr.code != 0:
			console.Fatal(cerr.code)
		default:
			fatalf("%s", cerr.msg)
		}
	}

	console.DebugMode = opts.verbose
	log.SetLevel(log.InfoLevel)
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}
	zpaq.SetErrorHandler(func(msg string) {
		console.Print("\nERROR: zpaq: %s\n", msg)
		os.Exit(2)
	})

	var fin *os.File
	var finLength int64
	if opts.inputName == "stdin" {
		if !opts.decompress {
			fatalf("ERROR: stdin input is only supported for decompression")
		}
		fin = os.Stdin
	} else {
		f, err := os.Open(opts.inputName)
		if err != nil {
			fatalf("ERROR: Input file %q doesn't exist", opts.inputName)
		}
		fin = f
		if st, err := f.Stat(); err == nil {
			finLength = st.Size()
		}
	}

	if opts.decompress {
		name, err := pzpipe.ReadHeader(fin)
		if err != nil {
			switch e := err.(type) {
			case *pzpipe.BadVersionError:
				console.Print("Input file %s was made with a different PZPipe version\n", opts.inputName)
				fatalf("PCF version info: %d.%d.%d", e.Got.Major, e.Got.Minor, e.Got.Patch)
			default:
				fatalf("Input file %s has no valid PCF header", opts.inputName)
			}
		}
		if opts.outputName == "" {
			opts.outputName = name
		}
	} else if opts.outputName == "" {
		opts.outputName = opts.inputName + ".zpaq"
	}

	var fout *os.File
	if opts.outputName == "stdout" {
		fout = os.Stdout
	} else {
		if _, err := os.Stat(opts.outputName); err == nil {
			console.Print("Output file %q exists. Overwrite (y/n)? ", opts.outputName)
			if c := console.GetCharWithEcho(); c != 'y' && c != 'Y' {
				console.Print("\n")
				os.Exit(0)
			}
			console.Print("\n")
		}
		f, err := os.Create(opts.outputName)
		if err != nil {
			fatalf("ERROR: Can't create output file %q", opts.outputName)
		}
		fout = f
	}

	console.Print("Input file: %s\n", opts.inputName)
	console.Print("Output file: %s\n\n", opts.outputName)

	start := time.Now()
	if opts.decompress {
		decompressFile(opts, fin, fout, finLength)
	} else {
		compressFile(opts, fin, fout, finLength)
	}
	console.Print("\nDone.\n")
	console.PrintTime(time.Since(start))
}

func compressFile(opts options, fin *os.File, fout *os.File, finLength int64) {
	if err := pzpipe.WriteHeader(fout, opts.inputName); err != nil {
		fatalf("ERROR: %v", err)
	}
	w := pzpipe.NewWriter(fout, opts.threads)

	// Uncompressed-data record: the tag goes through the compressor.
	if _, err := w.Write([]byte{0}); err != nil {
		fatalf("ERROR: %v", err)
	}

	showUI := console.IsTerminal(os.Stderr.Fd()) && !console.DebugMode
	buf := make([]byte, copyBufSize)
	var pos int64
	for {
		n, err := fin.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				fatalf("ERROR: %v", werr)
			}
			pos += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			fatalf("ERROR: reading %q: %v", opts.inputName, err)
		}
		if showUI {
			console.PrintWorkSign(true)
			if finLength > 0 {
				console.ShowProgress(float64(pos)/float64(finLength)*100, true, true)
			}
		}
	}
	if err := w.Close(); err != nil {
		fatalf("ERROR: %v", err)
	}

	if fout != os.Stdout {
		if err := fout.Close(); err != nil {
			fatalf("ERROR: %v", err)
		}
		if st, err := os.Stat(opts.outputName); err == nil {
			if showUI {
				console.ShowProgress(100, true, false)
			}
			console.Print("- New size: %d instead of %d     \n", st.Size(), finLength)
		}
	}
}

func decompressFile(opts options, fin *os.File, fout *os.File, finLength int64) {
	src := &countingReader{r: fin}
	r := pzpipe.NewReader(src, opts.threads)
	defer r.Close()

	showUI := console.IsTerminal(os.Stderr.Fd()) && !console.DebugMode
	if showUI {
		console.ShowProgress(0, false, false)
	}

	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		fatalf("ERROR: %v", err)
	}
	if tag[0] != 0 {
		fatalf("ERROR: Unknown record tag 0x%02x", tag[0])
	}

	dst := io.Writer(fout)
	if showUI && finLength > 0 {
		dst = &progressWriter{w: fout, read: src, total: finLength}
	}
	if _, err := pzpipe.CopyPayload(dst, r); err != nil {
		fatalf("ERROR: %v", err)
	}
	if fout != os.Stdout {
		if err := fout.Close(); err != nil {
			fatalf("ERROR: %v", err)
		}
	}
	if showUI {
		console.ShowProgress(100, true, false)
	}
}

// countingReader tracks how much of the compressed input has been consumed,
// which is what decompression progress is measured against.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// progressWriter forwards decoded bytes and refreshes the progress display.
type progressWriter struct {
	w     io.Writer
	read  *countingReader
	total int64
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	console.PrintWorkSign(true)
	console.ShowProgress(float64(p.read.n)/float64(p.total)*100, true, true)
	return n, err
}
