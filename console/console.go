// Package console implements the terminal side of pzpipe: messages,
// overwrite prompts, the work spinner and the progress display. Everything
// is printed directly to the controlling terminal rather than stdout, so
// nothing mixes with stream data when stdout carries the output file.
package console

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DebugMode suppresses the spinner and progress display in favor of log
// output. Set from the -v switch.
var DebugMode bool

var (
	ttyOnce sync.Once
	tty     *os.File
)

func terminal() *os.File {
	ttyOnce.Do(func() {
		f, err := openTerminal()
		if err != nil {
			tty = os.Stderr
			return
		}
		tty = f
	})
	return tty
}

// Print formats and writes a message to the controlling terminal.
func Print(format string, args ...interface{}) {
	fmt.Fprintf(terminal(), format, args...)
}

// GetCharWithEcho reads one character of user input, as for the overwrite
// prompt. The terminal is line buffered, so the echo is the terminal's own.
func GetCharWithEcho() byte {
	var b [1]byte
	if _, err := os.Stdin.Read(b[:]); err != nil {
		return 0
	}
	return b[0]
}

var workSigns = [4]byte{'|', '/', '-', '\\'}

var (
	workSignIdx  int
	workSignTime = time.Now()
)

// PrintWorkSign rotates the busy spinner at a 250 ms cadence. With
// withBackspace it erases its previous output first.
func PrintWorkSign(withBackspace bool) {
	if DebugMode {
		return
	}
	if time.Since(workSignTime) >= 250*time.Millisecond {
		workSignIdx = (workSignIdx + 1) % len(workSigns)
		workSignTime = time.Now()
		if withBackspace {
			Print("\b\b\b\b\b\b")
		}
		Print("%c     ", workSigns[workSignIdx])
	} else if !withBackspace {
		Print("%c     ", workSigns[workSignIdx])
	}
}

var progressTime time.Time

// ShowProgress updates the percentage display. With checkTime set, updates
// are throttled to one per 250 ms.
func ShowProgress(percent float64, useBackspaces, checkTime bool) {
	if DebugMode {
		return
	}
	if checkTime && time.Since(progressTime) < 250*time.Millisecond {
		return
	}
	if useBackspaces {
		// Remove the work sign and its padding, then the previous
		// percentage.
		Print("\b\b\b\b\b\b")
		Print("\b\b\b\b\b\b\b\b")
	}
	Print("%6.2f%% ", percent)
	PrintWorkSign(false)
	progressTime = time.Now()
}

// PrintTime pretty-prints an elapsed duration in the largest useful units.
func PrintTime(d time.Duration) {
	t := d.Milliseconds()
	Print("Time: ")
	switch {
	case t < 1000:
		Print("%d millisecond(s)\n", t)
	case t < 1000*60:
		Print("%d second(s), %d millisecond(s)\n", t/1000, t%1000)
	case t < 1000*60*60:
		Print("%d minute(s), %d second(s)\n", t/(1000*60), (t/1000)%60)
	case t < 1000*60*60*24:
		Print("%d hour(s), %d minute(s), %d second(s)\n",
			t/(1000*60*60), (t/(1000*60))%60, (t/1000)%60)
	default:
		Print("%d day(s), %d hour(s), %d minute(s)\n",
			t/(1000*60*60*24), (t/(1000*60*60))%24, (t/(1000*60))%60)
	}
}
