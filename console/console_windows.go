//go:build windows

package console

import (
	"os"

	"golang.org/x/sys/windows"
)

func openTerminal() (*os.File, error) {
	return os.OpenFile("CONOUT$", os.O_WRONLY, 0)
}

// IsTerminal reports whether fd is attached to a console.
func IsTerminal(fd uintptr) bool {
	var mode uint32
	return windows.GetConsoleMode(windows.Handle(fd), &mode) == nil
}
