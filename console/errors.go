package console

import "os"

// Batch error levels. Each doubles as the process exit code.
const (
	ErrDontUseSpace           = 10
	ErrMoreThanOneOutputFile  = 11
	ErrMoreThanOneInputFile   = 12
	ErrCtrlC                  = 13
	ErrOnlySetThreadCountOnce = 17
)

func errorText(code int) string {
	switch code {
	case ErrDontUseSpace:
		return "Please don't use a space between the -o switch and the output filename"
	case ErrMoreThanOneOutputFile:
		return "More than one output file given"
	case ErrMoreThanOneInputFile:
		return "More than one input file given"
	case ErrCtrlC:
		return "CTRL-C detected"
	case ErrOnlySetThreadCountOnce:
		return "ZPAQ thread count can only be set once"
	}
	return "Unknown error"
}

// Fatal prints the message for the given batch error code and exits with
// that code.
func Fatal(code int) {
	Print("\nERROR %d: %s\n", code, errorText(code))
	os.Exit(code)
}
