package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Logo is printed above interactive runs
const Logo = `
  _                         _ _
 | | _____  _ __   __ _  __| | |
 | |/ / _ \| '_ \ / _' |/ _' | |
 |   < (_) | | | | (_| | (_| | |
 |_|\_\___/|_| |_|\__,_|\__,_|_|
`

var (
	outMu sync.Mutex
	out   io.Writer = os.Stdout
	color           = detectColor()
	quiet bool
)

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// detectColor enables ANSI colors only on a terminal without NO_COLOR
func detectColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		if !color {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects all terminal output; colors are disabled for non-files
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	out = w
	if f, ok := w.(*os.File); ok {
		color = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(f.Fd()))
	} else {
		color = false
	}
}

// SetColor forces colors on or off
func SetColor(enabled bool) {
	outMu.Lock()
	defer outMu.Unlock()
	color = enabled
}

// SetQuiet suppresses everything except errors
func SetQuiet(q bool) {
	outMu.Lock()
	defer outMu.Unlock()
	quiet = q
}

// IsQuietMode reports whether non-error output is suppressed
func IsQuietMode() bool {
	outMu.Lock()
	defer outMu.Unlock()
	return quiet
}

func printf(force bool, format string, args ...interface{}) {
	outMu.Lock()
	defer outMu.Unlock()
	if quiet && !force {
		return
	}
	fmt.Fprintf(out, format, args...)
}

// PrintLogo prints the logo
func PrintLogo() {
	printf(false, "%s\n", Cyan(Logo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	printf(true, "%s\n", Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printf(false, "%s\n", Green(msg))
}

// PrintInfo prints a label/value pair
func PrintInfo(label string, value string) {
	printf(false, "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	printf(false, "%s\n", Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printf(false, "%s\n", Magenta(msg))
}
