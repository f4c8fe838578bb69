// Package cli holds output helpers shared by the routersync commands.
package cli

import (
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/newtron-network/routersync/pkg/driver"
)

// colorEnabled is false when NO_COLOR is set or stdout is not a terminal.
var colorEnabled = os.Getenv("NO_COLOR") == "" && term.IsTerminal(int(os.Stdout.Fd()))

// SetColor forces color output on or off.
func SetColor(on bool) { colorEnabled = on }

func paint(code, s string) string {
	if !colorEnabled {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Green wraps s in ANSI green.
func Green(s string) string { return paint("32", s) }

// Yellow wraps s in ANSI yellow.
func Yellow(s string) string { return paint("33", s) }

// Red wraps s in ANSI red.
func Red(s string) string { return paint("31", s) }

// Bold wraps s in ANSI bold.
func Bold(s string) string { return paint("1", s) }

// Dim wraps s in ANSI dim.
func Dim(s string) string { return paint("2", s) }

// Status renders an operation outcome for tables.
func Status(success, dryRun bool) string {
	switch {
	case dryRun:
		return Yellow("dry-run")
	case success:
		return Green("ok")
	}
	return Red("failed")
}

// ChangeLine renders one change as "+ cmd" or "- cmd".
func ChangeLine(c driver.Change) string {
	if c.Type == driver.ChangeDelete {
		return Red("- " + c.Command)
	}
	return Green("+ " + c.Command)
}

// DotPad pads name with dots to the given width.
// Example: DotPad("asr-1", 12) → "asr-1 ......"
func DotPad(name string, width int) string {
	if width <= 0 || len(name) >= width-1 {
		return name
	}
	return name + " " + strings.Repeat(".", width-len(name)-1)
}
