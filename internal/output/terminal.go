package output

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// TerminalWidth returns the column count of stdout, or 80 when it is not a terminal
func TerminalWidth() int {
	ws, err := unix.IoctlGetWinsize(int(os.Stdout.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return 80
	}
	return int(ws.Col)
}

// supportsUnicode checks if the terminal supports Unicode
func supportsUnicode() bool {
	lang := os.Getenv("LANG")
	lcAll := os.Getenv("LC_ALL")

	return strings.Contains(lang, "UTF-8") || strings.Contains(lcAll, "UTF-8")
}

func statusGlyph(ok bool) string {
	switch {
	case ok && supportsUnicode():
		return "✓"
	case ok:
		return "ok"
	case supportsUnicode():
		return "✗"
	default:
		return "x"
	}
}
