// Package termsize reads the controlling terminal's column count,
// consumed by the CLI to chop lines under --chop-long-lines.
//
// Grounded on golang.org/x/sys/unix's IoctlGetWinsize, promoted here
// from a transitive dependency to a direct one.
package termsize

import (
	"os"

	"golang.org/x/sys/unix"
)

// DefaultWidth is used when the controlling terminal's size can't be
// determined (output redirected to a file or pipe).
const DefaultWidth = 80

// Width returns the terminal column width of f, or DefaultWidth if f
// isn't a terminal or the ioctl fails.
func Width(f *os.File) int {
	ws, err := unix.IoctlGetWinsize(int(f.Fd()), unix.TIOCGWINSZ)
	if err != nil || ws.Col == 0 {
		return DefaultWidth
	}
	return int(ws.Col)
}
