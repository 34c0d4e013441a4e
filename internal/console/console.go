// Package console adapts the host terminal to the vfs.File interface, so
// a guest process's stdin/stdout/stderr descriptors can be backed by a
// real interactive terminal the same way the reference implementation's
// serial console backed the keyboard and display devices.
//
// Unlike the keyboard/display model it's adapted from, syscalls here are
// synchronous (per the scheduler's contract: a syscall handler completes
// before the next guest instruction runs), so there's no background
// goroutine shuttling bytes through channels — reads and writes go
// straight to the underlying file descriptor.
package console

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
	"golang.org/x/term"

	"hamster/internal/herr"
)

// Console is a vfs.File backed by the process's standard streams. If
// stdin is a terminal, it is put into raw mode for the life of the
// Console so guest programs see unbuffered, unechoed input exactly as
// the embedded target would provide it; Restore must be called to
// return the terminal to cooked mode.
type Console struct {
	in  *os.File
	out *os.File

	fd    int
	raw   bool
	state *term.State
}

// New adapts in/out as a Console. If in is a terminal, it is switched to
// raw mode.
func New(in, out *os.File) (*Console, error) {
	c := &Console{in: in, out: out, fd: int(in.Fd())}

	if term.IsTerminal(c.fd) {
		state, err := term.MakeRaw(c.fd)
		if err != nil {
			return nil, fmt.Errorf("console: %w: %w", herr.Io, err)
		}

		c.raw = true
		c.state = state
	}

	return c, nil
}

// Restore returns the terminal to its original mode, if raw mode was
// entered. Safe to call on a non-terminal Console.
func (c *Console) Restore() error {
	if !c.raw {
		return nil
	}

	if err := term.Restore(c.fd, c.state); err != nil {
		return fmt.Errorf("console: restore: %w", err)
	}

	return nil
}

// ReadAt ignores off: the console has no seekable position, only a
// stream. Every read consumes the next available bytes.
func (c *Console) ReadAt(buf []byte, _ int64) (int, error) {
	n, err := c.in.Read(buf)
	if err != nil {
		return n, fmt.Errorf("console: read: %w: %w", herr.Io, err)
	}

	return n, nil
}

// WriteAt ignores off, for the same reason as ReadAt.
func (c *Console) WriteAt(buf []byte, _ int64) (int, error) {
	n, err := c.out.Write(buf)
	if err != nil {
		return n, fmt.Errorf("console: write: %w: %w", herr.Io, err)
	}

	return n, nil
}

// Size reports 0: the console is a stream, not a seekable file. It is
// not the terminal's window size; see WindowSize for that.
func (c *Console) Size() int64 { return 0 }

// WindowSize returns the terminal's current row/column count. It fails
// with herr.Unsupported if the console isn't backed by a terminal.
func (c *Console) WindowSize() (rows, cols int, err error) {
	if !c.raw {
		return 0, 0, fmt.Errorf("console: window size: %w", herr.Unsupported)
	}

	ws, err := unix.IoctlGetWinsize(c.fd, unix.TIOCGWINSZ)
	if err != nil {
		return 0, 0, fmt.Errorf("console: window size: %w: %w", herr.Io, err)
	}

	return int(ws.Row), int(ws.Col), nil
}

// Truncate is not supported on a stream console.
func (c *Console) Truncate(int64) error {
	return fmt.Errorf("console: truncate: %w", herr.Unsupported)
}
