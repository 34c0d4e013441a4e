// Package syscall implements the host side of the guest/host boundary:
// the fixed syscall numbering, argument decoding from a guest.Frame, and
// handlers that perform the requested VFS operation and produce the
// word written back into the guest's return register.
//
// EXIT is handled by the scheduler directly, since it terminates the
// calling thread rather than returning to it; every other number is
// routed through Table.
package syscall

import (
	"fmt"

	"hamster/internal/addrspace"
	"hamster/internal/guest"
	"hamster/internal/herr"
	"hamster/internal/vfs"
)

// Syscall numbers, fixed for the life of the ABI.
const (
	Exit uint32 = iota
	Open
	Read
	Write
	Seek
	Close
)

// maxPathLen bounds how far readString will scan for a guest
// string's NUL terminator, so a guest that never terminates a "path"
// can't force the host into an unbounded scan.
const maxPathLen = 4096

// Context is the environment a handler runs in: the calling thread's
// address space, for translating guest pointers, and its open file
// table.
type Context struct {
	Space *addrspace.Space
	Files *vfs.Table
}

// Handler services one syscall number and returns the word to place in
// the guest's return register.
type Handler func(ctx *Context, frame guest.Frame) (uint32, error)

// Table maps syscall numbers (excluding Exit) to their handlers.
type Table map[uint32]Handler

// Default returns the handler table for the minimal filesystem syscalls:
// Open, Read, Write, Seek, and Close, operating against a RAMFS-backed
// or console vfs.Table.
func Default(fs *vfs.RAMFS) Table {
	return Table{
		Open:  openHandler(fs),
		Read:  readHandler,
		Write: writeHandler,
		Seek:  seekHandler,
		Close: closeHandler,
	}
}

// Dispatch looks up frame's syscall number in t and invokes it.
// Unsupported numbers return herr.Unsupported.
func (t Table) Dispatch(ctx *Context, frame guest.Frame) (uint32, error) {
	h, ok := t[frame.Num]
	if !ok {
		return 0, fmt.Errorf("syscall %d: %w", frame.Num, herr.Unsupported)
	}

	return h(ctx, frame)
}

func openHandler(fs *vfs.RAMFS) Handler {
	return func(ctx *Context, frame guest.Frame) (uint32, error) {
		path, err := readString(ctx.Space, frame.Args[0])
		if err != nil {
			return badFD, err
		}

		flags := int(frame.Args[1])

		f, err := fs.Open(path, flags)
		if err != nil {
			return badFD, err
		}

		return uint32(ctx.Files.Open(f)), nil
	}
}

func readHandler(ctx *Context, frame guest.Frame) (uint32, error) {
	fd := vfs.FD(frame.Args[0])
	addr := frame.Args[1]
	size := frame.Args[2]

	buf := make([]byte, size)

	n, err := ctx.Files.Read(fd, buf)
	if err != nil {
		return badFD, err
	}

	if err := ctx.Space.WriteBytes(addr, buf[:n]); err != nil {
		return badFD, err
	}

	return uint32(n), nil
}

func writeHandler(ctx *Context, frame guest.Frame) (uint32, error) {
	fd := vfs.FD(frame.Args[0])
	addr := frame.Args[1]
	size := frame.Args[2]

	buf := make([]byte, size)
	ctx.Space.ReadBytes(addr, buf)

	n, err := ctx.Files.Write(fd, buf)
	if err != nil {
		return badFD, err
	}

	return uint32(n), nil
}

func seekHandler(ctx *Context, frame guest.Frame) (uint32, error) {
	fd := vfs.FD(frame.Args[0])
	offset := int64(int32(frame.Args[1]))
	whence := int(frame.Args[2])

	pos, err := ctx.Files.Seek(fd, offset, whence)
	if err != nil {
		return badFD, err
	}

	return uint32(pos), nil
}

func closeHandler(ctx *Context, frame guest.Frame) (uint32, error) {
	fd := vfs.FD(frame.Args[0])

	if err := ctx.Files.Close(fd); err != nil {
		return badFD, err
	}

	return 0, nil
}

// badFD is the syscall return value on failure, matching the reference
// implementation's -1-as-uint32 convention for POSIX-style calls.
const badFD = ^uint32(0)

// readString reads a NUL-terminated string from the guest's address
// space starting at addr, used to decode path arguments.
func readString(space *addrspace.Space, addr uint32) (string, error) {
	buf := make([]byte, 0, 64)

	for i := uint32(0); i < maxPathLen; i++ {
		b := space.ReadByte(addr + i)
		if b == 0 {
			return string(buf), nil
		}

		buf = append(buf, b)
	}

	return "", fmt.Errorf("syscall: string at %#x: %w", addr, herr.InvalidArgument)
}
