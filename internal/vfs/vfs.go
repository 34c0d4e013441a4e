// Package vfs provides the minimal file abstraction the syscall layer
// needs: open file descriptors over named in-memory files or a console
// device. Mount tables, path resolution, permissions, and the SD-card
// filesystem the reference implementation supports are deliberately not
// reproduced here — the core only ever needs to read ELF bytes and
// shuttle syscall side effects through a small, fixed set of operations.
package vfs

import (
	"fmt"
	"io"
	"sync"

	"hamster/internal/herr"
)

// File is anything a file descriptor can refer to: a named byte store or
// a stream device. Every VFS operation is expressed in terms of this
// interface so RAMFS and Console can share one fd table.
type File interface {
	io.ReaderAt
	io.WriterAt
	// Size returns the file's current length. Streams that have no
	// meaningful length (the console) return 0.
	Size() int64
	// Truncate resizes the file, used to implement O_TRUNC on open.
	Truncate(size int64) error
}

// Open flags, matching the subset of POSIX open(2) flags the syscall
// layer actually exercises.
const (
	OCreate = 1 << iota
	OTrunc
	ORDOnly
	OWROnly
	ORDWR
)

// FD is a file descriptor: an index into a Table.
type FD int32

// handle is one open file: the underlying File plus this descriptor's
// independent seek position.
type handle struct {
	file File
	pos  int64
}

// Table is a process's open file descriptor table. The zero value is
// empty; use NewTable.
type Table struct {
	mu      sync.Mutex
	handles map[FD]*handle
	next    FD
}

// NewTable returns an empty descriptor table. Descriptors 0, 1, and 2 are
// left for the caller to populate (conventionally with a Console), the
// same way a POSIX process inherits stdin/stdout/stderr.
func NewTable() *Table {
	return &Table{handles: make(map[FD]*handle)}
}

// Install binds fd directly to file, bypassing descriptor allocation.
// Used to set up the standard streams at process creation.
func (t *Table) Install(fd FD, file File) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.handles[fd] = &handle{file: file}

	if fd >= t.next {
		t.next = fd + 1
	}
}

// Open binds a fresh descriptor to file and returns it.
func (t *Table) Open(file File) FD {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := t.next
	t.next++
	t.handles[fd] = &handle{file: file}

	return fd
}

// Close releases fd. Returns herr.BadDescriptor if fd was never open.
func (t *Table) Close(fd FD) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.handles[fd]; !ok {
		return fmt.Errorf("vfs: close %d: %w", fd, herr.BadDescriptor)
	}

	delete(t.handles, fd)

	return nil
}

func (t *Table) get(fd FD) (*handle, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.handles[fd]
	if !ok {
		return nil, fmt.Errorf("vfs: %d: %w", fd, herr.BadDescriptor)
	}

	return h, nil
}

// Read reads up to len(buf) bytes from fd at its current position,
// advancing it.
func (t *Table) Read(fd FD, buf []byte) (int, error) {
	h, err := t.get(fd)
	if err != nil {
		return 0, err
	}

	n, err := h.file.ReadAt(buf, h.pos)
	h.pos += int64(n)

	if err == io.EOF {
		err = nil
	}

	if err != nil {
		return n, fmt.Errorf("vfs: read %d: %w: %w", fd, herr.Io, err)
	}

	return n, nil
}

// Write writes buf to fd at its current position, advancing it.
func (t *Table) Write(fd FD, buf []byte) (int, error) {
	h, err := t.get(fd)
	if err != nil {
		return 0, err
	}

	n, err := h.file.WriteAt(buf, h.pos)
	h.pos += int64(n)

	if err != nil {
		return n, fmt.Errorf("vfs: write %d: %w: %w", fd, herr.Io, err)
	}

	return n, nil
}

// Whence values for Seek, mirroring io.Seeker.
const (
	SeekStart   = io.SeekStart
	SeekCurrent = io.SeekCurrent
	SeekEnd     = io.SeekEnd
)

// Seek repositions fd and returns its new absolute offset.
func (t *Table) Seek(fd FD, offset int64, whence int) (int64, error) {
	h, err := t.get(fd)
	if err != nil {
		return 0, err
	}

	switch whence {
	case SeekStart:
		h.pos = offset
	case SeekCurrent:
		h.pos += offset
	case SeekEnd:
		h.pos = h.file.Size() + offset
	default:
		return 0, fmt.Errorf("vfs: seek %d: %w", fd, herr.InvalidArgument)
	}

	if h.pos < 0 {
		h.pos = 0
		return 0, fmt.Errorf("vfs: seek %d: %w", fd, herr.InvalidArgument)
	}

	return h.pos, nil
}
