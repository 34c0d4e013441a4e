package vfs

import (
	"fmt"
	"io"
	"sync"

	"hamster/internal/herr"
)

// RAMFile is a File backed by a plain byte slice, growing as needed on
// write.
type RAMFile struct {
	mu   sync.Mutex
	data []byte
}

// NewRAMFile returns a RAMFile pre-populated with contents. Passing nil
// creates an empty file.
func NewRAMFile(contents []byte) *RAMFile {
	f := &RAMFile{}
	f.data = append(f.data, contents...)

	return f
}

func (f *RAMFile) ReadAt(buf []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("ramfs: read: %w", herr.InvalidArgument)
	}

	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}

	n := copy(buf, f.data[off:])

	if n < len(buf) {
		return n, io.EOF
	}

	return n, nil
}

func (f *RAMFile) WriteAt(buf []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if off < 0 {
		return 0, fmt.Errorf("ramfs: write: %w", herr.InvalidArgument)
	}

	end := off + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	copy(f.data[off:end], buf)

	return len(buf), nil
}

func (f *RAMFile) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	return int64(len(f.data))
}

func (f *RAMFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if size < 0 {
		return fmt.Errorf("ramfs: truncate: %w", herr.InvalidArgument)
	}

	switch {
	case size <= int64(len(f.data)):
		f.data = f.data[:size]
	default:
		grown := make([]byte, size)
		copy(grown, f.data)
		f.data = grown
	}

	return nil
}

// Bytes returns a copy of the file's current contents, for tests.
func (f *RAMFile) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]byte, len(f.data))
	copy(out, f.data)

	return out
}

// RAMFS is a flat, in-memory filesystem: a name-to-file map with no
// directory hierarchy, the degenerate case of the reference
// implementation's tree-structured ramfs sufficient for staging guest
// binaries and scratch files in tests.
type RAMFS struct {
	mu    sync.Mutex
	files map[string]*RAMFile
}

// NewRAMFS returns an empty filesystem.
func NewRAMFS() *RAMFS {
	return &RAMFS{files: make(map[string]*RAMFile)}
}

// Put installs contents under name, overwriting any existing file. Used
// to seed a RAMFS with a guest binary before it's opened by path.
func (fs *RAMFS) Put(name string, contents []byte) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.files[name] = NewRAMFile(contents)
}

// Open returns the named file, creating it if flags includes OCreate and
// truncating it if flags includes OTrunc.
func (fs *RAMFS) Open(name string, flags int) (*RAMFile, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[name]
	if !ok {
		if flags&OCreate == 0 {
			return nil, fmt.Errorf("ramfs: open %s: %w", name, herr.NotFound)
		}

		f = NewRAMFile(nil)
		fs.files[name] = f
	}

	if flags&OTrunc != 0 {
		_ = f.Truncate(0)
	}

	return f, nil
}

// Remove deletes the named file.
func (fs *RAMFS) Remove(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[name]; !ok {
		return fmt.Errorf("ramfs: remove %s: %w", name, herr.NotFound)
	}

	delete(fs.files, name)

	return nil
}
