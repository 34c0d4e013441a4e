// Package swap provides storage backends for pages evicted from RAM.
//
// Two backends are provided, mirroring the reference implementation's
// choice between a RAM-resident map (for hosts with enough memory to
// spare) and a single on-disk file (for hosts that don't): Memory and
// File.
package swap

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// PageSize is the fixed size, in bytes, of a swapped page. It mirrors
// page.Size; duplicated here rather than imported to keep this package
// free of a dependency on internal/page.
const PageSize = 256

// Backend persists and retrieves whole pages by id. Implementations need
// not be safe for concurrent use; the scheduler drives them from a single
// goroutine.
type Backend interface {
	// SwapOut writes data (exactly PageSize bytes) out under id,
	// overwriting any previous contents for that id.
	SwapOut(id int32, data *[PageSize]byte) error

	// SwapIn reads the page stored under id into dst. For an id that was
	// never swapped out (or was removed), Memory returns ErrNotSwapped,
	// while File fills dst with zeros and returns no error.
	SwapIn(id int32, dst *[PageSize]byte) error

	// Remove discards whatever is stored under id. Not an error if
	// nothing was stored.
	Remove(id int32) error

	// RemoveAll discards every page the backend holds.
	RemoveAll() error
}

// ErrNotSwapped is returned by SwapIn when id has no swapped page.
var ErrNotSwapped = errors.New("swap: page not found")

// Memory is a Backend that keeps swapped pages in a process-local map. It
// costs host RAM in exchange for speed, the tradeoff the reference
// implementation calls out as unsuitable for the most constrained boards.
type Memory struct {
	pages map[int32]*[PageSize]byte
}

// NewMemory returns an empty in-memory swap backend.
func NewMemory() *Memory {
	return &Memory{pages: make(map[int32]*[PageSize]byte)}
}

func (m *Memory) SwapOut(id int32, data *[PageSize]byte) error {
	buf := new([PageSize]byte)
	*buf = *data
	m.pages[id] = buf

	return nil
}

func (m *Memory) SwapIn(id int32, dst *[PageSize]byte) error {
	buf, ok := m.pages[id]
	if !ok {
		return fmt.Errorf("swap in %d: %w", id, ErrNotSwapped)
	}

	*dst = *buf

	return nil
}

func (m *Memory) Remove(id int32) error {
	delete(m.pages, id)
	return nil
}

func (m *Memory) RemoveAll() error {
	m.pages = make(map[int32]*[PageSize]byte)
	return nil
}

// File is a Backend that stores every swapped page as a fixed-size slot
// in a single file, indexed by page id, mirroring the SD-card backend's
// one-file-per-page layout but collapsed into one file since a host
// capable of running this implementation can manage its own directory
// rather than Hamster reinventing one.
type File struct {
	f *os.File
}

// OpenFile opens (creating if necessary) path as a page-indexed swap
// file.
func OpenFile(path string) (*File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("swap: open %s: %w", path, err)
	}

	return &File{f: f}, nil
}

// Close closes the underlying file.
func (s *File) Close() error {
	return s.f.Close()
}

func (s *File) offset(id int32) int64 {
	return int64(id) * PageSize
}

func (s *File) SwapOut(id int32, data *[PageSize]byte) error {
	if _, err := s.f.WriteAt(data[:], s.offset(id)); err != nil {
		return fmt.Errorf("swap out %d: %w", id, err)
	}

	return nil
}

func (s *File) SwapIn(id int32, dst *[PageSize]byte) error {
	n, err := s.f.ReadAt(dst[:], s.offset(id))
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("swap in %d: %w", id, err)
	}

	for i := n; i < PageSize; i++ {
		dst[i] = 0
	}

	return nil
}

// Remove zeroes the page's slot. The file never shrinks; slots are
// reused by id the same way the page pool reuses slot indices.
func (s *File) Remove(id int32) error {
	var zero [PageSize]byte
	if _, err := s.f.WriteAt(zero[:], s.offset(id)); err != nil {
		return fmt.Errorf("swap remove %d: %w", id, err)
	}

	return nil
}

// RemoveAll truncates the swap file to empty.
func (s *File) RemoveAll() error {
	if err := s.f.Truncate(0); err != nil {
		return fmt.Errorf("swap remove all: %w", err)
	}

	return nil
}
