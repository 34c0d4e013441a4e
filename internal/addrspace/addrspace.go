// Package addrspace implements a process's sparse virtual address space:
// a mapping from page-aligned guest addresses to pages drawn from a
// shared page.Pool.
//
// A Space owns no bytes itself; it only tracks which page.IDs back which
// addresses and, for swapping, which of those pages are currently
// RAM-resident.
package addrspace

import (
	"fmt"

	"hamster/internal/herr"
	"hamster/internal/page"
)

// Space is one process's view of guest memory.
type Space struct {
	pool *page.Pool

	// pages maps a page-aligned address to the backing page id.
	pages map[uint32]page.ID

	// resident is the FIFO order in which pages were last touched while
	// in RAM; it is the window swap_in_all/swap_out_all operate on.
	resident []uint32
}

// New creates an empty address space backed by pool.
func New(pool *page.Pool) *Space {
	return &Space{
		pool:  pool,
		pages: make(map[uint32]page.ID),
	}
}

// Offset returns the offset of addr within its page.
func Offset(addr uint32) uint32 { return addr & (page.Size - 1) }

// PageStart returns the page-aligned base address containing addr.
func PageStart(addr uint32) uint32 { return addr &^ (page.Size - 1) }

// Mapped reports whether the page containing addr has been allocated.
func (s *Space) Mapped(addr uint32) bool {
	_, ok := s.pages[PageStart(addr)]
	return ok
}

// Allocate maps a fresh page at the page containing addr. Idempotent: if
// the page is already mapped this returns its existing id and no error,
// matching the loader's expectation that overlapping PT_LOAD segments
// don't double-allocate.
func (s *Space) Allocate(addr uint32) (page.ID, error) {
	start := PageStart(addr)

	if id, ok := s.pages[start]; ok {
		return id, nil
	}

	id, err := s.pool.OpenPage()
	if err != nil {
		return page.None, fmt.Errorf("addrspace: allocate %#x: %w", addr, err)
	}

	s.pages[start] = id
	s.resident = append(s.resident, start)

	return id, nil
}

// Deallocate unmaps and closes the page containing addr. Not an error if
// the page was never mapped.
func (s *Space) Deallocate(addr uint32) error {
	start := PageStart(addr)

	id, ok := s.pages[start]
	if !ok {
		return nil
	}

	if err := s.pool.ClosePage(id); err != nil {
		return fmt.Errorf("addrspace: deallocate %#x: %w", addr, err)
	}

	delete(s.pages, start)
	s.removeResident(start)

	return nil
}

// Byte returns a pointer to the byte at addr, auto-allocating its page if
// unmapped and swapping it in if it's currently swapped out. Pool
// exhaustion while auto-allocating is returned as herr.Fault, the
// decision to escalate that specific failure to the thread rather than
// let it fall through to the page pool's dummy-byte sentinel.
func (s *Space) Byte(addr uint32) (*byte, error) {
	start := PageStart(addr)

	id, ok := s.pages[start]
	if !ok {
		var err error

		id, err = s.Allocate(addr)
		if err != nil {
			return dummy(), fmt.Errorf("addrspace: %#x: %w", addr, herr.Fault)
		}
	}

	if s.pool.IsSwapped(id) {
		if err := s.pool.SwapIn(id); err != nil {
			return dummy(), fmt.Errorf("addrspace: %#x: %w", addr, herr.Fault)
		}

		s.touch(start)
	}

	return s.pool.Byte(id, Offset(addr)), nil
}

var dummyByte byte

func dummy() *byte { return &dummyByte }

// ReadByte reads addr without allocating: unmapped addresses read as
// zero rather than faulting, matching the read side of the accepted
// page-fault-on-write-only policy.
func (s *Space) ReadByte(addr uint32) byte {
	start := PageStart(addr)

	id, ok := s.pages[start]
	if !ok {
		return 0
	}

	if s.pool.IsSwapped(id) {
		if err := s.pool.SwapIn(id); err != nil {
			return 0
		}

		s.touch(start)
	}

	return *s.pool.Byte(id, Offset(addr))
}

// WriteBytes copies src into the address space starting at addr,
// auto-allocating and swapping in pages as needed. Returns herr.Fault if
// allocation fails partway through; bytes already written remain
// written.
func (s *Space) WriteBytes(addr uint32, src []byte) error {
	for i, b := range src {
		p, err := s.Byte(addr + uint32(i))
		if err != nil {
			return err
		}

		*p = b
	}

	return nil
}

// ReadBytes copies len(dst) bytes from the address space starting at
// addr into dst, without allocating unmapped pages.
func (s *Space) ReadBytes(addr uint32, dst []byte) {
	for i := range dst {
		dst[i] = s.ReadByte(addr + uint32(i))
	}
}

// Memset fills n bytes starting at addr with b, auto-allocating and
// swapping in pages as needed, the same way WriteBytes does. Used by the
// loader to zero a segment's BSS tail without staging a throwaway zero
// buffer.
func (s *Space) Memset(addr uint32, b byte, n uint32) error {
	for i := uint32(0); i < n; i++ {
		p, err := s.Byte(addr + i)
		if err != nil {
			return err
		}

		*p = b
	}

	return nil
}

// PageData returns the raw page buffer backing addr, and addr's offset
// within it, for callers doing bulk moves instead of byte-at-a-time
// copies. Returns nil if the page is unmapped or currently swapped out;
// callers that need the page resident should allocate/read through it
// first (e.g. via Byte) to force it in.
func (s *Space) PageData(addr uint32) (*[page.Size]byte, uint32) {
	start := PageStart(addr)

	id, ok := s.pages[start]
	if !ok {
		return nil, 0
	}

	return s.pool.Data(id), Offset(addr)
}

// SwapOutAll evicts every currently resident page to the pool's swap
// backend. Called at tick-window boundaries by the scheduler.
func (s *Space) SwapOutAll() error {
	for _, start := range s.resident {
		if err := s.pool.SwapOut(s.pages[start]); err != nil {
			return fmt.Errorf("addrspace: swap out all: %w", err)
		}
	}

	s.resident = s.resident[:0]

	return nil
}

// SwapInAll restores every mapped page to RAM. Called at tick-window
// boundaries before a process's threads run.
func (s *Space) SwapInAll() error {
	for start, id := range s.pages {
		if s.pool.IsSwapped(id) {
			if err := s.pool.SwapIn(id); err != nil {
				return fmt.Errorf("addrspace: swap in all: %w", err)
			}
		}

		s.touch(start)
	}

	return nil
}

func (s *Space) touch(start uint32) {
	for _, r := range s.resident {
		if r == start {
			return
		}
	}

	s.resident = append(s.resident, start)
}

func (s *Space) removeResident(start uint32) {
	for i, r := range s.resident {
		if r == start {
			s.resident = append(s.resident[:i], s.resident[i+1:]...)
			return
		}
	}
}
