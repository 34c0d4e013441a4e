// Package page implements the global page pool: a pool of fixed-size page
// slots that transparently swap between RAM and a host-provided swap
// backend.
//
// The pool is process-wide state (spec §5: "the page pool is process-wide
// mutable state... only one operation is in flight at any moment"), so
// there is deliberately no internal locking; callers are expected to run
// on the single cooperative scheduler thread.
package page

import (
	"fmt"

	"hamster/internal/herr"
	"hamster/internal/log"
	"hamster/internal/swap"
)

// Size is the fixed size of a page, in bytes. It must be a power of two.
const Size = 256

// MaxPages bounds the pool's live capacity: RAM-resident pages plus
// swapped-out pages together may never exceed this.
const MaxPages = 16384

// ID identifies a page slot. IDs are stable for the life of the slot and
// reused once the slot is closed and reopened.
type ID int32

// None is never a valid page ID.
const None ID = -1

// slot holds one page's state. data is nil exactly when the page is
// swapped out or unused; used⇒(swapped⇔data==nil) is the pool's central
// invariant.
type slot struct {
	data    *[Size]byte
	flags   uint16
	used    bool
	swapped bool
}

// Pool is the pool of page slots. The zero value is not usable; use New.
type Pool struct {
	slots   []slot
	backend swap.Backend

	dummyByte  byte
	dummyFlags uint16

	log  *log.Logger
	errs *herr.Channel
}

// Option configures a Pool at construction.
type Option func(*Pool)

// WithLogger overrides the pool's logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pool) { p.log = l }
}

// WithErrors gives the pool a shared error channel to report failures
// into. Without one, a private channel is used.
func WithErrors(c *herr.Channel) Option {
	return func(p *Pool) { p.errs = c }
}

// New creates an empty pool backed by the given swap backend.
func New(backend swap.Backend, opts ...Option) *Pool {
	p := &Pool{
		backend: backend,
		log:     log.DefaultLogger(),
		errs:    new(herr.Channel),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Len returns the number of slots the pool has ever allocated (used or
// not); it is not the count of live pages.
func (p *Pool) Len() int { return len(p.slots) }

// Err returns the last error recorded on the pool's channel.
func (p *Pool) Err() error { return p.errs.Last() }

// OpenPage returns the lowest-indexed unused slot, extending the pool if
// none is free. The page is resident with zeroed contents. Fails with
// herr.OutOfMemory once the live slot count would exceed MaxPages.
func (p *Pool) OpenPage() (ID, error) {
	for i := range p.slots {
		if !p.slots[i].used {
			p.slots[i] = slot{data: new([Size]byte), used: true}
			p.log.Debug("page opened", "id", i, "reused", true)

			return ID(i), nil
		}
	}

	if len(p.slots) >= MaxPages {
		p.errs.Set(herr.OutOfMemory)
		return None, fmt.Errorf("open page: %w", herr.OutOfMemory)
	}

	p.slots = append(p.slots, slot{data: new([Size]byte), used: true})
	id := ID(len(p.slots) - 1)

	p.log.Debug("page opened", "id", id, "reused", false)

	return id, nil
}

// ClosePage returns a page to the free list. Idempotent: closing an
// already-closed or out-of-range id is not an error.
func (p *Pool) ClosePage(id ID) error {
	s, ok := p.slotFor(id)
	if !ok {
		return nil
	}

	if s.swapped {
		if err := p.backend.Remove(int32(id)); err != nil {
			p.log.Warn("swap remove failed on close", "id", id, "err", err)
		}
	}

	p.slots[id] = slot{used: false}
	p.log.Debug("page closed", "id", id)

	return nil
}

// SwapOut persists a resident page to the backend and frees its RAM
// buffer. No-op if the page is not open or already swapped.
func (p *Pool) SwapOut(id ID) error {
	s, ok := p.slotFor(id)
	if !ok || !s.used || s.swapped {
		return nil
	}

	if err := p.backend.SwapOut(int32(id), s.data); err != nil {
		p.errs.Set(herr.Io)
		return fmt.Errorf("swap out %d: %w: %w", id, herr.Io, err)
	}

	p.slots[id].data = nil
	p.slots[id].swapped = true

	p.log.Debug("page swapped out", "id", id)

	return nil
}

// SwapIn restores a swapped page into RAM. No-op if the page is not
// swapped. On backend failure the page remains swapped.
func (p *Pool) SwapIn(id ID) error {
	s, ok := p.slotFor(id)
	if !ok || !s.used || !s.swapped {
		return nil
	}

	buf := new([Size]byte)
	if err := p.backend.SwapIn(int32(id), buf); err != nil {
		p.errs.Set(herr.Io)
		return fmt.Errorf("swap in %d: %w: %w", id, herr.Io, err)
	}

	p.slots[id].data = buf
	p.slots[id].swapped = false

	p.log.Debug("page swapped in", "id", id)

	return nil
}

// IsSwapped reports whether id is currently swapped out. False for any id
// that isn't a live, used page.
func (p *Pool) IsSwapped(id ID) bool {
	s, ok := p.slotFor(id)
	return ok && s.used && s.swapped
}

// IsUsed reports whether id is a live page.
func (p *Pool) IsUsed(id ID) bool {
	s, ok := p.slotFor(id)
	return ok && s.used
}

// Byte returns a pointer to the byte at offset within page id. Out-of-range
// ids, offsets, closed, or swapped pages return the pool's dummy byte;
// writes through the dummy are silently discarded. The returned pointer is
// valid until the next operation that may evict the slot (SwapOut,
// ClosePage, or a bulk address-space operation).
func (p *Pool) Byte(id ID, offset uint32) *byte {
	s, ok := p.slotFor(id)
	if !ok || !s.used || s.swapped || offset >= Size {
		return &p.dummyByte
	}

	return &s.data[offset]
}

// Flags returns a pointer to the page's 16 user-defined flag bits. The
// pointer is stable until ClosePage(id). Out-of-range or unused ids return
// the pool's dummy flags.
func (p *Pool) Flags(id ID) *uint16 {
	if id < 0 || int(id) >= len(p.slots) || !p.slots[id].used {
		return &p.dummyFlags
	}

	return &p.slots[id].flags
}

// Data returns the page's raw byte buffer, or nil if the page is unmapped
// or swapped out. Used by the interpreter for bulk memory moves.
func (p *Pool) Data(id ID) *[Size]byte {
	s, ok := p.slotFor(id)
	if !ok || !s.used || s.swapped {
		return nil
	}

	return s.data
}

func (p *Pool) slotFor(id ID) (slot, bool) {
	if id < 0 || int(id) >= len(p.slots) {
		return slot{}, false
	}

	return p.slots[id], true
}
