package addrspace

import (
	"errors"
	"testing"

	"hamster/internal/herr"
	"hamster/internal/page"
	"hamster/internal/swap"
)

func newSpace(t *testing.T) *Space {
	t.Helper()
	return New(page.New(swap.NewMemory()))
}

func TestAllocateIsIdempotent(t *testing.T) {
	s := newSpace(t)

	id1, err := s.Allocate(0x1000)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}

	id2, err := s.Allocate(0x1004)
	if err != nil {
		t.Fatalf("allocate same page: %v", err)
	}

	if id1 != id2 {
		t.Fatalf("overlapping addresses in one page got different ids: %d != %d", id1, id2)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newSpace(t)

	if err := s.WriteBytes(0x2000, []byte("hamster")); err != nil {
		t.Fatalf("write bytes: %v", err)
	}

	dst := make([]byte, len("hamster"))
	s.ReadBytes(0x2000, dst)

	if string(dst) != "hamster" {
		t.Fatalf("read back %q, want %q", dst, "hamster")
	}
}

func TestReadUnmappedIsZeroNotFault(t *testing.T) {
	s := newSpace(t)

	if b := s.ReadByte(0xdead0000); b != 0 {
		t.Fatalf("read of unmapped address = %#x, want 0", b)
	}

	if s.Mapped(0xdead0000) {
		t.Fatalf("reading an unmapped address must not allocate it")
	}
}

func TestWriteAllocatesOnDemand(t *testing.T) {
	s := newSpace(t)

	if s.Mapped(0x3000) {
		t.Fatalf("page should start unmapped")
	}

	if err := s.WriteBytes(0x3000, []byte{1}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if !s.Mapped(0x3000) {
		t.Fatalf("write must allocate the page")
	}
}

func TestSwapOutInRoundTrip(t *testing.T) {
	s := newSpace(t)

	if err := s.WriteBytes(0x4000, []byte{0xaa}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := s.SwapOutAll(); err != nil {
		t.Fatalf("swap out all: %v", err)
	}

	if err := s.SwapInAll(); err != nil {
		t.Fatalf("swap in all: %v", err)
	}

	dst := make([]byte, 1)
	s.ReadBytes(0x4000, dst)

	if dst[0] != 0xaa {
		t.Fatalf("byte after swap round trip = %#x, want 0xaa", dst[0])
	}
}

func TestDeallocateUnmaps(t *testing.T) {
	s := newSpace(t)

	_, _ = s.Allocate(0x5000)

	if err := s.Deallocate(0x5000); err != nil {
		t.Fatalf("deallocate: %v", err)
	}

	if s.Mapped(0x5000) {
		t.Fatalf("page still mapped after deallocate")
	}
}

func TestMemset(t *testing.T) {
	s := newSpace(t)

	if err := s.Memset(0x7000, 0xcc, 5); err != nil {
		t.Fatalf("memset: %v", err)
	}

	dst := make([]byte, 5)
	s.ReadBytes(0x7000, dst)

	for i, b := range dst {
		if b != 0xcc {
			t.Fatalf("byte %d = %#x, want 0xcc", i, b)
		}
	}
}

func TestPageData(t *testing.T) {
	s := newSpace(t)

	if _, offset := s.PageData(0x8000); offset != 0 {
		t.Fatalf("unmapped page data offset = %d, want 0", offset)
	}

	if data, _ := s.PageData(0x8000); data != nil {
		t.Fatalf("unmapped page data = %v, want nil", data)
	}

	if err := s.WriteBytes(0x8004, []byte{0x42}); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, offset := s.PageData(0x8004)
	if data == nil {
		t.Fatalf("mapped page data is nil")
	}

	if offset != 4 {
		t.Fatalf("offset = %d, want 4", offset)
	}

	if data[offset] != 0x42 {
		t.Fatalf("data[offset] = %#x, want 0x42", data[offset])
	}
}

func TestBytePoolExhaustionIsFault(t *testing.T) {
	pool := page.New(swap.NewMemory())
	s := New(pool)

	// Exhaust the pool directly by opening pages until it refuses.
	for {
		if _, err := pool.OpenPage(); err != nil {
			break
		}
	}

	if _, err := s.Byte(0x6000); !errors.Is(err, herr.Fault) {
		t.Fatalf("Byte() on exhausted pool = %v, want herr.Fault", err)
	}
}
