package page

import (
	"errors"
	"testing"

	"hamster/internal/herr"
	"hamster/internal/swap"
)

func TestOpenClosePage(t *testing.T) {
	p := New(swap.NewMemory())

	id, err := p.OpenPage()
	if err != nil {
		t.Fatalf("open page: %v", err)
	}

	if !p.IsUsed(id) {
		t.Fatalf("page %d not marked used after open", id)
	}

	*p.Byte(id, 0) = 0x7f

	if err := p.ClosePage(id); err != nil {
		t.Fatalf("close page: %v", err)
	}

	if p.IsUsed(id) {
		t.Fatalf("page %d still used after close", id)
	}
}

func TestOpenPageReusesClosedSlot(t *testing.T) {
	p := New(swap.NewMemory())

	first, _ := p.OpenPage()
	_, _ = p.OpenPage()

	if err := p.ClosePage(first); err != nil {
		t.Fatalf("close page: %v", err)
	}

	reused, err := p.OpenPage()
	if err != nil {
		t.Fatalf("open page: %v", err)
	}

	if reused != first {
		t.Fatalf("OpenPage() = %d, want reused slot %d", reused, first)
	}
}

func TestSwapRoundTrip(t *testing.T) {
	p := New(swap.NewMemory())

	id, _ := p.OpenPage()
	*p.Byte(id, 5) = 0xab

	if err := p.SwapOut(id); err != nil {
		t.Fatalf("swap out: %v", err)
	}

	if !p.IsSwapped(id) {
		t.Fatalf("page not marked swapped")
	}

	if b := *p.Byte(id, 5); b != 0 {
		t.Fatalf("byte read through swapped page = %#x, want dummy 0", b)
	}

	if err := p.SwapIn(id); err != nil {
		t.Fatalf("swap in: %v", err)
	}

	if p.IsSwapped(id) {
		t.Fatalf("page still marked swapped after swap in")
	}

	if b := *p.Byte(id, 5); b != 0xab {
		t.Fatalf("byte after swap in = %#x, want 0xab", b)
	}
}

func TestByteOutOfRangeReturnsDummy(t *testing.T) {
	p := New(swap.NewMemory())

	id, _ := p.OpenPage()

	dummy := p.Byte(id, Size)
	*dummy = 0xff

	if *p.Byte(id, Size) != 0xff {
		t.Fatalf("dummy byte did not retain write")
	}

	// A write through the dummy must never reach a different page's data.
	other, _ := p.OpenPage()
	if *p.Byte(other, 0) == 0xff {
		t.Fatalf("write to dummy byte leaked into another page")
	}
}

func TestByteUnusedPageReturnsDummy(t *testing.T) {
	p := New(swap.NewMemory())

	if b := p.Byte(42, 0); *b != 0 {
		t.Fatalf("Byte on unopened page = %#x, want 0", *b)
	}
}

func TestFlagsPersistUntilClose(t *testing.T) {
	p := New(swap.NewMemory())

	id, _ := p.OpenPage()
	*p.Flags(id) = 0x00ff

	if err := p.SwapOut(id); err != nil {
		t.Fatalf("swap out: %v", err)
	}

	if *p.Flags(id) != 0x00ff {
		t.Fatalf("flags lost across swap out")
	}

	_ = p.ClosePage(id)

	if *p.Flags(id) != 0 {
		t.Fatalf("flags not reset after close")
	}
}

func TestOpenPageOutOfMemory(t *testing.T) {
	p := New(swap.NewMemory())

	// Force the pool to its capacity without allocating MaxPages real
	// slots: simulate by shrinking the effective ceiling isn't possible
	// from outside the package, so this test only exercises the error
	// path's plumbing through a fake exhausted pool state.
	p.slots = make([]slot, MaxPages)
	for i := range p.slots {
		p.slots[i].used = true
	}

	if _, err := p.OpenPage(); !errors.Is(err, herr.OutOfMemory) {
		t.Fatalf("OpenPage() at capacity = %v, want herr.OutOfMemory", err)
	}

	if !errors.Is(p.Err(), herr.OutOfMemory) {
		t.Fatalf("pool error channel = %v, want herr.OutOfMemory", p.Err())
	}
}
