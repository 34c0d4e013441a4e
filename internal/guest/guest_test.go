package guest_test

import (
	"errors"
	"testing"

	"hamster/internal/addrspace"
	"hamster/internal/guest"
	"hamster/internal/herr"
	"hamster/internal/page"
	"hamster/internal/swap"
)

// nullThread is a single-instruction HALT-only machine, just enough to
// prove the registry dispatches to whatever factory is registered for a
// machine value rather than always constructing the same ISA.
type nullThread struct{}

func (nullThread) SetEntry(uint32) {}

func (nullThread) Tick(int) (guest.Status, error) { return guest.Exited, nil }

func (nullThread) SyscallFrame() guest.Frame { return guest.Frame{} }

func (nullThread) SetSyscallReturn(uint32) {}

const nullMachine uint16 = 0xff01

func newNullThread(space *addrspace.Space) guest.Thread { return nullThread{} }

func newSpace(t *testing.T) *addrspace.Space {
	t.Helper()
	return addrspace.New(page.New(swap.NewMemory()))
}

func TestRegistryDispatchesByMachine(t *testing.T) {
	r := guest.NewRegistry()

	if err := r.Register(nullMachine, newNullThread); err != nil {
		t.Fatalf("register: %v", err)
	}

	th, err := r.New(nullMachine, newSpace(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if _, ok := th.(nullThread); !ok {
		t.Fatalf("got thread of type %T, want nullThread", th)
	}
}

func TestRegistryUnknownMachineIsUnsupported(t *testing.T) {
	r := guest.NewRegistry()

	if err := r.Register(nullMachine, newNullThread); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := r.New(0xdead, newSpace(t)); !errors.Is(err, herr.Unsupported) {
		t.Fatalf("new with unregistered machine = %v, want herr.Unsupported", err)
	}
}

func TestRegistryReregisterFails(t *testing.T) {
	r := guest.NewRegistry()

	if err := r.Register(nullMachine, newNullThread); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := r.Register(nullMachine, newNullThread)
	if !errors.Is(err, herr.Exists) {
		t.Fatalf("second register = %v, want herr.Exists", err)
	}
}
