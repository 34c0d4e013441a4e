package vfs

import (
	"errors"
	"testing"

	"hamster/internal/herr"
)

func TestOpenReadWriteCloseRoundTrip(t *testing.T) {
	table := NewTable()
	f := NewRAMFile(nil)

	fd := table.Open(f)

	if _, err := table.Write(fd, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := table.Seek(fd, 0, SeekStart); err != nil {
		t.Fatalf("seek: %v", err)
	}

	buf := make([]byte, 5)
	n, err := table.Read(fd, buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if n != 5 || string(buf) != "hello" {
		t.Fatalf("read = %q (%d bytes), want %q", buf[:n], n, "hello")
	}

	if err := table.Close(fd); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := table.Read(fd, buf); !errors.Is(err, herr.BadDescriptor) {
		t.Fatalf("read after close = %v, want herr.BadDescriptor", err)
	}
}

func TestReadUnknownDescriptor(t *testing.T) {
	table := NewTable()

	if _, err := table.Read(99, make([]byte, 1)); !errors.Is(err, herr.BadDescriptor) {
		t.Fatalf("read(99) = %v, want herr.BadDescriptor", err)
	}
}

func TestSeekEnd(t *testing.T) {
	table := NewTable()
	fd := table.Open(NewRAMFile([]byte("0123456789")))

	pos, err := table.Seek(fd, -3, SeekEnd)
	if err != nil {
		t.Fatalf("seek: %v", err)
	}

	if pos != 7 {
		t.Fatalf("pos = %d, want 7", pos)
	}
}

func TestInstallStandardStreams(t *testing.T) {
	table := NewTable()
	console := NewRAMFile(nil)

	table.Install(0, console)
	table.Install(1, console)
	table.Install(2, console)

	if _, err := table.Write(1, []byte("out")); err != nil {
		t.Fatalf("write to installed fd 1: %v", err)
	}

	// Installed descriptors must not collide with subsequently opened ones.
	fd := table.Open(NewRAMFile(nil))
	if fd < 3 {
		t.Fatalf("newly opened fd = %d, want >= 3", fd)
	}
}
