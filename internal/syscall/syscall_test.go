package syscall

import (
	"testing"

	"hamster/internal/addrspace"
	"hamster/internal/guest"
	"hamster/internal/page"
	"hamster/internal/swap"
	"hamster/internal/vfs"
)

func newContext(t *testing.T) (*Context, *vfs.RAMFS) {
	t.Helper()

	space := addrspace.New(page.New(swap.NewMemory()))
	fs := vfs.NewRAMFS()

	return &Context{Space: space, Files: vfs.NewTable()}, fs
}

func writeCString(t *testing.T, space *addrspace.Space, addr uint32, s string) {
	t.Helper()

	if err := space.WriteBytes(addr, append([]byte(s), 0)); err != nil {
		t.Fatalf("write path: %v", err)
	}
}

func TestOpenReadWriteCloseSyscalls(t *testing.T) {
	ctx, fs := newContext(t)
	fs.Put("/bin/hello", []byte("payload"))

	table := Default(fs)

	writeCString(t, ctx.Space, 0x1000, "/bin/hello")

	fd, err := table.Dispatch(ctx, guest.Frame{Num: Open, Args: [6]uint32{0x1000, 0}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	n, err := table.Dispatch(ctx, guest.Frame{Num: Read, Args: [6]uint32{fd, 0x2000, 7}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	if n != 7 {
		t.Fatalf("read returned %d, want 7", n)
	}

	got := make([]byte, 7)
	ctx.Space.ReadBytes(0x2000, got)

	if string(got) != "payload" {
		t.Fatalf("read content = %q, want %q", got, "payload")
	}

	if _, err := table.Dispatch(ctx, guest.Frame{Num: Close, Args: [6]uint32{fd}}); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestWriteSyscallEchoesToFile(t *testing.T) {
	ctx, _ := newContext(t)

	f := vfs.NewRAMFile(nil)
	fd := ctx.Files.Open(f)

	ctx.Space.WriteBytes(0x3000, []byte("echo"))

	table := Table{Write: writeHandler}

	n, err := table.Dispatch(ctx, guest.Frame{Num: Write, Args: [6]uint32{uint32(fd), 0x3000, 4}})
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	if n != 4 {
		t.Fatalf("write returned %d, want 4", n)
	}

	if string(f.Bytes()) != "echo" {
		t.Fatalf("file contents = %q, want %q", f.Bytes(), "echo")
	}
}

func TestSeekSyscall(t *testing.T) {
	ctx, _ := newContext(t)
	fd := ctx.Files.Open(vfs.NewRAMFile([]byte("0123456789")))

	table := Table{Seek: seekHandler}

	pos, err := table.Dispatch(ctx, guest.Frame{Num: Seek, Args: [6]uint32{uint32(fd), 3, uint32(vfs.SeekStart)}})
	if err != nil {
		t.Fatalf("seek: %v", err)
	}

	if pos != 3 {
		t.Fatalf("seek returned %d, want 3", pos)
	}
}

func TestDispatchUnknownSyscall(t *testing.T) {
	ctx, fs := newContext(t)
	table := Default(fs)

	if _, err := table.Dispatch(ctx, guest.Frame{Num: 99}); err == nil {
		t.Fatalf("dispatch of unknown syscall succeeded, want error")
	}
}
