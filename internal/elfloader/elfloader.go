// Package elfloader loads ET_EXEC ELF32 RISC-V binaries into a process's
// address space.
//
// Only the static, statically-linked executable shape is supported:
// there is no dynamic linker, no relocation processing, and no ELF64
// (the reference implementation stubs that case with ENOSYS; this one
// rejects it outright at the same point).
package elfloader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"hamster/internal/addrspace"
	"hamster/internal/herr"
)

const (
	eiNIdent = 16

	eiClass = 4
	eiData  = 5

	elfClass32  = 1
	elfData2LSB = 1

	etExec = 2

	ptLoad = 1
)

var elfMagic = [4]byte{0x7f, 'E', 'L', 'F'}

// Image describes a loaded ELF32 executable: where execution begins and
// which instruction-set architecture it targets.
type Image struct {
	Entry   uint32
	Machine uint16
}

type header32 struct {
	Ident     [eiNIdent]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	PhOff     uint32
	ShOff     uint32
	Flags     uint32
	EhSize    uint16
	PhEntSize uint16
	PhNum     uint16
	ShEntSize uint16
	ShNum     uint16
	ShStrNdx  uint16
}

type progHeader32 struct {
	Type   uint32
	Offset uint32
	VAddr  uint32
	PAddr  uint32
	FileSz uint32
	MemSz  uint32
	Flags  uint32
	Align  uint32
}

// chunkSize is the read buffer used to stream PT_LOAD segment contents
// into the address space, mirroring the reference loader's fixed-size
// copy buffer.
const chunkSize = 64

// Load reads an ELF32 RV32I executable from r and materializes its
// PT_LOAD segments into space. r must support seeking, since the header,
// program header table, and each segment's file contents are read out
// of order.
func Load(r io.ReadSeeker, space *addrspace.Space) (Image, error) {
	var img Image

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	var ident [eiNIdent]byte
	if err := binary.Read(r, binary.LittleEndian, &ident); err != nil {
		return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	if !bytes.Equal(ident[:4], elfMagic[:]) {
		return img, fmt.Errorf("elfloader: %w: bad magic", herr.NotExec)
	}

	if ident[eiClass] != elfClass32 {
		return img, fmt.Errorf("elfloader: %w: only ELFCLASS32 is supported", herr.NotExec)
	}

	if ident[eiData] != elfData2LSB {
		return img, fmt.Errorf("elfloader: %w: only little-endian images are supported", herr.NotExec)
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	var ehdr header32
	if err := binary.Read(r, binary.LittleEndian, &ehdr); err != nil {
		return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	if ehdr.Type != etExec {
		return img, fmt.Errorf("elfloader: %w: dynamic linking is not supported", herr.NotExec)
	}

	img.Entry = ehdr.Entry
	img.Machine = ehdr.Machine

	if _, err := r.Seek(int64(ehdr.PhOff), io.SeekStart); err != nil {
		return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	phdrs := make([]progHeader32, ehdr.PhNum)
	for i := range phdrs {
		if err := binary.Read(r, binary.LittleEndian, &phdrs[i]); err != nil {
			return img, fmt.Errorf("elfloader: %w: %w", herr.Io, err)
		}
	}

	for _, ph := range phdrs {
		if ph.Type != ptLoad {
			continue
		}

		if err := loadSegment(r, space, ph); err != nil {
			return img, err
		}
	}

	return img, nil
}

func loadSegment(r io.ReadSeeker, space *addrspace.Space, ph progHeader32) error {
	if _, err := r.Seek(int64(ph.Offset), io.SeekStart); err != nil {
		return fmt.Errorf("elfloader: %w: %w", herr.Io, err)
	}

	buf := make([]byte, chunkSize)

	var read uint32
	for read < ph.FileSz {
		n := uint32(len(buf))
		if remaining := ph.FileSz - read; remaining < n {
			n = remaining
		}

		got, err := io.ReadFull(r, buf[:n])
		if err != nil {
			return fmt.Errorf("elfloader: %w: %w", herr.Io, err)
		}

		if err := space.WriteBytes(ph.VAddr+read, buf[:got]); err != nil {
			return fmt.Errorf("elfloader: loading segment at %#x: %w", ph.VAddr, err)
		}

		read += uint32(got)
	}

	if ph.MemSz > ph.FileSz {
		zeroSize := ph.MemSz - ph.FileSz

		if err := space.Memset(ph.VAddr+read, 0, zeroSize); err != nil {
			return fmt.Errorf("elfloader: zeroing bss at %#x: %w", ph.VAddr, err)
		}
	}

	return nil
}
