package cmd

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"hamster/internal/addrspace"
	"hamster/internal/cli"
	"hamster/internal/console"
	"hamster/internal/elfloader"
	"hamster/internal/guest"
	"hamster/internal/guest/riscv"
	"hamster/internal/log"
	"hamster/internal/sched"
	"hamster/internal/swap"
	"hamster/internal/syscall"
	"hamster/internal/vfs"
)

const flatBinaryBase = 0x1000

func Executor() cli.Command {
	return &executor{log: log.DefaultLogger()}
}

type executor struct {
	logLevel string
	log      *log.Logger
}

func (executor) Description() string {
	return "run a guest program"
}

func (executor) Usage(out io.Writer) error {
	var err error
	_, err = fmt.Fprintln(out, `exec program

Runs a RISC-V RV32I guest program: an ELF executable, or a flat binary
produced by the asm command (loaded at `, fmt.Sprintf("%#x", flatBinaryBase), `).`)

	return err
}

func (ex *executor) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	fs.StringVar(&ex.logLevel, "loglevel", "", "set log `level`")

	return fs
}

// Run loads and executes the guest program named by args[0] to
// completion.
func (ex *executor) Run(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if len(args) == 0 {
		logger.Error("exec: missing program")
		return 1
	}

	if ex.logLevel != "" {
		var level log.Level
		if err := level.UnmarshalText([]byte(ex.logLevel)); err == nil {
			log.LogLevel.Set(level)
		}
	}

	file, err := os.Open(args[0])
	if err != nil {
		logger.Error("exec: open failed", "err", err)
		return 1
	}
	defer file.Close()

	sys := syscall.Default(vfs.NewRAMFS())

	scheduler := sched.New(sys, swap.NewMemory(), sched.WithLogger(logger))
	proc := scheduler.NewProcess(args[0], vfs.NewTable())

	con, err := console.New(os.Stdin, os.Stdout)
	if err != nil {
		logger.Error("exec: console setup failed", "err", err)
		return 1
	}
	defer con.Restore()

	proc.Files.Install(0, con)
	proc.Files.Install(1, con)
	proc.Files.Install(2, con)

	registry := riscv.NewRegistry()

	entry, thread, err := loadImage(registry, file, proc.Space)
	if err != nil {
		logger.Error("exec: load failed", "err", err)
		return 1
	}

	proc.AddThread(thread, entry)

	logger.Info("exec: running", "file", args[0], "entry", fmt.Sprintf("%#x", entry))

	if err := scheduler.Run(); err != nil {
		logger.Error("exec: run failed", "err", err)
		return 1
	}

	logger.Info("exec: terminated")

	return 0
}

// loadImage loads file into space as either an ELF executable or, if it
// doesn't carry an ELF header, a flat binary of RV32I instruction words
// staged at flatBinaryBase. Either way it returns a thread for whichever
// ISA the image targets, dispatched through registry by e_machine; an
// ELF built for an ISA this build doesn't host fails with
// herr.Unsupported instead of silently running as RV32I. A flat binary
// carries no e_machine, so it's always hosted as RV32I directly.
func loadImage(registry *guest.Registry, file *os.File, space *addrspace.Space) (uint32, guest.Thread, error) {
	magic := make([]byte, 4)
	if _, err := file.ReadAt(magic, 0); err != nil && err != io.EOF {
		return 0, nil, err
	}

	if bytes.Equal(magic, []byte{0x7f, 'E', 'L', 'F'}) {
		image, err := elfloader.Load(file, space)
		if err != nil {
			return 0, nil, err
		}

		thread, err := registry.New(image.Machine, space)
		if err != nil {
			return 0, nil, err
		}

		return image.Entry, thread, nil
	}

	code, err := io.ReadAll(file)
	if err != nil {
		return 0, nil, err
	}

	if err := space.WriteBytes(flatBinaryBase, code); err != nil {
		return 0, nil, err
	}

	thread, err := registry.New(riscv.Machine, space)
	if err != nil {
		return 0, nil, err
	}

	return flatBinaryBase, thread, nil
}
