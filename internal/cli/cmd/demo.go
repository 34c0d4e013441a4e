package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"hamster/internal/cli"
	"hamster/internal/guest/riscv"
	"hamster/internal/guest/riscv/rvasm"
	"hamster/internal/log"
	"hamster/internal/sched"
	"hamster/internal/swap"
	"hamster/internal/syscall"
	"hamster/internal/vfs"
)

// demoSource writes a short greeting to standard out through the write
// syscall and exits, enough to exercise the full guest/host boundary
// (memory, the interpreter, and the scheduler) with no input file.
const demoSource = `
	jal   ra, start       # ra = address of the next instruction (msg),
	                      # and control skips over the inline string data
msg:
	.word 0x6c6c6548      # "Hell"
	.word 0x57202c6f      # "o, W"
	.word 0x646c726f      # "orld"
	.word 0x0000000a      # "\n"
start:
	addi  a0, zero, 1     # fd = stdout
	addi  a1, ra, 0       # buf = address of the string data above
	addi  a2, zero, 13    # count
	addi  a7, zero, 3     # SYS_write
	ecall
	addi  a7, zero, 0     # SYS_exit
	addi  a0, zero, 0
	ecall
`

// Demo is a self-contained demonstration command: no program file
// needed, it assembles and runs a tiny guest program in-process.
func Demo() cli.Command {
	return new(demo)
}

type demo struct {
	debug bool
	quiet bool
}

func (demo) Description() string {
	return "run demo program"
}

func (d demo) Usage(out io.Writer) error {
	var err error
	_, err = fmt.Fprintln(out, `
demo [ -debug | -quiet ]

Assemble and run a small built-in guest program.`)

	return err
}

func (d *demo) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("demo", flag.ExitOnError)

	fs.BoolVar(&d.debug, "debug", false, "enable debug logging")
	fs.BoolVar(&d.quiet, "quiet", false, "enable quiet output, program output only")

	return fs
}

func (d demo) Run(ctx context.Context, args []string, out io.Writer, _ *log.Logger) int {
	if d.quiet {
		log.LogLevel.Set(log.Error)
	}

	if d.debug {
		log.LogLevel.Set(log.Debug)
	}

	logger := log.NewFormattedLogger(os.Stdout)
	log.SetDefault(logger)
	log.DefaultLogger = func() *log.Logger { return logger }

	logger.Info("Assembling demo program")

	const base = 0x1000

	program, err := rvasm.Assemble(bufio.NewReader(strings.NewReader(demoSource)), base)
	if err != nil {
		logger.Error("demo: assemble failed", "err", err)
		return 2
	}

	scheduler := sched.New(syscall.Default(vfs.NewRAMFS()), swap.NewMemory(), sched.WithLogger(logger))
	proc := scheduler.NewProcess("demo", vfs.NewTable())
	proc.Files.Install(1, stdoutFile{out})

	if err := proc.Space.WriteBytes(base, program.Bytes()); err != nil {
		logger.Error("demo: load failed", "err", err)
		return 2
	}

	registry := riscv.NewRegistry()

	thread, err := registry.New(riscv.Machine, proc.Space)
	if err != nil {
		logger.Error("demo: registry dispatch failed", "err", err)
		return 2
	}

	proc.AddThread(thread, base)

	logger.Info("Running demo program")

	if err := scheduler.Run(); err != nil {
		logger.Error("demo: run failed", "err", err)
		return 2
	}

	logger.Info("Demo completed")

	return 0
}

// stdoutFile adapts an io.Writer as a write-only vfs.File, enough to let
// the demo's write syscall land in the command's own output stream
// instead of the process's real stdout.
type stdoutFile struct {
	w io.Writer
}

func (s stdoutFile) ReadAt([]byte, int64) (int, error) {
	return 0, io.EOF
}

func (s stdoutFile) WriteAt(p []byte, _ int64) (int, error) {
	return s.w.Write(p)
}

func (s stdoutFile) Size() int64 { return 0 }

func (s stdoutFile) Truncate(int64) error { return nil }
