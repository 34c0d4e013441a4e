package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"hamster/internal/cli"
	"hamster/internal/guest/riscv/rvasm"
	"hamster/internal/log"
)

// Assembler is the command that translates RV32I assembly source into a
// flat binary of instruction words, loadable by the exec command's
// raw-binary mode.
//
//	hamster asm -o a.bin -base 0x1000 FILE.s
func Assembler() cli.Command {
	a := new(assembler)
	a.base = 0x1000

	return a
}

type assembler struct {
	debug  bool
	output string
	base   uint
}

func (assembler) Description() string {
	return "assemble RV32I source into a flat binary"
}

func (assembler) Usage(out io.Writer) error {
	var err error
	_, err = fmt.Fprintln(out, `asm [-o file.bin] [-base addr] file.s

Assemble source into a flat, little-endian binary of instruction words.`)

	return err
}

func (a *assembler) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("asm", flag.ExitOnError)
	fs.BoolVar(&a.debug, "debug", false, "enable debug logging")
	fs.StringVar(&a.output, "o", "a.bin", "output `filename`")
	fs.UintVar(&a.base, "base", 0x1000, "load `address` labels are resolved against")

	return fs
}

// Run assembles args[0] and writes the resulting binary to a.output.
func (a *assembler) Run(ctx context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if a.debug {
		log.LogLevel.Set(log.Debug)
	}

	if len(args) == 0 {
		logger.Error("asm: missing source file")
		return 1
	}

	f, err := os.Open(args[0])
	if err != nil {
		logger.Error("asm: open failed", "err", err)
		return 1
	}
	defer f.Close()

	program, err := rvasm.Assemble(bufio.NewReader(f), uint32(a.base))
	if err != nil {
		logger.Error("asm: assemble failed", "err", err)
		return 1
	}

	out, err := os.Create(a.output)
	if err != nil {
		logger.Error("asm: create failed", "out", a.output, "err", err)
		return 1
	}
	defer out.Close()

	if _, err := out.Write(program.Bytes()); err != nil {
		logger.Error("asm: write failed", "out", a.output, "err", err)
		return 1
	}

	logger.Debug("asm: assembled",
		"out", a.output,
		"words", len(program.Words),
		"labels", len(program.Labels),
	)

	return 0
}
