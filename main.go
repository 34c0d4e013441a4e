// Command hamster is the command-line interface to hamster, a tiny
// user-mode emulator that hosts RISC-V RV32I guest programs.
package main

import (
	"context"
	"os"

	"hamster/internal/cli"
	"hamster/internal/cli/cmd"
)

var (
	commands = []cli.Command{
		cmd.Demo(),
		cmd.Executor(),
		cmd.Assembler(),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
