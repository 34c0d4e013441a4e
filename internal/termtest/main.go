// Termtest is a testing tool for Unix terminal I/O. Lacking simple PTY support, running this tool
// manually is easier than writing automated tests.
package main

import (
	"context"
	"os"
	"time"

	"hamster/internal/console"
	"hamster/internal/log"
)

var logger = log.DefaultLogger()

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	con, err := console.New(os.Stdin, os.Stdout)
	if err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
	defer con.Restore()

	logger.Info("Raw mode engaged. Type keys; Ctrl-C to quit.")

	read := make(chan byte)

	go func() {
		buf := make([]byte, 1)

		for {
			n, err := con.ReadAt(buf, 0)
			if err != nil {
				return
			}

			if n > 0 {
				read <- buf[0]
			}
		}
	}()

	for {
		select {
		case b := <-read:
			if b == 0x03 { // Ctrl-C
				logger.Info("Done")
				return
			}

			con.WriteAt([]byte{b}, 0)
		case <-ctx.Done():
			logger.Info("Timeout")
			return
		}
	}
}
