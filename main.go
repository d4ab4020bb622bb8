/*
The typeset command line, see cmd for the subcommands.
*/
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/typeset/cmd"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	// cancel the running command, it shuts the engine down on its way out
	go func() {
		<-sigCh
		cancel()
	}()

	cmd.Execute(ctx)
}
