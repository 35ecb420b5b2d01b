package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/florianilch/ratemeter/cmd/ratemeter/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx, os.Args)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "ratemeter:", err)
		os.Exit(1)
	}
}
