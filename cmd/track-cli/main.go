package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, defaultCLIDeps()); err != nil {
		fmt.Fprintln(os.Stderr, "track-cli:", err)
		os.Exit(1)
	}
}
