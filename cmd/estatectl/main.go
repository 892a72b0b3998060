package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pilab-dev/estate-auth/cmd/estatectl/cmd"
)

func main() {
	// Ctrl-C abandons a pending browser sign-in instead of killing the process mid-write.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx)
	stop()
	os.Exit(code)
}
