package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/agenthands/cidsum/cmd/cidsum/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := commands.NewRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cidsum:", err)
		os.Exit(1)
	}
}
