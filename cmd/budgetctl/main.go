// Command budgetctl drives the budget change-request workflow.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"budgetcore/internal/cli"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cli.Options{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()
	exitFunc(code)
}
