// Package main provides the pathpredict command line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pathpredict/pathpredict/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, cli.Options{}, os.Args[1:])
	stop()
	os.Exit(code)
}
