package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/maax3v3/brickify/internal/cli"
	"github.com/maax3v3/brickify/internal/pipeline"
	"github.com/maax3v3/brickify/internal/renderer"
)

func main() {
	cfg, err := cli.ParseCompute(os.Args[1:], os.Stderr)
	if cli.IsHelp(err) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx, cfg, renderer.NewBitmapFont()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
