package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jingmouren/gallerybench/internal/bench"
	"github.com/jingmouren/gallerybench/internal/report"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: gallerybench <bench.yaml>")
		os.Exit(1)
	}

	configPath := os.Args[1]

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	result, err := bench.RunFromConfig(ctx, configPath)
	if err != nil {
		slog.Error("bench failed", "error", err)
		os.Exit(1)
	}

	report.WriteSummary(os.Stdout, result)

	if result.Failed > 0 || result.Cancelled {
		os.Exit(1)
	}
}
