// Spins up a concache instance behind a Redis-compatible wire protocol front end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/Joe-noh/concache/pkg/buildinfo"
	"github.com/Joe-noh/concache/pkg/cache"
	"github.com/Joe-noh/concache/pkg/cacheconfig"
	"github.com/Joe-noh/concache/pkg/clog"
	"github.com/Joe-noh/concache/pkg/registry"
	"github.com/Joe-noh/concache/pkg/server"
	"github.com/Joe-noh/concache/pkg/store"
)

var (
	address      = flag.String("address", "0.0.0.0:6380", "The ip:port to listen on for the Redis protocol.")
	printVersion = flag.Bool("print_version", false, "Print the version and exit.")
)

func main() {
	flag.Parse()
	clog.Init()

	if *printVersion {
		slog.Info("concache build info.", "version", buildinfo.Version, "commit", buildinfo.Commit, "build", buildinfo.BuildTime)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, os.Kill)
	go func() {
		sig := <-signals
		slog.Info("Received termination signal, cancelling server context.", "signal", sig)
		cancel()
	}()

	opts := cacheconfig.FromFlags()
	slog.Info("Starting concache.", "options", opts.DebugString())
	c := cache.New[string, []byte]("default", store.NewMap[string, []byte](), opts, nil)
	registry.Global[string, []byte]().Register("default", c)
	defer func() {
		if err := c.Close(); err != nil {
			slog.Error("Failed to close cache cleanly.", "error", err)
		}
	}()

	if err := server.New(c).Run(ctx, *address); err != nil {
		slog.Error("concache server stopped.", "error", err)
		os.Exit(1)
	}
}
