package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmorgan81/beamshim/internal/config"
	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/dmorgan81/beamshim/internal/inject"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/server"
	"github.com/dmorgan81/beamshim/internal/telemetry"
	"github.com/samber/do"
	"golang.org/x/sync/errgroup"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	addr := flag.String("addr", "", "Listen address (default :$PORT)")
	flag.Parse()

	if err := run(*envFile, *addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, addr string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = net.JoinHostPort("", cfg.Port)
	}

	logger := log.New(os.Stderr, log.ParseLevel(cfg.LogLevel))
	ctx, stop := signal.NotifyContext(log.NewContext(context.Background(), logger), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, "beamshim-proxy")
	if err != nil {
		return err
	}
	defer func() { _ = shutdown(context.Background()) }()

	injector := inject.Setup(ctx, cfg, inject.WithMemoryBlobs())
	defer func() { _ = injector.Shutdown() }()

	srv, err := do.Invoke[*server.Server](injector)
	if err != nil {
		return err
	}
	if srv.Generator == nil {
		logger.Warn("IMAGE_API_URL not set, /api/generate is disabled")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(ctx, addr) })
	if cfg.DeploymentRefresh != "" {
		refresher, err := deploy.NewRefresher(ctx, srv.Browser, cfg.DeploymentRefresh)
		if err != nil {
			return err
		}
		g.Go(func() error { return refresher.Run(ctx) })
	}
	return g.Wait()
}
