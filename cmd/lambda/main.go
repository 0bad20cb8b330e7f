package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/dmorgan81/beamshim/internal/config"
	"github.com/dmorgan81/beamshim/internal/handler"
	"github.com/dmorgan81/beamshim/internal/inject"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/telemetry"
	"github.com/samber/do"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := log.NewContext(context.Background(), log.New(os.Stderr, log.ParseLevel(cfg.LogLevel)))
	shutdown, err := telemetry.Setup(ctx, "beamshim-lambda")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	injector := inject.Setup(ctx, cfg)
	handler := do.MustInvoke[*handler.Handler](injector)
	lambda.StartWithOptions(handler.Handle, lambda.WithContext(ctx), lambda.WithEnableSIGTERM(func() {
		_ = shutdown(context.Background())
		_ = injector.Shutdown()
	}))
}
