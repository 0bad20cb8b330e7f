package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dmorgan81/beamshim/internal/config"
	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/dmorgan81/beamshim/internal/inject"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/tui"
	"github.com/samber/do"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	logFile := flag.String("log", "", "Write logs to this file")
	flag.Parse()

	if err := run(*envFile, *logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, logFile string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := tea.LogToFile(logFile, "deployments")
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	ctx := log.NewContext(context.Background(), log.New(w, log.ParseLevel(cfg.LogLevel)))

	injector := inject.Setup(ctx, cfg)
	defer func() { _ = injector.Shutdown() }()

	browser := do.MustInvoke[*deploy.Browser](injector)
	_, err = tea.NewProgram(tui.NewDeployments(ctx, browser), tea.WithAltScreen()).Run()
	return err
}
