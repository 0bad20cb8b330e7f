package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/dmorgan81/beamshim/internal/config"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/inject"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/prompt"
	"github.com/dmorgan81/beamshim/internal/tui"
	"github.com/samber/do"
)

func main() {
	envFile := flag.String("env", ".env", "Optional dotenv file")
	logFile := flag.String("log", "", "Write logs to this file")
	outDir := flag.String("out", "images", "Directory for generated image files")
	flag.Parse()

	if err := run(*envFile, *logFile, *outDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(envFile, logFile, outDir string) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	var w io.Writer = io.Discard
	if logFile != "" {
		f, err := tea.LogToFile(logFile, "imagine")
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	ctx := log.NewContext(context.Background(), log.New(w, log.ParseLevel(cfg.LogLevel)))

	injector := inject.Setup(ctx, cfg, inject.WithFileBlobs(outDir))
	defer func() { _ = injector.Shutdown() }()

	gen, err := do.Invoke[image.Generator](injector)
	if err != nil {
		return err
	}

	model := tui.NewImagine(ctx, gen, prompt.WithWindow(cfg.DebounceWindow))
	defer model.Close()

	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}
