// Package server is the proxy: echo routes, routes forwarding to the Beam
// SDK and the image backend, and the server-rendered deployments page.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dmorgan81/beamshim/internal/deploy"
	"github.com/dmorgan81/beamshim/internal/event"
	"github.com/dmorgan81/beamshim/internal/image"
	"github.com/dmorgan81/beamshim/internal/log"
	"github.com/dmorgan81/beamshim/internal/page"
	"github.com/samber/do"
)

const maxBodyBytes = 1 << 20

type FeedGenerator interface {
	Generate(context.Context) ([]byte, error)
}

// Server wires the routes. Generator, Publisher, Blobs and Feed are optional;
// their routes answer 503 or 404 when unset.
type Server struct {
	Browser   *deploy.Browser
	Connect   deploy.Connector
	Templator *page.Templator
	Generator image.Generator
	Publisher event.Publisher
	Blobs     *image.MemoryBlobs
	Feed      FeedGenerator
}

func NewServer(i *do.Injector) (*Server, error) {
	s := &Server{
		Browser:   do.MustInvoke[*deploy.Browser](i),
		Connect:   do.MustInvoke[deploy.Connector](i),
		Templator: do.MustInvoke[*page.Templator](i),
		Publisher: do.MustInvoke[event.Publisher](i),
		Blobs:     do.MustInvoke[*image.MemoryBlobs](i),
	}
	if g, err := do.Invoke[image.Generator](i); err == nil {
		s.Generator = g
	}
	if f, err := do.Invoke[FeedGenerator](i); err == nil {
		s.Feed = f
	}
	return s, nil
}

func (s *Server) Handler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/hello", s.handleHello)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/data", s.handleData)
	mux.HandleFunc("POST /api/generate", s.handleGenerate)
	mux.HandleFunc("GET /deployment", s.handleDeployment)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("POST /deployments/{id}/call", s.handleCall)
	mux.HandleFunc("GET /feed.xml", s.handleFeed)
	if s.Blobs != nil {
		mux.Handle("GET /blobs/{id}", s.Blobs)
	}
	return WithLogger(logger, LogRequest(mux))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	logger := log.FromContextOrDiscard(ctx).WithGroup("server")

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(log.FromContextOrDiscard(ctx)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
