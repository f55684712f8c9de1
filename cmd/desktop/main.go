// Package main runs the local desktop server. The web client talks to it over
// REST on /api and receives sync events over WebSocket on /ws.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kimhsiao/resaletally/cmd/desktop/handlers"
	"github.com/kimhsiao/resaletally/internal/app"
	"github.com/kimhsiao/resaletally/internal/config"
	"github.com/kimhsiao/resaletally/internal/logging"
)

const (
	shutdownTimeout = 10 * time.Second
	// flushTimeout bounds how long exit waits for the final beacon upload.
	flushTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(config.Options{
		ConfigFile: os.Getenv(config.EnvPrefix + "_CONFIG_FILE"),
	})
	if err != nil {
		return err
	}
	logging.Setup(cfg.Log.Level, cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Close()
		return err
	}

	hub := NewWSHub()
	hub.Attach(a.Notifier)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("Desktop server listening", map[string]interface{}{
			"addr":    cfg.ListenAddr,
			"user_id": a.Session.UserID(),
			"backend": cfg.Remote.Backend,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logging.Info("Shutting down", nil)
	case err := <-serveErr:
		if err != nil {
			hub.Close()
			_ = a.Shutdown(flushTimeout)
			return fmt.Errorf("server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	hub.Close()
	return a.Shutdown(flushTimeout)
}

// newRouter builds the HTTP routes.
func newRouter(a *app.App, hub *WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","service":"resaletally-desktop","sync":%q}`, a.Client.Status())
	})
	r.Route("/api", func(r chi.Router) {
		handlers.Mount(r, a)
	})
	r.Get("/ws", HandleWebSocket(hub))
	return r
}

// requestLogger logs every request at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logging.Debug("HTTP request", map[string]interface{}{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		})
	})
}
