package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oarkflow/springview"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter serves every view at its own path ("/" is "index") and the
// engine metrics at /metrics.
func newRouter(e *springview.Engine, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
		view := strings.Trim(req.URL.Path, "/")
		if view == "" {
			view = "index"
		}
		out, err := e.RenderRequest(req, view, nil)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, springview.ErrTemplateNotFound) {
				status = http.StatusNotFound
			}
			logger.Warn("render failed", "view", view, "error", err)
			http.Error(w, err.Error(), status)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(out))
	})
	return r
}

func serve(e *springview.Engine, o *options, reg *prometheus.Registry, logger *slog.Logger) error {
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if o.reload > 0 {
		rl := e.NewReloader(o.reload)
		if err := rl.WatchDirectory(); err != nil {
			return &ExitError{Code: 1, Message: err.Error()}
		}
		rl.AddCallback(func(view string, err error) {
			if err != nil {
				logger.Warn("view reload failed", "view", view, "error", err)
				return
			}
			logger.Info("view reloaded", "view", view)
		})
		rl.Start()
		defer rl.Stop()
	}

	srv := &http.Server{
		Addr:              o.addr,
		Handler:           newRouter(e, reg, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("springview serving", "addr", o.addr, "views", e.ViewPath())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
