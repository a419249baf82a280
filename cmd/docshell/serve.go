package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"impractical.co/docshell/internal/livereload"
	"impractical.co/docshell/internal/metrics"
	"impractical.co/docshell/internal/server"
)

const shutdownTimeout = 5 * time.Second

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}
	srv, err := server.New(ctx, cfg, server.Options{Metrics: m})
	if err != nil {
		return err
	}
	defer srv.Close()

	var watcher *livereload.Watcher
	if paths := srv.WatchPaths(); len(paths) > 0 {
		watcher = livereload.NewWatcher(cfg.PollInterval())
		if err := watcher.Watch(paths...); err != nil {
			return fmt.Errorf("watch assets: %w", err)
		}
	}

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("listen", cfg.Listen).Bool("dev", cfg.Dev).Msg("serving document shell")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		// hijacked live reload connections aren't closed by Shutdown
		srv.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(ctx, func(path string, exists bool) {
				reason := filepath.Base(path) + " changed"
				if !exists {
					reason = filepath.Base(path) + " removed"
				}
				// failures are logged by Rebuild; the old assets keep serving
				_ = srv.Rebuild(ctx, reason)
			})
		})
	}
	return g.Wait()
}
