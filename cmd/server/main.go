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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"optionchain/internal/app"
	"optionchain/internal/config"
	"optionchain/internal/logging"
	"optionchain/internal/notify"
	"optionchain/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := pipeline.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	hub := notify.NewHub(log.With(zap.String("component", "ws")), cfg.Server.CORSOrigins)
	a := &api{
		resolver:    pipeline.Resolver,
		store:       pipeline.Store,
		hub:         hub,
		log:         log,
		readTimeout: time.Duration(cfg.Server.RequestTimeoutSec) * time.Second,
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           a.routes(cfg.Server.CORSOrigins, hub),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// a scrape may take the whole pipeline timeout plus the fallback reads
		WriteTimeout: cfg.PipelineTimeout() + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sched := &scheduler.Scheduler{
		RunOnStart: cfg.Scheduler.RunOnStart,
		Log:        log.With(zap.String("component", "scheduler")),
		Job: func(ctx context.Context) {
			hub.Broadcast(snapshotMessage(pipeline.Resolver.Resolve(ctx)))
		},
	}
	if cfg.Scheduler.Enabled {
		sched.Interval = cfg.SchedulerInterval()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.Store.Driver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		// graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
