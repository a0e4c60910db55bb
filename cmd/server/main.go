// Package main runs the scheduled job together with the HTTP API:
//   - Scheduler: preparation, forecast and reporting on an interval
//   - API: stored samples, volatility, evaluations, status and /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"social-volatility/internal/api"
	"social-volatility/internal/app"
	"social-volatility/internal/observability"
	"social-volatility/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/pipeline.yaml", "Path to the YAML configuration")
	addr := flag.String("addr", "", "HTTP listen address (overrides server.addr)")
	interval := flag.Duration("interval", -1, "Job interval (overrides server.interval, 0 runs only on demand)")
	noForecast := flag.Bool("no-forecast", false, "Skip model training and evaluation")
	flag.Parse()

	if err := run(*configPath, *addr, *interval, *noForecast); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, addr string, interval time.Duration, noForecast bool) error {
	cfg, log, closer, err := app.Setup(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	if addr != "" {
		cfg.Server.Addr = addr
	}
	if interval >= 0 {
		cfg.Server.Interval = interval
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()

		select {
		case sig := <-sigCh:
			log.Warn().Str("signal", sig.String()).Msg("second signal, forcing exit")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			log.Warn().Msg("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		}
	}()

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := pipeline.NewJob(cfg, stores, log)
	if err != nil {
		return err
	}
	if !noForecast {
		cache, closeCache, err := app.OpenCache(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeCache()
		job.WithForecast(pipeline.NewModelFactory(cfg.Model, cache, cfg.Cache.TTL, observability.DefaultMetrics, log))
	}

	sched := pipeline.NewScheduler(job, cfg.Server.Interval, log)
	server := api.NewServer(api.NewHandler(stores, sched, log), cfg.Server, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sched.Run(gctx)
	})
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shutdown complete")
	return nil
}
