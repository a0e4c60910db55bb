// Package main runs the preparation, forecast and reporting job once.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"social-volatility/internal/app"
	"social-volatility/internal/observability"
	"social-volatility/internal/pipeline"
)

func main() {
	configPath := flag.String("config", "configs/pipeline.yaml", "Path to the YAML configuration")
	outputDir := flag.String("output-dir", "", "Output directory (overrides output_dir)")
	noForecast := flag.Bool("no-forecast", false, "Skip model training and evaluation")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running (overrides metrics.addr)")
	flag.Parse()

	if err := run(*configPath, *outputDir, *noForecast, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, outputDir string, noForecast bool, metricsAddr string) error {
	cfg, log, closer, err := app.Setup(configPath)
	if err != nil {
		return err
	}
	defer closer.Close()

	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer srv.Close()
	}

	stores, cleanup, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	job, err := pipeline.NewJob(cfg, stores, log)
	if err != nil {
		return err
	}
	if outputDir != "" {
		job.WithOutputDir(outputDir)
	}

	if !noForecast {
		cache, closeCache, err := app.OpenCache(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeCache()
		job.WithForecast(pipeline.NewModelFactory(cfg.Model, cache, cfg.Cache.TTL, observability.DefaultMetrics, log))
	}

	res, err := job.Run(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Prepared %d asset(s), %d failed\n", len(res.Prepare.Assets), len(res.Prepare.Errors))
	for _, e := range res.Prepare.ErrorStrings() {
		fmt.Printf("  - %s\n", e)
	}
	for _, ev := range res.Evaluations {
		fmt.Printf("  %s %-18s MSE=%.6g scored=%d skipped=%d\n", ev.Asset, ev.Model, ev.MSE, ev.Scored, ev.Skipped)
	}
	fmt.Println("Files:")
	for _, f := range res.Files {
		fmt.Printf("  - %s\n", f)
	}
	if !res.Sufficiency.AllPass {
		fmt.Println("Data sufficiency: FAIL")
	}
	return nil
}
