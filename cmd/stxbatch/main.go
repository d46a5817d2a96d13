package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stxbatch/internal/config"
	"stxbatch/internal/reader"
	"stxbatch/internal/tip"
)

func main() {
	// Parse flags
	var vars, maps, calls listFlag
	configPath := flag.String("config", "config.json", "path to config file")
	tipRef := flag.String("tip", "", "index block hash to read at (default: latest)")
	interval := flag.Duration("interval", 0, "repeat the reads at this interval until interrupted")
	flag.Var(&vars, "var", "data variable to read, CONTRACT:VAR (repeatable)")
	flag.Var(&maps, "map", "map entry to read, CONTRACT:MAP:KEYHEX (repeatable)")
	flag.Var(&calls, "call", "read-only function to call, CONTRACT:FN[:ARGHEX...] (repeatable)")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		// Basic logger for startup errors
		log := zerolog.New(os.Stderr).With().Timestamp().Logger()
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel)

	queries, err := parseQueries(vars, maps, calls)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid query")
	}
	if len(queries) == 0 {
		logger.Fatal().Msg("nothing to read: pass at least one -var, -map or -call")
	}
	if err := tip.Validate(*tipRef); err != nil {
		logger.Fatal().Err(err).Msg("invalid tip")
	}

	logger.Info().
		Str("config", *configPath).
		Str("endpoint", cfg.Endpoint).
		Int("batchDelay", cfg.BatchDelay).
		Int("queries", len(queries)).
		Msg("starting stxbatch")

	var reg *prometheus.Registry
	if cfg.IsMetricsEnabled() {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
	}

	// a nil *Registry must not reach NewFromConfig as a non-nil interface
	var registerer prometheus.Registerer
	if reg != nil {
		registerer = reg
	}

	r, err := reader.NewFromConfig(cfg, registerer, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create reader")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if reg != nil {
		metricsServer = startMetricsServer(cfg.MetricsAddr, reg, logger)
	}

	round := func() int {
		return runQueries(ctx, r, *tipRef, queries, logger)
	}
	failed := round()
	if *interval > 0 {
		ticker := time.NewTicker(*interval)
		failed += poll(ctx, ticker.C, round)
		ticker.Stop()
		logger.Info().Msg("received shutdown signal")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := r.Close(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during shutdown")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("error stopping metrics server")
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

func parseQueries(vars, maps, calls []string) ([]query, error) {
	var queries []query
	for _, group := range []struct {
		kind queryKind
		raw  []string
	}{
		{queryVar, vars},
		{queryMap, maps},
		{queryCall, calls},
	} {
		for _, raw := range group.raw {
			q, err := parseQuery(group.kind, raw)
			if err != nil {
				return nil, err
			}
			queries = append(queries, q)
		}
	}
	return queries, nil
}

// poll runs round on every tick until ctx ends and returns the failures of
// all rounds, so the exit status reflects the whole session.
func poll(ctx context.Context, ticks <-chan time.Time, round func() int) int {
	failed := 0
	for {
		select {
		case <-ctx.Done():
			return failed
		case <-ticks:
			failed += round()
		}
	}
}

// runQueries issues every query concurrently so they land in one batch,
// prints the results in flag order and returns the number of failures.
func runQueries(ctx context.Context, r *reader.Reader, tipRef string, queries []query, logger zerolog.Logger) int {
	results := make([]string, len(queries))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			v, err := q.run(gctx, r, tipRef)
			if err != nil {
				logger.Error().Err(err).Str("query", q.label()).Msg("read failed")
				mu.Lock()
				failed++
				mu.Unlock()
				results[i] = fmt.Sprintf("%s = error: %v", q.label(), err)
				// one failed read must not cancel the others
				return nil
			}
			results[i] = fmt.Sprintf("%s = %s", q.label(), format(v))
			return nil
		})
	}
	_ = g.Wait()

	for _, line := range results {
		fmt.Println(line)
	}
	return failed
}

func startMetricsServer(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("starting metrics server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()
	return srv
}

// setupLogger configures the zerolog logger
func setupLogger(level string) zerolog.Logger {
	var logLevel zerolog.Level
	switch level {
	case "debug":
		logLevel = zerolog.DebugLevel
	case "info":
		logLevel = zerolog.InfoLevel
	case "warn":
		logLevel = zerolog.WarnLevel
	case "error":
		logLevel = zerolog.ErrorLevel
	default:
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	// Results go to stdout, so logs go to stderr
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	return zerolog.New(output).With().Timestamp().Logger()
}
