package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/flower-exporter/internal/config"
	"github.com/noah-isme/flower-exporter/internal/flower"
	"github.com/noah-isme/flower-exporter/internal/health"
	"github.com/noah-isme/flower-exporter/internal/obs"
	"github.com/noah-isme/flower-exporter/internal/poller"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	metrics := obs.NewFlowerMetrics(nil)
	gatherer := prometheus.DefaultGatherer

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
			ServiceName:   "flower-exporter",
			Endpoint:      cfg.OTLPEndpoint,
			SamplingRatio: cfg.TracingSamplingRatio,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	delays := poller.Delays{
		Interval:    cfg.PollInterval,
		ConnRetry:   cfg.ConnRetryDelay,
		StatusRetry: cfg.StatusRetryDelay,
	}
	clients := make([]*flower.Client, 0, len(cfg.FlowerHosts))
	pollers := make([]*poller.Poller, 0, 3*len(cfg.FlowerHosts))
	for _, host := range cfg.FlowerHosts {
		client := flower.NewClient(host, cfg.RequestTimeout)
		clients = append(clients, client)
		pollers = append(pollers,
			poller.NewQueuePoller(client, metrics, gatherer, delays, logger),
			poller.NewWorkerPoller(client, metrics, gatherer, delays, logger),
			poller.NewInspectPoller(client, metrics, gatherer, delays, logger),
		)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)

	r.Handle("/metrics", promhttp.Handler())

	healthHandler := health.Handler{
		Checker: hostChecker{clients: clients},
		Timeout: cfg.RequestTimeout,
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range pollers {
		p := p
		g.Go(func() error {
			err := p.Run(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				// A payload fault stops this poller only; the process and
				// the remaining pollers keep running.
				logger.Error().Err(err).Str("flower", p.Host).Str("poller", p.Kind).Msg("poller stopped")
			}
			return nil
		})
	}
	g.Go(func() error {
		logger.Info().Str("addr", srv.Addr).Int("hosts", len(clients)).Msg("exporter starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("exporter exited unexpectedly")
	}
	logger.Info().Msg("shutdown complete")
}

type hostChecker struct {
	clients []*flower.Client
}

func (c hostChecker) PingHosts(ctx context.Context, timeout time.Duration) map[string]error {
	results := make(map[string]error, len(c.clients))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, client := range c.clients {
		wg.Add(1)
		go func(client *flower.Client) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := client.Ping(pctx)
			mu.Lock()
			results[client.Host()] = err
			mu.Unlock()
		}(client)
	}
	wg.Wait()
	return results
}
