package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/RX12/RF-LOS-CH/internal/config"
	"github.com/RX12/RF-LOS-CH/internal/engine"
	"github.com/RX12/RF-LOS-CH/internal/fetch"
	"github.com/RX12/RF-LOS-CH/internal/httpapi"
	"github.com/RX12/RF-LOS-CH/internal/logging"
	"github.com/RX12/RF-LOS-CH/internal/observability"
	"github.com/RX12/RF-LOS-CH/internal/swisstopo"
	"github.com/RX12/RF-LOS-CH/internal/terrain"
)

func main() {
	cfg := config.Load()
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "TCP address the JSON API listens on")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "HTTP address for Prometheus /metrics")
	terrainDB := flag.String("terrain-db", cfg.TerrainDBPath, "SQLite path for persisted terrain heights (empty disables persistence)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()
	gin.SetMode(gin.ReleaseMode)

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	httpCol, err := observability.NewHTTPCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise HTTP metrics", logging.Err(err))
		os.Exit(1)
	}
	fetchCol, err := observability.NewFetchCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise fetch metrics", logging.Err(err))
		os.Exit(1)
	}
	analysisCol, err := observability.NewAnalysisCollector(reg)
	if err != nil {
		log.Error(ctx, "failed to initialise analysis metrics", logging.Err(err))
		os.Exit(1)
	}

	metricsSrv := serveMetrics(*metricsAddr, httpCol, log)

	queue := fetch.NewQueue(
		fetch.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		fetch.WithLogger(log),
		fetch.WithMetrics(fetchCol),
		fetch.WithDispatchDelays(cfg.TileDispatchDelay, cfg.LookupDispatchDelay),
		fetch.WithRateWindowSpan(cfg.RateWindowSpan),
	)
	geo := swisstopo.NewClient(cfg.Swisstopo(), queue, log)

	store := openTerrainStore(log, *terrainDB)
	heights := terrain.NewService(geo, terrain.NewCache(cfg.TerrainMatchRadius, cfg.TerrainTTL), store, log)
	if _, err := heights.Warm(ctx); err != nil {
		log.Warn(ctx, "terrain cache warm-up failed", logging.Err(err))
	}

	eng := engine.New(geo, heights,
		engine.WithLogger(log),
		engine.WithMetrics(analysisCol),
		engine.WithGrid(cfg.Grid()),
		engine.WithCenterFallback(!cfg.DisableCenterFallback),
		engine.WithErrorLogSize(cfg.ErrorLogSize),
	)

	api := httpapi.NewServer(eng, geo, queue,
		httpapi.WithLogger(log),
		httpapi.WithHTTPCollector(httpCol),
		httpapi.WithTerrain(heights),
	)

	srv := &http.Server{
		Addr:    *httpAddr,
		Handler: api.Router(),
	}

	log.Info(ctx, "starting analysis API server", logging.String("addr", *httpAddr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	go runMaintenanceLoop(stopCtx, heights, cfg.TerrainTTL/2, log)

	<-stopCtx.Done()

	log.Info(ctx, "shutting down analysis server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if store != nil {
		_ = store.Close()
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func serveMetrics(addr string, collector *observability.HTTPCollector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}

// terrainSweeper is the part of terrain.Service the maintenance loop
// needs.
type terrainSweeper interface {
	Sweep(ctx context.Context) (purged int, pruned int64)
}

// runMaintenanceLoop periodically drops expired terrain samples from
// the cache and the store. It returns when ctx is cancelled.
func runMaintenanceLoop(ctx context.Context, sweeper terrainSweeper, interval time.Duration, log logging.Logger) {
	if sweeper == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, pruned := sweeper.Sweep(ctx)
			if purged > 0 || pruned > 0 {
				log.Info(ctx, "terrain sweep",
					logging.Int("cache_purged", purged),
					logging.Int64("store_pruned", pruned),
				)
			}
		}
	}
}

// openTerrainStore opens the height persistence database. A missing or
// unopenable store degrades to cache-only operation.
func openTerrainStore(log logging.Logger, path string) *terrain.Store {
	if path == "" {
		return nil
	}
	store, err := terrain.OpenStore(path)
	if err != nil {
		log.Warn(context.Background(), "terrain store unavailable, continuing without persistence",
			logging.String("path", path), logging.Err(err))
		return nil
	}
	log.Info(context.Background(), "terrain store opened", logging.String("path", path))
	return store
}
