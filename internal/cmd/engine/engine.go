// Package engine parses the engine service flags and launches its
// runtime: the SQLite-backed game store, the mutation engine, the charge
// worker loop and the metrics endpoint.
package engine

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	gameengine "github.com/datadealer/dd-app/internal/engine"
	"github.com/datadealer/dd-app/internal/metrics"
	entrypoint "github.com/datadealer/dd-app/internal/platform/cmd"
	"github.com/datadealer/dd-app/internal/rules"
	"github.com/datadealer/dd-app/internal/storage"
	"github.com/datadealer/dd-app/internal/storage/sqlite"
)

// Config holds engine service configuration.
type Config struct {
	Addr         string        `env:"DD_APP_ENGINE_ADDR" envDefault:":8090"`
	DBPath       string        `env:"DD_APP_ENGINE_DB_PATH" envDefault:"data/engine.db"`
	PollInterval time.Duration `env:"DD_APP_ENGINE_POLL_INTERVAL" envDefault:"2s"`
	DrainLimit   int           `env:"DD_APP_ENGINE_DRAIN_LIMIT" envDefault:"100"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "The metrics and health HTTP address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The engine SQLite database path")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Charge worker poll interval")
	fs.IntVar(&cfg.DrainLimit, "drain-limit", cfg.DrainLimit, "Maximum due charges finished per poll")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engine runtime and blocks until the context is
// canceled.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceEngine, func(ctx context.Context) error {
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close store: %v", err)
			}
		}()

		catalog, err := rules.NewCatalog()
		if err != nil {
			return fmt.Errorf("load rules catalog: %w", err)
		}
		m := metrics.New()
		eng, err := gameengine.New(store, catalog, gameengine.Options{
			EventLog: store,
			Metrics:  m,
		})
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		server := &http.Server{Addr: cfg.Addr, Handler: mux}

		errc := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- err
			}
		}()
		go runChargeWorker(ctx, store, eng, cfg.PollInterval, cfg.DrainLimit)
		log.Printf("engine listening on %s", cfg.Addr)

		select {
		case <-ctx.Done():
		case err := <-errc:
			return fmt.Errorf("serve http: %w", err)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}

// chargeFinisher is the engine capability the worker loop needs.
type chargeFinisher interface {
	FinishCharge(ctx context.Context, owner string, version int, path string, start time.Time) (bool, error)
}

// runChargeWorker polls for expired charge cycles and triggers their
// ready transitions until the context is canceled.
func runChargeWorker(ctx context.Context, scheduler storage.ChargeScheduler, eng chargeFinisher, interval time.Duration, limit int) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := drainDueCharges(ctx, scheduler, eng, time.Now(), limit); err != nil {
				log.Printf("drain due charges: %v", err)
			}
		}
	}
}

// drainDueCharges finishes every expired charge the scheduler reports,
// returning how many transitions were applied. A charge whose document
// moved on is skipped silently.
func drainDueCharges(ctx context.Context, scheduler storage.ChargeScheduler, eng chargeFinisher, now time.Time, limit int) (int, error) {
	due, err := scheduler.DueCharges(ctx, now, limit)
	if err != nil {
		return 0, err
	}
	finished := 0
	for _, charge := range due {
		ok, err := eng.FinishCharge(ctx, charge.Owner, charge.Version, charge.Path, charge.Start)
		if err != nil {
			log.Printf("finish charge %s %s: %v", charge.Owner, charge.Path, err)
			continue
		}
		if ok {
			finished++
		}
	}
	return finished, nil
}
