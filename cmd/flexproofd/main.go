// Command flexproofd runs the usage-right artifact service: issuance,
// verification, revocation, supersession, audit trails, and presentation
// tokens over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flexproof/flexproof/pkg/adapter"
	"github.com/flexproof/flexproof/pkg/api"
	"github.com/flexproof/flexproof/pkg/config"
	"github.com/flexproof/flexproof/pkg/crypto"
	"github.com/flexproof/flexproof/pkg/engine"
	"github.com/flexproof/flexproof/pkg/observability"
	"github.com/flexproof/flexproof/pkg/registry"
	"github.com/flexproof/flexproof/pkg/verifier"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		loaded, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs, err := observability.New(ctx, &observability.Config{
		ServiceName:    "flexproofd",
		ServiceVersion: "1.0.0",
		Environment:    "production",
		OTLPEndpoint:   cfg.OTLPEndpoint,
		SampleRate:     1.0,
		BatchTimeout:   5 * time.Second,
		Enabled:        cfg.TelemetryOn,
		Insecure:       true,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	signer, err := crypto.NewECDSASigner()
	if err != nil {
		return err
	}
	logger.Info("signing key generated", "curve", "P-256")

	committer := crypto.NewSHA256Committer()
	factory, err := engine.NewFactory(committer, signer)
	if err != nil {
		return err
	}

	reg, closeReg, err := openRegistry(cfg, logger)
	if err != nil {
		return err
	}
	defer closeReg()

	source := adapter.NewMemoryDataSource()
	if cfg.SeedDemoData {
		seedDemoData(source)
		logger.Info("demo data seeded")
	}

	server, err := api.NewServer(api.Deps{
		Factory:  factory,
		Verifier: verifier.NewVerifier(committer),
		Registry: reg,
		Source:   source,
		Signer:   signer,
		IssuerID: cfg.IssuerID,
		Logger:   logger,
		Obs:      obs,
	})
	if err != nil {
		return err
	}

	limiter := api.NewRateLimiter(float64(cfg.RateLimitRPS), cfg.RateLimitBurst)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", httpServer.Addr,
			"issuer", cfg.IssuerID,
			"registry", cfg.RegistryBackend,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func openRegistry(cfg *config.Config, logger *slog.Logger) (registry.Registry, func(), error) {
	switch cfg.RegistryBackend {
	case config.BackendSQLite:
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, err
			}
		}
		db, err := sql.Open("sqlite", cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		db.SetMaxOpenConns(1)
		reg, err := registry.NewSQLiteRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return reg, func() {
			if err := db.Close(); err != nil {
				logger.Warn("close registry db", "error", err)
			}
		}, nil
	default:
		return registry.NewMemoryRegistry(), func() {}, nil
	}
}

// seedDemoData loads a month of synthetic depot readings plus a weekday
// peak tariff window so the issue endpoints work out of the box.
func seedDemoData(source *adapter.MemoryDataSource) {
	source.AddTariffWindows(adapter.TariffWindow{
		Label: "weekday-peak",
		Start: 7 * time.Hour,
		End:   20 * time.Hour,
		Days: []time.Weekday{
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		},
	})

	// Hourly readings for November 2025: overnight charging load with a
	// managed midday plateau.
	start := time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, time.December, 1, 0, 0, 0, 0, time.UTC)
	for t := start; t.Before(end); t = t.Add(time.Hour) {
		kw := 40.0
		switch h := t.Hour(); {
		case h < 6:
			kw = 310.0 + float64(t.Day()%7)*4
		case h >= 7 && h < 20:
			kw = 95.0 + float64(h%5)*3
		}
		source.AddReadings(adapter.LoadReading{
			IntervalStart:    t,
			IntervalDuration: time.Hour,
			AverageKW:        kw,
			EnergyKWh:        kw,
		})
	}
}
