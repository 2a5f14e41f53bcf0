package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"crewhub.io/internal/auth"
	"crewhub.io/internal/config"
	"crewhub.io/internal/httpapi"
	"crewhub.io/internal/obs"
)

var version = "0.3.1"

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal().Err(err).Msg("load config")
	}
	obs.SetLevel(cfg.LogLevel)
	obs.Init()

	log := obs.Logger()

	var db *sql.DB
	var store auth.Store
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open db")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		store = auth.NewPGStore(db)
	} else {
		log.Warn().Msg("no CREW_PG_DSN set, using in-memory store")
		store = auth.NewMemoryStore()
	}

	codec, err := auth.NewTokenCodec(cfg.TokenSecret,
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithAccessTTL(cfg.AccessTTL),
		auth.WithRefreshTTL(cfg.RefreshTTL),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("token codec")
	}

	svc, err := auth.NewService(store, codec,
		auth.WithLoginLimiter(auth.NewRateLimiter(cfg.LoginMaxAttempts, cfg.LoginWindow)),
		auth.WithSignupLimiter(auth.NewRateLimiter(cfg.SignupMaxAttempts, cfg.SignupWindow)),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("auth service")
	}

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), 10*time.Second)
	if err := svc.EnsureBuiltins(seedCtx); err != nil {
		cancelSeed()
		log.Fatal().Err(err).Msg("seed roles")
	}
	cancelSeed()

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: db}, version, cfg.Production())

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweeper(sweepCtx, svc, cfg.SweepInterval)

	log.Info().Str("addr", cfg.Addr).Str("version", version).Msg("starting crewhub-api")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Info().Msg("shutting down")
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Info().Msg("stopped")
}

// runSweeper drives rate-limiter cleanup and session expiry on a timer,
// independent of request handling.
func runSweeper(ctx context.Context, svc *auth.Service, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := svc.SweepLimiters()
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			swept, err := svc.SweepSessions(sweepCtx)
			cancel()
			if err != nil {
				obs.Logger().Warn().Err(err).Msg("session sweep failed")
				continue
			}
			if removed > 0 || swept > 0 {
				obs.Logger().Debug().
					Int("rate_records_removed", removed).
					Int("sessions_invalidated", swept).
					Msg("sweep complete")
			}
		}
	}
}
