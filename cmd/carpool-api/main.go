// README: Entry point; loads config, wires stores and the simulation manager, serves the HTTP API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"carpool/internal/config"
	httptransport "carpool/internal/http"
	"carpool/internal/infra"
	"carpool/internal/modules/directory"
	"carpool/internal/modules/report"
	"carpool/internal/modules/simulation"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}
	log := infra.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			fatal(log, "firebase init", err)
		}
	} else {
		log.Warn("CARPOOL_FIREBASE_PROJECT_ID not set; API authentication disabled")
	}

	var stores report.Multi
	if cfg.DB.DSN != "" {
		pool, err := infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			fatal(log, "postgres", err)
		}
		defer pool.Close()
		pg := report.NewPGStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			fatal(log, "postgres schema", err)
		}
		stores = append(stores, pg)
	}
	if cfg.SQLite.Path != "" {
		db, err := infra.NewSQLite(ctx, cfg.SQLite.Path)
		if err != nil {
			fatal(log, "sqlite", err)
		}
		defer db.Close()
		lite := report.NewSQLiteStore(db)
		if err := lite.EnsureSchema(ctx); err != nil {
			fatal(log, "sqlite schema", err)
		}
		stores = append(stores, lite)
	}
	var store report.Store
	switch len(stores) {
	case 0:
	case 1:
		store = stores[0]
	default:
		store = stores
	}

	var dirs simulation.DirectoryFactory
	if cfg.Redis.Addr != "" {
		client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
		if err != nil {
			fatal(log, "redis", err)
		}
		defer client.Close()
		dirs = func(id string) directory.Directory { return directory.NewRedisStore(client, id) }
	}

	manager := simulation.NewManager(store, dirs, log)
	defaults := simulation.DefaultScenario()
	defaults.Negotiation = cfg.Negotiation

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Simulations: manager,
		Defaults:    defaults,
		Verifier:    verifier,
		Log:         log,
	})
	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info("listening", "addr", cfg.HTTP.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fatal(log, "http server", err)
	}
	manager.Shutdown()
}

func fatal(log *slog.Logger, what string, err error) {
	log.Error(what, "err", err)
	os.Exit(1)
}
