package main

import (
	"database/sql"
	"net/http"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"

	"staysync/internal/adapters/channels"
	server "staysync/internal/adapters/http_server"
	"staysync/internal/adapters/observability"
	redisad "staysync/internal/adapters/redis"
	"staysync/internal/app"
	"staysync/internal/shared"
	mysqlrepo "staysync/internal/storage/mysql"
)

func main() {
	cfg := shared.Load()

	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)

	observability.Serve()

	// db
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("database connection ok")

	// deps
	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	factory := channels.NewFactory(cfg.Endpoints, cfg.ChannelRPS)
	rates := app.NewRateService(repo, cache, cfg.CacheTTL, cfg.SyncHorizonDays)
	syncer := app.NewSyncService(repo, repo, rates, repo, factory,
		cfg.SyncHorizonDays, cfg.CallTimeout, cfg.Currency, int64(cfg.SyncWorkers))

	// http
	srv := server.New()
	reg := observability.InitRegistry()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountHandlers(&server.Handlers{Rates: rates, Sync: syncer, Logs: repo, Channels: repo})

	log.Info().Str("addr", cfg.HTTPAddr).Msg("API listening")
	httpSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Mux()}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server failed")
	}
}
