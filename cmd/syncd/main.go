package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"staysync/internal/adapters/channels"
	"staysync/internal/adapters/observability"
	redisad "staysync/internal/adapters/redis"
	"staysync/internal/app"
	"staysync/internal/domain"
	"staysync/internal/shared"
	mysqlrepo "staysync/internal/storage/mysql"
)

// syncd runs full syncs for every enabled (property, channel) pair on a
// fixed period, and sweeps stuck `running` logs so no run is left in
// `running` indefinitely.
func main() {
	cfg := shared.Load()

	log.Logger = observability.NewLogger(cfg.AppEnv)
	observability.Serve()

	log.Info().
		Int("workers", cfg.SyncWorkers).
		Int("horizon_days", cfg.SyncHorizonDays).
		Dur("interval", cfg.SyncInterval).
		Msg("syncd starting")

	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("sql.Open failed")
	}
	if err := db.Ping(); err != nil {
		log.Fatal().Err(err).Msg("db.Ping failed")
	}
	log.Info().Msg("db ping ok")

	repo := mysqlrepo.New(db)
	cache := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	factory := channels.NewFactory(cfg.Endpoints, cfg.ChannelRPS)
	rates := app.NewRateService(repo, cache, cfg.CacheTTL, cfg.SyncHorizonDays)
	syncer := app.NewSyncService(repo, repo, rates, repo, factory,
		cfg.SyncHorizonDays, cfg.CallTimeout, cfg.Currency, int64(cfg.SyncWorkers))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	syncTick := time.NewTicker(cfg.SyncInterval)
	defer syncTick.Stop()
	// watchdog runs more often than the cutoff so stuck runs surface quickly
	sweepTick := time.NewTicker(cfg.MaxRunDuration / 2)
	defer sweepTick.Stop()

	runAll(ctx, syncer, repo, cfg.SyncWorkers)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("syncd shutting down")
			return
		case <-syncTick.C:
			runAll(ctx, syncer, repo, cfg.SyncWorkers)
		case <-sweepTick.C:
			swept, err := syncer.SweepStuckRuns(ctx, cfg.MaxRunDuration)
			if err != nil {
				log.Error().Err(err).Msg("watchdog sweep failed")
			} else if swept > 0 {
				log.Warn().Int("swept", swept).Msg("watchdog force-failed stuck runs")
			}
		}
	}
}

// runAll fans out one full sync per enabled pair. Pairs are isolated: a
// failing channel only shows up in its own sync log.
func runAll(ctx context.Context, syncer *app.SyncService, repo domain.ChannelRepository, workers int) {
	pairs, err := repo.ListEnabledPairs(ctx)
	if err != nil {
		log.Error().Err(err).Msg("listing enabled channels failed")
		return
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	for _, pair := range pairs {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break // shutting down
		}
		wg.Add(1)
		go func(propertyID int64, name domain.ChannelName) {
			defer wg.Done()
			defer sem.Release(1)

			sum, err := syncer.SyncChannel(ctx, propertyID, name, domain.SyncFull, "scheduler")
			if err != nil {
				log.Warn().Int64("property", propertyID).Str("channel", string(name)).
					Err(err).Msg("scheduled sync rejected")
				return
			}
			log.Info().Int64("property", propertyID).Str("channel", string(name)).
				Str("sync_id", sum.SyncID).Str("status", string(sum.Status)).Msg("scheduled sync done")
		}(pair.PropertyID, pair.Channel)
	}
	wg.Wait()
}
