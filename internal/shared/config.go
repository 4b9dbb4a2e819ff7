package shared

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"staysync/internal/domain"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string
	MySQLDSN    string
	RedisAddr   string
	RedisDB     int
	RedisPass   string

	Currency string

	// Sync tuning
	SyncHorizonDays int           // nights of rates/inventory pushed per run
	SyncWorkers     int           // syncd fan-out width
	ChannelRPS      int           // client-side rate limit per adapter
	CallTimeout     time.Duration // bound per adapter call
	MaxRunDuration  time.Duration // watchdog cutoff for stuck runs
	SyncInterval    time.Duration // syncd scheduling period
	CacheTTL        time.Duration

	// Channel API endpoints
	Endpoints map[domain.ChannelName]string
}

func Load() Config {
	atoi := func(k string, def int) int {
		if v := os.Getenv(k); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
		return def
	}
	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),
		MySQLDSN:    env("MYSQL_DSN", "root:root@tcp(localhost:3306)/staysync?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),
		RedisAddr:   env("REDIS_ADDR", "localhost:6379"),
		RedisPass:   env("REDIS_PASSWORD", ""),
		RedisDB:     atoi("REDIS_DB", 0),

		Currency: env("PROPERTY_CURRENCY", "INR"),

		SyncHorizonDays: atoi("SYNC_HORIZON_DAYS", 30),
		SyncWorkers:     atoi("SYNC_WORKERS", 4),
		ChannelRPS:      atoi("CHANNEL_RPS", 5),
		CallTimeout:     time.Duration(atoi("CHANNEL_CALL_TIMEOUT_SECONDS", 30)) * time.Second,
		MaxRunDuration:  time.Duration(atoi("MAX_RUN_DURATION_SECONDS", 600)) * time.Second,
		SyncInterval:    time.Duration(atoi("SYNC_INTERVAL_SECONDS", 3600)) * time.Second,
		CacheTTL:        time.Duration(atoi("CACHE_TTL_SECONDS", 900)) * time.Second,

		Endpoints: map[domain.ChannelName]string{
			domain.ChannelBookingCom: env("BOOKINGCOM_BASE_URL", "https://supply-api.booking.com/v1"),
			domain.ChannelExpedia:    env("EXPEDIA_BASE_URL", "https://services.expediapartnercentral.com/v1"),
			domain.ChannelAgoda:      env("AGODA_BASE_URL", "https://supply.agoda.com/v1"),
		},
	}
	if c.SyncHorizonDays <= 0 {
		log.Warn().Msg("SYNC_HORIZON_DAYS must be positive; using 30")
		c.SyncHorizonDays = 30
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
