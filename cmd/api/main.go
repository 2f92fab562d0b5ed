package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/traP-jp/sisyphus/internal/api"
	"github.com/traP-jp/sisyphus/internal/cache"
	"github.com/traP-jp/sisyphus/internal/config"
	"github.com/traP-jp/sisyphus/internal/identity"
	"github.com/traP-jp/sisyphus/internal/ledger"
	"github.com/traP-jp/sisyphus/internal/service"
)

const balanceCacheTTL = 30 * time.Second

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Production deployments use real environment variables; the .env
	// file only exists for local development.
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, using system environment")
	}

	cfg := config.Load()
	if cfg.AccessToken == "" {
		log.Warn().Msg("LEDGER_ACCESS_TOKEN is not set, every ledger call will fail")
	}

	var balances *cache.BalanceCache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable, balance caching disabled")
		} else {
			balances = cache.New(client, balanceCacheTTL)
			log.Info().Str("addr", cfg.RedisAddr).Msg("balance cache enabled")
		}
	}

	// Initialize Layers
	ledgerClient := ledger.New(cfg.LedgerAPIURL, cfg.AccessToken)
	resolver := identity.NewResolver(cfg.DefaultUserID, cfg.AuthorizedUsers)
	pointService := service.NewPointService(cfg, ledgerClient, balances)
	handler := api.NewHandler(pointService, resolver, balances, cfg.ReturnBaseURL)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", handler.Health).Methods("GET")

	apiV1 := r.PathPrefix("/api/v1").Subrouter()
	apiV1.Use(handler.Identity)
	apiV1.HandleFunc("/project", handler.GetProject).Methods("GET")
	apiV1.HandleFunc("/points/pay", handler.PayPoints).Methods("POST")
	apiV1.HandleFunc("/points/request", handler.RequestPoints).Methods("POST")

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
