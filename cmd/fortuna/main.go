package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dfortune/fortuna/adapters/cache"
	"github.com/dfortune/fortuna/adapters/events"
	"github.com/dfortune/fortuna/adapters/store"
	"github.com/dfortune/fortuna/adapters/tokenizer"
	"github.com/dfortune/fortuna/config"
	"github.com/dfortune/fortuna/contracts"
	"github.com/dfortune/fortuna/dashboard"
	"github.com/dfortune/fortuna/ports"
	"github.com/dfortune/fortuna/service"
	transport "github.com/dfortune/fortuna/transport/http"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Session signing key
	signKey, err := cfg.SessionSigningKey()
	if err != nil {
		log.Fatal("failed to load session signing key", zap.Error(err))
	}

	// Account store
	var userStore ports.UserStore
	if cfg.PostgresDSN != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatal("failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatal("failed to ping postgres", zap.Error(err))
		}
		userStore = store.NewPostgresStore(pool)
	} else {
		userStore = store.NewMemoryStore()
	}

	// Redis
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("failed to parse redis URL", zap.Error(err))
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	// Event publisher
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		log.Fatal("failed to create event publisher", zap.Error(err))
	}
	defer publisher.Close()
	eventPub := events.NewWatermillPublisher(publisher)

	// Auth services
	challenges := service.NewChallengeStore(userStore, cfg.OperatorAddress, log)
	tk := tokenizer.NewJWTTokenizer(signKey, tokenizer.WithSessionTTL(cfg.SessionTTL))
	auth := service.NewAuthService(
		challenges, userStore, tk, eventPub,
		cfg.AppName, cfg.OperatorAddress, log,
		service.WithRefreshWindow(cfg.RefreshWindow),
	)

	// Dashboard, when a chain endpoint is configured
	var dash *dashboard.Service
	if cfg.RPCURL != "" {
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			log.Fatal("failed to connect to RPC endpoint", zap.Error(err))
		}
		defer client.Close()

		fetcher := contracts.NewEtherscanFetcher(cfg.EtherscanAPIURL, cfg.EtherscanAPIKey, nil)
		registry := contracts.NewRegistry(fetcher, cache.NewRedisCache(redisClient), log)
		dash = dashboard.NewService(contracts.NewReader(registry, client), userStore, log)
	}

	router := transport.SetupRouter(auth, dash, log, transport.RouterConfig{
		Production:      cfg.Production(),
		RateLimiter:     redisClient,
		NoncesPerMinute: cfg.NoncesPerMinute,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("forced shutdown", zap.Error(err))
	}
}
