/**
 * @description
 * This is the main entry point for the hawala-service. It is responsible for
 * initializing all components of the service, including configuration, database
 * connection, FX provider clients, the rate cache and resolver, message broker,
 * repository, the core application service, the warm-up scheduler, and the HTTP
 * server. It wires everything together and starts the service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/robfig/cron/v3: Scheduler for the rate warm-up job.
 * - internal/api, internal/app, internal/config, internal/ratecache,
 *   internal/rates, internal/store: Internal packages for the service.
 * - pkg/fxclient, pkg/rabbitmq: FX providers and the event broker.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/sarafnet/hawala-service/internal/api"
	"github.com/sarafnet/hawala-service/internal/app"
	"github.com/sarafnet/hawala-service/internal/config"
	"github.com/sarafnet/hawala-service/internal/ratecache"
	"github.com/sarafnet/hawala-service/internal/rates"
	"github.com/sarafnet/hawala-service/internal/store"
	"github.com/sarafnet/hawala-service/pkg/fxclient"
	rmrabbit "github.com/sarafnet/hawala-service/pkg/rabbitmq"
)

func main() {
	// A local .env file is a development convenience only.
	if err := godotenv.Load(); err == nil {
		log.Println("level=info component=bootstrap msg=\"loaded .env file\"")
	}

	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.InternalAPIKey) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"internal api key must be configured\" env=INTERNAL_API_KEY")
	}

	log.Printf("level=info component=bootstrap msg=\"starting hawala-service\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}

	poolConfig.MaxConns = 100
	poolConfig.MinConns = 20
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer to publish settlement events. A broker
	// outage at boot degrades to the no-op fallback rather than failing.
	var eventProducer rmrabbit.Publisher
	producer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		eventProducer = &rmrabbit.EventProducerFallback{}
	} else {
		defer producer.Close()
		eventProducer = producer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Optional Redis for public-endpoint throttling.
	var redisClient *redis.Client
	if cfg.PublicRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; public rate limiting disabled\" env=REDIS_URL")
		} else {
			redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
			if parseErr != nil {
				log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; public rate limiting disabled\" err=%v", parseErr)
			} else {
				redisClient = redis.NewClient(redisOptions)
				pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancelPing()
				if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
					log.Printf("level=warn component=bootstrap msg=\"redis ping failed; public rate limiting disabled\" err=%v", pingErr)
					redisClient.Close()
					redisClient = nil
				} else {
					defer redisClient.Close()
					log.Println("level=info component=bootstrap msg=\"redis connected\"")
				}
			}
		}
	}

	// Rate resolution stack: FX provider clients, the in-process quote cache,
	// and the tiered resolver on top of them.
	primaryClient := fxclient.NewPrimaryClient(cfg.FXPrimaryBaseURL, cfg.FXPrimaryAPIKey)
	backupClient := fxclient.NewBackupClient(cfg.FXBackupBaseURL, cfg.FXBackupAPIKey)
	rateCache := ratecache.New()
	resolver := rates.NewResolver(
		primaryClient,
		backupClient,
		rateCache,
		rates.DefaultStaticTable(),
		time.Duration(cfg.RateQuoteTTLSeconds)*time.Second,
		time.Duration(cfg.RateCallTimeoutSeconds)*time.Second,
	)

	// Initialize the data access layer (repository).
	repository := store.NewPostgresRepository(dbpool)

	// Initialize the core application service with its dependencies.
	settlementService := app.NewService(repository, resolver, eventProducer, rateCache)

	var limiter api.RateLimiter
	if redisClient != nil {
		limiter = app.NewRedisPublicRateLimiter(redisClient, cfg.RedisRateLimitPrefix)
	}

	// Periodically pre-warm quotes for the frequently traded corridors so the
	// first request after a quiet period does not pay the provider round trip.
	scheduler := cron.New()
	hotPairs := cfg.HotPairList()
	if len(hotPairs) > 0 {
		if _, err := scheduler.AddFunc(cfg.RateRefreshSchedule, func() {
			warmCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			resolver.Warm(warmCtx, hotPairs)
		}); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"rate warm-up schedule invalid; warmer disabled\" schedule=%q err=%v", cfg.RateRefreshSchedule, err)
		} else {
			scheduler.Start()
			defer scheduler.Stop()
			log.Printf("level=info component=bootstrap msg=\"rate warmer scheduled\" schedule=%q pairs=%d", cfg.RateRefreshSchedule, len(hotPairs))
		}
	}

	// Initialize the API handlers and the router.
	handlers := api.NewTransferHandlers(settlementService)
	router := api.Routes(handlers, api.RouterConfig{
		JWKSURL:          cfg.JWKSURL,
		InternalAPIKey:   cfg.InternalAPIKey,
		AllowedOrigins:   cfg.OriginList(),
		PublicRateLimit:  cfg.PublicRateLimitPerMinute,
		PublicRateWindow: time.Minute,
		Limiter:          limiter,
	})

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
