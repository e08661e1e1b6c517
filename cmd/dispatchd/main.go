// Command dispatchd runs the ride-hailing dispatch core as a single
// process: RAMEN/Fireball in-memory state, the dispatcher, StateSync's
// durable write-behind, the SSE/socket/broker transports, and the inbound
// REST surface — grounded on the teacher's cmd/realtime/main.go wiring.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	redisv9 "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/raahi/dispatch-core/internal/busevents"
	"github.com/raahi/dispatch-core/internal/dispatcher"
	"github.com/raahi/dispatch-core/internal/driverstore"
	"github.com/raahi/dispatch-core/internal/geo"
	"github.com/raahi/dispatch-core/internal/httpapi"
	"github.com/raahi/dispatch-core/internal/notify"
	"github.com/raahi/dispatch-core/internal/ridestore"
	"github.com/raahi/dispatch-core/internal/statesync"
	"github.com/raahi/dispatch-core/internal/storage"
	"github.com/raahi/dispatch-core/internal/transport/broker"
	"github.com/raahi/dispatch-core/internal/transport/socket"
	"github.com/raahi/dispatch-core/internal/transport/sse"
	"github.com/raahi/dispatch-core/pkg/config"
	sentryerrors "github.com/raahi/dispatch-core/pkg/errors"
	"github.com/raahi/dispatch-core/pkg/eventbus"
	"github.com/raahi/dispatch-core/pkg/logger"
	"github.com/raahi/dispatch-core/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Environment); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	sentryConfig := sentryerrors.DefaultSentryConfig()
	sentryConfig.ServerName = "dispatch-core"
	sentryConfig.Environment = cfg.Environment
	if err := sentryerrors.InitSentry(sentryConfig); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	} else {
		defer sentryerrors.Flush(2 * time.Second)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := storage.NewPool(rootCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	redisClient, err := redis.NewRedisClient(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	logger.Info("connected to redis")

	geoIndex := geo.NewIndex(cfg.H3Resolution)
	bus := busevents.New()

	driverQueue := storage.NewQueue(10_000)
	rideQueue := storage.NewQueue(10_000)

	driversRepo := storage.NewDriversRepo(pool)
	ridesRepo := storage.NewRidesRepo(pool)
	earningsRepo := storage.NewEarningsRepo(pool)

	driverStore := driverstore.New(geoIndex, driverQueue, driversRepo, cfg.MaxKRingExpansion)
	rideStore := ridestore.New(bus, geoIndex, rideQueue, cfg.MaxKRingExpansion)

	dispatch := dispatcher.New(rideStore, driverStore, bus, geoIndex, dispatcher.Config{
		MaxKRingExpansion: cfg.MaxKRingExpansion,
		SearchRadiusKm:    10,
		CommissionRate:    cfg.PlatformCommissionRate,
	})

	sync := statesync.New(statesync.Config{
		RideFlushInterval:   cfg.RideWriteFlushInterval,
		DriverFlushInterval: cfg.DriverWriteFlushInterval,
		MaxRetries:          cfg.MaxDBWriteRetries,
		CommissionRate:      cfg.PlatformCommissionRate,
	}, driverStore, rideStore, driverQueue, rideQueue, driversRepo, ridesRepo, earningsRepo)

	if err := sync.Hydrate(rootCtx); err != nil {
		logger.Fatal("failed to hydrate state from durable store", zap.Error(err))
	}
	sync.Start(rootCtx)
	defer sync.Shutdown(context.Background())

	go runMaintenanceSweep(rootCtx, rideStore, driverStore)

	locationCache := redisLocationCache{client: redisClient}
	brokerTransport, err := broker.New(cfg.MQTTURL, "dispatch-core", bus, locationCache)
	if err != nil {
		logger.Warn("broker transport unavailable, continuing without it", zap.Error(err))
	} else {
		bus.RegisterTransport(brokerTransport)
		defer brokerTransport.Close()
	}

	sseManager := sse.NewManager()

	socketHub := socket.NewHub()
	socketHandlers := socket.NewHandlers(socketHub, bus, driverStore, rideStore)

	ebCfg := eventbus.DefaultConfig()
	ebCfg.URL = cfg.NATSURL
	collab, err := notify.NewCollabBus(ebCfg)
	if err != nil {
		logger.Warn("collaborator event bus unavailable, continuing without it", zap.Error(err))
	}
	defer collab.Close()

	webhook := notify.NewWebhookNotifier(cfg.NotificationWebhookURL, 5*time.Second)

	ridesHandler := httpapi.NewRidesHandler(dispatch, driverStore, rideStore, webhook, collab)
	sseHandler := httpapi.NewSSEHandler(sseManager, driverStore, geoIndex, cfg.MaxKRingExpansion)
	binaryHandler := httpapi.NewBinaryHandler(driverStore)
	socketHandler := httpapi.NewSocketHandler(socketHub, socketHandlers)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := httpapi.NewRouter(httpapi.Dependencies{
		Rides:                ridesHandler,
		SSE:                  sseHandler,
		Binary:               binaryHandler,
		Socket:               socketHandler,
		InternalSharedSecret: cfg.InternalSharedSecret,
		RequestTimeout:       30 * time.Second,
		ReadyChecks: map[string]func() error{
			"database": func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return pool.Ping(ctx)
			},
			"redis": func() error {
				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				return redisClient.Client.Ping(ctx).Err()
			},
		},
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("dispatch core listening", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

// maintenanceSweepInterval is the cadence for the ride TTL sweep and the
// driver index consistency check (spec §4.5 "a periodic sweep (~60s)", spec
// §7(d) / §8 invariant 4).
const maintenanceSweepInterval = 60 * time.Second

// runMaintenanceSweep runs Fireball's terminal-ride TTL cleanup and RAMEN's
// h3 index consistency check on the same periodic cadence until ctx is
// cancelled, grounded on the teacher's ticker-loop background workers.
func runMaintenanceSweep(ctx context.Context, rideStore *ridestore.Store, driverStore *driverstore.Store) {
	ticker := time.NewTicker(maintenanceSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rideStore.SweepExpired(ridestore.DefaultTTL); n > 0 {
				logger.Info("swept expired ride records", zap.Int("count", n))
			}
			driverStore.CheckIndexConsistency()
		}
	}
}

// redisLocationCache adapts the shared redis client to the broker
// transport's narrow LocationCache interface (spec §4.7 "last-known
// location retained for reconnecting drivers").
type redisLocationCache struct {
	client *redis.Client
}

func (c redisLocationCache) Get(ctx context.Context, driverID string) ([]byte, bool, error) {
	val, err := c.client.Client.Get(ctx, "driver:location:"+driverID).Bytes()
	if err == redisv9.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c redisLocationCache) Set(ctx context.Context, driverID string, payload []byte) error {
	return c.client.Client.Set(ctx, "driver:location:"+driverID, payload, 24*time.Hour).Err()
}
