package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkonradi/jellywarden/internal/config"
	"github.com/mkonradi/jellywarden/internal/delivery/http/middleware"
	"github.com/mkonradi/jellywarden/internal/exception"
	"github.com/mkonradi/jellywarden/internal/observability"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2/middleware/compress"
	zapLog "go.uber.org/zap"
)

func main() {
	time.Local = time.UTC

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	fiber := config.NewFiber()
	zap := config.NewZap()
	koanf := config.NewKoanf(zap)
	rds := config.NewRedisClient(koanf, zap)

	config.RunMigrations(koanf, zap)

	postgresql := config.NewPostgresqlPool(koanf, zap)
	config.EnsureAdmin(postgresql, koanf, zap)

	minio := config.NewMinIO(koanf, zap)
	jellyfinClient := config.NewJellyfinClient(koanf, zap)

	obsConfig := config.LoadObservabilityConfig(koanf, zap)
	var shutdownTracing func(context.Context) error
	if obsConfig.OtelEndpoint != "" {
		var err error
		shutdownTracing, err = observability.Init(context.Background(), obsConfig, zap)
		if err != nil {
			zap.Fatal("failed to initialize tracing", zapLog.Error(err))
		}
		fiber.Use(otelfiber.Middleware())
	}

	// Custom recovery middleware to handle panics with JSON response
	fiber.Use(exception.Recovery(zap))

	fiber.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	fiber.Use(middleware.SetupCORS(koanf))
	fiber.Use(middleware.SetupRateLimiter(zap))

	housekeeping := config.Server(&config.ServerConfig{
		Router:   fiber,
		DB:       postgresql,
		DBCache:  rds,
		Log:      zap,
		Config:   koanf,
		MinIO:    minio,
		Jellyfin: jellyfinClient,
	})

	workerCtx, stopWorker := context.WithCancel(context.Background())
	go housekeeping.Run(workerCtx)

	GO_SERVER_PORT := koanf.String("GO_SERVER")

	zap.Info("Server is running on: " + GO_SERVER_PORT)

	var err error
	go func() {
		err = fiber.Listen(GO_SERVER_PORT)
		if err != nil {
			zap.Fatal("error starting server", zapLog.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	zap.Info("got one of stop signals")

	stopWorker()

	err = fiber.ShutdownWithContext(shutdownCtx)
	if err != nil {
		zap.Warn("timeout, forced kill!", zapLog.Error(err))
		_ = zap.Sync()
		os.Exit(1)
	}

	if shutdownTracing != nil {
		_ = shutdownTracing(shutdownCtx)
	}

	zap.Info("server has shut down gracefully")
	_ = zap.Sync()
}
