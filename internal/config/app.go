package config

import (
	"time"

	http "github.com/mkonradi/jellywarden/internal/delivery/http"
	"github.com/mkonradi/jellywarden/internal/delivery/http/middleware"
	"github.com/mkonradi/jellywarden/internal/delivery/http/route"
	"github.com/mkonradi/jellywarden/internal/jellyfin"
	"github.com/mkonradi/jellywarden/internal/repository"
	"github.com/mkonradi/jellywarden/internal/usecase"
	"github.com/minio/minio-go/v7"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/knadh/koanf/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type ServerConfig struct {
	Router   *fiber.App
	DB       *pgxpool.Pool
	DBCache  *redis.Client
	Log      *zap.Logger
	Config   *koanf.Koanf
	MinIO    *minio.Client
	Jellyfin *jellyfin.Client
}

// Server wires the layers together and registers routes. It returns the
// housekeeping worker so main can run it with its own lifecycle context.
func Server(config *ServerConfig) *usecase.HousekeepingUsecase {
	inviteRepository := repository.NewInviteRepository(config.Log, config.DB)
	userRepository := repository.NewUserRepository(config.Log, config.DB, config.DBCache)
	profileRepository := repository.NewProfileRepository(config.Log, config.DB, config.MinIO)
	activityRepository := repository.NewActivityRepository(config.Log, config.DB)

	inviteUsecase := usecase.NewInviteUsecase(inviteRepository, userRepository, profileRepository, activityRepository, config.Jellyfin, config.DB, config.Log, config.Config)
	userUsecase := usecase.NewUserUsecase(userRepository, activityRepository, config.Jellyfin, config.DB, config.Log, config.Config)
	profileUsecase := usecase.NewProfileUsecase(profileRepository, config.Jellyfin, config.Log, config.Config)
	activityUsecase := usecase.NewActivityUsecase(activityRepository, config.Log)

	inviteController := http.NewInviteController(inviteUsecase, config.Log, config.Config)
	userController := http.NewUserController(userUsecase, config.Log, config.Config)
	profileController := http.NewProfileController(profileUsecase, config.Log, config.Config)
	activityController := http.NewActivityController(activityUsecase, config.Log)

	authMiddleware := middleware.NewAuthMiddleware(config.Router, config.Log, config.Config, userUsecase)

	routeConfig := route.RouteConfig{
		App:                config.Router,
		Log:                config.Log,
		AuthMiddleware:     authMiddleware,
		InviteController:   inviteController,
		UserController:     userController,
		ProfileController:  profileController,
		ActivityController: activityController,
	}

	routeConfig.SetupRoute()

	sweepMinutes := config.Config.Int("EXPIRY_SWEEP_MINUTES")
	if sweepMinutes < 1 {
		sweepMinutes = 30
	}

	return usecase.NewHousekeepingUsecase(inviteRepository, userRepository, activityRepository, config.Jellyfin, config.Log, time.Duration(sweepMinutes)*time.Minute)
}
