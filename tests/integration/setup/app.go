package setup

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/mkonradi/jellywarden/internal/delivery/http"
	"github.com/mkonradi/jellywarden/internal/delivery/http/middleware"
	"github.com/mkonradi/jellywarden/internal/delivery/http/route"
	"github.com/mkonradi/jellywarden/internal/jellyfin"
	"github.com/mkonradi/jellywarden/internal/repository"
	"github.com/mkonradi/jellywarden/internal/usecase"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

// TestApp bundles everything a test needs to drive the manager: the fiber
// app plus direct handles on the stores and the usecases for cases where a
// test has to manipulate state behind the API's back.
type TestApp struct {
	App     *fiber.App
	DB      *pgxpool.Pool
	Redis   *redis.Client
	MinIO   *minio.Client
	Config  *koanf.Koanf
	Invites *usecase.InviteUsecase
	Users   *usecase.UserUsecase
	Sweeper *usecase.HousekeepingUsecase
}

func SetupTestApp(t *testing.T, pgURL, redisURL, minioURL, mailhogSMTP, jellyfinURL string) *TestApp {
	t.Log("Setting up test application...")

	ctx := context.Background()

	// 1. Create test config with test infrastructure values
	testConfig := koanf.New(".")
	_ = testConfig.Set("JWT_SECRET_KEY", "test-secret-key-for-jwt-token-generation")
	_ = testConfig.Set("MINIO_BUCKET_NAME", "jellywarden-test")
	_ = testConfig.Set("MINIO_ACCESS_KEY", "minioadmin")
	_ = testConfig.Set("MINIO_SECRET_KEY", "minioadmin")
	_ = testConfig.Set("PUBLIC_URL", "http://localhost:3000")

	// Use MailHog for SMTP
	smtpParts := strings.Split(mailhogSMTP, ":")
	smtpHost := smtpParts[0]
	smtpPort, _ := strconv.Atoi(smtpParts[1])

	_ = testConfig.Set("SMTP_HOST", smtpHost)
	_ = testConfig.Set("SMTP_PORT", smtpPort)
	_ = testConfig.Set("SENDER_NAME", "Jellywarden Test <noreply@jellywarden.test>")
	_ = testConfig.Set("SENDER_EMAIL", "noreply@jellywarden.test")
	_ = testConfig.Set("SENDER_PASSWORD", "")

	// 2. Connect to PostgreSQL
	t.Log("Connecting to test PostgreSQL...")
	dbPool, err := pgxpool.New(ctx, pgURL)
	if err != nil {
		t.Fatalf("failed to connect to test db: %v", err)
	}

	// 3. Connect to Redis
	t.Log("Connecting to test Redis...")
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisURL,
		DB:   0,
	})

	if err := redisClient.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to connect to test redis: %v", err)
	}

	// 4. Connect to MinIO
	t.Log("Connecting to test MinIO...")
	minioClient, err := minio.New(minioURL, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Fatalf("failed to connect to minio: %v", err)
	}

	bucketName := "jellywarden-test"
	exists, err := minioClient.BucketExists(ctx, bucketName)
	if err != nil {
		t.Fatalf("failed to check minio bucket: %v", err)
	}

	if !exists {
		t.Logf("Creating MinIO bucket: %s", bucketName)
		err = minioClient.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			t.Fatalf("failed to create minio bucket: %v", err)
		}
	}

	// 5. Jellyfin client pointed at the mock server
	jellyfinClient := jellyfin.NewClient(jellyfinURL, "test-api-key", 10*time.Second)

	// 6. Setup logger
	zapLogger := zap.NewExample()

	// 7. Setup repositories
	inviteRepository := repository.NewInviteRepository(zapLogger, dbPool)
	userRepository := repository.NewUserRepository(zapLogger, dbPool, redisClient)
	profileRepository := repository.NewProfileRepository(zapLogger, dbPool, minioClient)
	activityRepository := repository.NewActivityRepository(zapLogger, dbPool)

	// 8. Setup usecases
	inviteUsecase := usecase.NewInviteUsecase(inviteRepository, userRepository, profileRepository, activityRepository, jellyfinClient, dbPool, zapLogger, testConfig)
	userUsecase := usecase.NewUserUsecase(userRepository, activityRepository, jellyfinClient, dbPool, zapLogger, testConfig)
	profileUsecase := usecase.NewProfileUsecase(profileRepository, jellyfinClient, zapLogger, testConfig)
	activityUsecase := usecase.NewActivityUsecase(activityRepository, zapLogger)
	housekeepingUsecase := usecase.NewHousekeepingUsecase(inviteRepository, userRepository, activityRepository, jellyfinClient, zapLogger, time.Minute)

	// 9. Setup controllers
	inviteController := http.NewInviteController(inviteUsecase, zapLogger, testConfig)
	userController := http.NewUserController(userUsecase, zapLogger, testConfig)
	profileController := http.NewProfileController(profileUsecase, zapLogger, testConfig)
	activityController := http.NewActivityController(activityUsecase, zapLogger)

	// 10. Setup middleware
	authMiddleware := middleware.NewAuthMiddleware(nil, zapLogger, testConfig, userUsecase)

	// 11. Setup Fiber app
	fiberApp := fiber.New(fiber.Config{
		AppName:               "Jellywarden Test",
		DisableStartupMessage: true,
		DisableKeepalive:      true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// 12. Setup routes
	routeConfig := route.RouteConfig{
		App:                fiberApp,
		Log:                zapLogger,
		AuthMiddleware:     authMiddleware,
		InviteController:   inviteController,
		UserController:     userController,
		ProfileController:  profileController,
		ActivityController: activityController,
	}

	routeConfig.SetupRoute()

	t.Log("Test application setup completed successfully")

	return &TestApp{
		App:     fiberApp,
		DB:      dbPool,
		Redis:   redisClient,
		MinIO:   minioClient,
		Config:  testConfig,
		Invites: inviteUsecase,
		Users:   userUsecase,
		Sweeper: housekeepingUsecase,
	}
}
