package route

import (
	"github.com/mkonradi/jellywarden/internal/delivery/http"
	"github.com/mkonradi/jellywarden/internal/delivery/http/middleware"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type RouteConfig struct {
	App                *fiber.App
	Log                *zap.Logger
	AuthMiddleware     *middleware.AuthMiddleware
	InviteController   *http.InviteController
	UserController     *http.UserController
	ProfileController  *http.ProfileController
	ActivityController *http.ActivityController
}

func (c *RouteConfig) SetupRoute() {
	api := c.App.Group("/api")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authGroup := api.Group("/auth")
	authGroup.Post("/login", middleware.SetupRedeemRateLimiter(c.Log), c.UserController.Login)
	authGroup.Post("/refresh", middleware.SetupRedeemRateLimiter(c.Log), c.UserController.Refresh)
	authGroup.Post("/logout", c.AuthMiddleware.ProtectedRoute(), c.UserController.Logout)

	// Public signup surface: anyone holding a code can look it up and
	// redeem it.
	invitePublicGroup := api.Group("/invites")
	invitePublicGroup.Get("/:code", c.InviteController.GetInviteInfo)
	invitePublicGroup.Post("/:code/redeem", middleware.SetupRedeemRateLimiter(c.Log), c.InviteController.Redeem)

	inviteGroup := api.Group("/invites", c.AuthMiddleware.ProtectedRoute())
	inviteGroup.Post("/", c.InviteController.Create)
	inviteGroup.Get("/", c.InviteController.GetInvites)
	inviteGroup.Delete("/:code", c.InviteController.Delete)

	userGroup := api.Group("/users", c.AuthMiddleware.ProtectedRoute())
	userGroup.Get("/me", c.UserController.GetUserInfo)
	userGroup.Get("/", c.UserController.GetUsers)
	userGroup.Post("/:id/disable", c.UserController.Disable)
	userGroup.Post("/:id/enable", c.UserController.Enable)
	userGroup.Put("/:id/expiry", c.UserController.UpdateExpiry)
	userGroup.Delete("/:id", c.UserController.Delete)
	userGroup.Get("/:id/stats", c.UserController.GetWatchStats)

	profileGroup := api.Group("/profiles", c.AuthMiddleware.ProtectedRoute())
	profileGroup.Post("/", c.ProfileController.Create)
	profileGroup.Post("/capture", c.ProfileController.Capture)
	profileGroup.Get("/", c.ProfileController.GetProfiles)
	profileGroup.Put("/:id/avatar", c.ProfileController.UpdateAvatar)
	profileGroup.Delete("/:id", c.ProfileController.Delete)

	activityGroup := api.Group("/activities", c.AuthMiddleware.ProtectedRoute())
	activityGroup.Get("/", c.ActivityController.GetActivities)
}
