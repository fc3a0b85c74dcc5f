package router

import (
	"time"

	"github.com/Freeeeeet/tutorbook/internal/config"
	"github.com/Freeeeeet/tutorbook/internal/handler"
	"github.com/Freeeeeet/tutorbook/internal/middleware"
	"github.com/Freeeeeet/tutorbook/internal/model"
	"github.com/Freeeeeet/tutorbook/internal/response"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Class   *handler.ClassHandler
	Booking *handler.BookingHandler
	User    *handler.UserHandler
	System  *handler.SystemHandler
}

// SetupRouter configures the route groups and their middlewares.
func SetupRouter(cfg *config.Config, handlers *Handlers, limiter *middleware.RateLimiter, logger *zap.Logger) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()

	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour

	router.Use(
		middleware.Recovery(logger),
		cors.New(corsConfig),
		response.RequestIDMiddleware(),
		middleware.AccessLog(logger),
	)

	router.GET("/health", handlers.System.Health)

	v1 := router.Group("/api/v1")

	// Public reads.
	public := v1.Group("", limiter.Middleware())
	{
		public.GET("/classes", handlers.Class.ListAvailable)
		public.GET("/classes/:id", handlers.Class.Get)
		public.GET("/tutors/:id/conflicts", handlers.Booking.CheckConflict)
	}

	authed := v1.Group("", middleware.RequireAuth(cfg.JWTSecret), limiter.Middleware())

	classes := authed.Group("/classes", middleware.RequireRole(model.RoleTutor, model.RoleAdmin))
	{
		classes.POST("", handlers.Class.Create)
		classes.PATCH("/:id", handlers.Class.Update)
		classes.DELETE("/:id", handlers.Class.Delete)
		classes.POST("/:id/cancel", handlers.Class.Cancel)
		classes.POST("/:id/start", handlers.Class.Start)
		classes.POST("/:id/complete", handlers.Class.Complete)
	}

	bookings := authed.Group("/bookings")
	{
		bookings.POST("", handlers.Booking.Create)
		bookings.GET("/mine", handlers.Booking.ListMine)
		bookings.GET("/:id", handlers.Booking.Get)
		bookings.POST("/:id/confirm", handlers.Booking.Confirm)
		bookings.POST("/:id/cancel", handlers.Booking.Cancel)
		bookings.POST("/:id/complete", handlers.Booking.Complete)
		bookings.POST("/:id/no-show", handlers.Booking.NoShow)
		bookings.PATCH("/:id/payment", handlers.Booking.UpdatePayment)
	}

	users := authed.Group("/users")
	{
		users.POST("", middleware.RequireRole(model.RoleAdmin), handlers.User.Register)
		users.GET("/me", handlers.User.Me)
		users.PUT("/me/telegram", handlers.User.LinkTelegram)
	}

	return router
}
