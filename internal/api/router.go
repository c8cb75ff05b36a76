package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"parking_backend/internal/api/handler"
	"parking_backend/internal/api/middleware"
	"parking_backend/internal/config"
	"parking_backend/internal/domain"
	"parking_backend/internal/service"
)

type Services struct {
	Auth    *service.AuthService
	Parking *service.ParkingService
	Payment *service.PaymentService
	User    *service.UserService
	// LPR is nil when no vision backend is configured.
	LPR *service.LPRService
}

// SetupRouter builds the HTTP API. rdb may be nil, which disables rate limiting.
func SetupRouter(cfg *config.Config, svc Services, authMw *middleware.AuthMiddleware,
	wsManager *handler.WebSocketManager, rdb redis.Scripter) *gin.Engine {
	RegisterValidators()

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	cc := cors.DefaultConfig()
	cc.AllowHeaders = append(cc.AllowHeaders, "Authorization", "X-Requested-With")
	cc.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	cc.MaxAge = 12 * time.Hour
	if len(cfg.CORSOrigins) == 0 || cfg.CORSOrigins[0] == "*" {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = cfg.CORSOrigins
		cc.AllowCredentials = true
	}
	r.Use(cors.New(cc))

	wsHandler := handler.NewWebSocketHandler(wsManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health)

	authHandler := handler.NewAuthHandler(svc.Auth)
	authRoutes := v1.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	protected := v1.Group("")
	protected.Use(authMw.Authenticate())
	admin := authMw.AuthorizeRole(domain.RoleAdmin)

	parkingH := handler.NewParkingHandler(svc.Parking)
	parkingRoutes := protected.Group("/parking")
	{
		parkingRoutes.GET("", parkingH.ListSpots)
		parkingRoutes.GET("/available", parkingH.ListAvailable)
		parkingRoutes.GET("/availability", parkingH.Availability)
		parkingRoutes.GET("/history", parkingH.History)
		parkingRoutes.GET("/history/:id", parkingH.GetHistory)
		parkingRoutes.GET("/stats", admin, parkingH.Stats)
		parkingRoutes.GET("/:id", parkingH.GetSpot)

		parkingRoutes.POST("/reserve", parkingH.Reserve)
		parkingRoutes.POST("/entry", parkingH.RegisterEntry)
		parkingRoutes.POST("/exit", parkingH.RegisterExit)

		parkingRoutes.POST("", admin, parkingH.CreateSpot)
		parkingRoutes.POST("/test-spots", admin, parkingH.CreateTestSpots)
		parkingRoutes.DELETE("/:id", admin, parkingH.RemoveSpot)
	}

	paymentH := handler.NewPaymentHandler(svc.Payment)
	paymentRoutes := protected.Group("/payments")
	{
		paymentRoutes.GET("/stats", admin, paymentH.Stats)
		paymentRoutes.GET("/user/:userId", paymentH.ListByUser)
		paymentRoutes.GET("/:id", paymentH.Get)
		paymentRoutes.GET("/:id/receipt", paymentH.Receipt)
		paymentRoutes.POST("/:id/refund", admin, paymentH.Refund)
	}

	userH := handler.NewUserHandler(svc.User)
	userRoutes := protected.Group("/users")
	{
		userRoutes.GET("", admin, userH.List)
		userRoutes.GET("/:id", userH.Get)
		userRoutes.PUT("/:id", userH.Update)
		userRoutes.DELETE("/:id", admin, userH.Delete)
		userRoutes.PUT("/:id/preferences", userH.UpdatePreferences)
		userRoutes.GET("/:id/vehicles", userH.Vehicles)
		userRoutes.POST("/:id/vehicles", userH.AddVehicle)
		userRoutes.GET("/:id/parking-history", userH.History)
		userRoutes.GET("/:id/profile", userH.Profile)
	}

	if svc.LPR != nil {
		lprH := handler.NewLPRHandler(svc.LPR, cfg.MaxImageBytes)
		lprRoutes := protected.Group("/plate-recognition")
		lprRoutes.Use(middleware.RateLimit(cfg.RateLimit, rdb))
		{
			lprRoutes.POST("/recognize", lprH.Recognize)
		}
	}
	return r
}
