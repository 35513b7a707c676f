package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"solar-fleet-backend/config"
	"solar-fleet-backend/internal/mw"
	"solar-fleet-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	db := s.DB()
	handler := NewHandler(s, webpushOptions)

	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 10
	}
	rateLimiter := mw.RateLimiter(rate.Limit(limit), 5)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 1 * time.Minute
	}
	cacheStore := cache.New(cacheTTL, 10*time.Minute)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// GET /api/plants
		api.GET("/plants", caching, GetPlants(db))

		// GET /api/plants/{plant_id}/devices
		api.GET("/plants/:plant_id/devices", caching, GetPlantDevices(db))

		// POST /api/devices
		api.POST("/devices", handler.RegisterDevice)

		// GET /api/users/{user_id}/notifications
		api.GET("/users/:user_id/notifications", GetUserNotifications(db))

		// PUT /api/users/{user_id}/notify
		api.PUT("/users/:user_id/notify", handler.PutNotifyPreference)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
