package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"loomtrack-backend/internal/mw"
	"loomtrack-backend/internal/sync"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(sr *sync.Router, db *gorm.DB, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(sr, db, webpushOptions)

	// Rate limit: 10 requests per second with a burst of 5
	rateLimiter := mw.RateLimiter(rate.Limit(10), 5)

	// The VAPID key never changes at runtime; everything else reflects
	// live sync state and must not be served stale.
	cacheStore := cache.New(5*time.Minute, 10*time.Minute)
	caching := mw.Cache(cacheStore, 5*time.Minute)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/records", handler.GetRecords)
		api.POST("/records", handler.PostRecord)
		api.PUT("/records/:id", handler.PutRecord)
		api.DELETE("/records/:id", handler.DeleteRecord)

		api.GET("/settings", handler.GetSettings)
		api.PUT("/settings", handler.PutSettings)

		api.GET("/status", handler.GetStatus)
		api.POST("/data/wipe", handler.WipeData)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", caching, handler.GetVAPIDPublicKey)
	}

	return r
}
