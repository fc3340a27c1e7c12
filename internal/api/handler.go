package api

import (
	"github.com/SherClockHolmes/webpush-go"
	"gorm.io/gorm"

	"loomtrack-backend/internal/sync"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	router  *sync.Router
	db      *gorm.DB
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(router *sync.Router, db *gorm.DB, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		router:  router,
		db:      db,
		webpush: webpushOptions,
	}
}
