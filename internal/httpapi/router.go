package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/dshills/tutormatch/internal/logger"
	"github.com/dshills/tutormatch/internal/matching"
	"github.com/dshills/tutormatch/internal/notify"
	"github.com/dshills/tutormatch/internal/refresher"
)

// RouterConfig carries the dependencies the HTTP surface needs
type RouterConfig struct {
	Service   *matching.Service
	Refresher *refresher.Refresher
	Notifier  notify.Notifier
	Log       *logger.Logger
}

// NewRouter builds the gin engine with every route registered
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}
	h := NewHandler(cfg.Service, cfg.Refresher, cfg.Notifier, log)

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), AccessLog(log.With("component", "http")))

	r.GET("/healthz", h.Health)

	api := r.Group("/v1")
	{
		api.POST("/users", h.CreateUser)
		api.POST("/classes", h.CreateClass)
		api.PUT("/users/:id/availability", h.SetAvailability)

		api.PUT("/students/:id/profile", h.SaveStudentProfile)
		api.PUT("/tutors/:id/profile", h.SaveTutorProfile)

		matches := api.Group("/students/:id/matches")
		matches.GET("", h.GetMatches)
		matches.POST("/refresh", h.RefreshMatches)
		matches.POST("/select", h.SelectMatch)

		api.POST("/embeddings/backfill", h.Backfill)
		api.GET("/status", h.Status)
	}

	return r
}
