package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sergiobarbero91-prog/airband/internal/adapters/signal"
	"github.com/sergiobarbero91-prog/airband/internal/app"
	"github.com/sergiobarbero91-prog/airband/internal/config"
	"github.com/sergiobarbero91-prog/airband/internal/domain"
)

// SetupRouter wires HTTP routes (REST + WS) with the coordinator.
// - REST is under /api/*
// - WebSocket upgrade lives at /api/ws/radio
func SetupRouter(ctx context.Context, cfg *config.Config, coord *app.Coordinator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	limiter := signal.NewAcquireRateLimiter(10, time.Second)
	ctrl := signal.NewRadioWSController(coord, limiter, cfg)

	api := r.Group("/api")
	api.Use(BearerAuth(cfg.Secret))

	// GET /api/channels — roster with occupancy and busy counters
	api.GET("/channels", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"channels": coord.ListChannels()})
	})

	// GET /api/channels/:id — single channel snapshot
	api.GET("/channels/:id", func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
			return
		}
		ch, ok := coord.Channels.Get(domain.ChannelID(id))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ChannelNotFound"})
			return
		}
		snap := ch.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"id":            ch.Channel().ID,
			"displayName":   ch.Channel().DisplayName,
			"members":       snap.Members,
			"busy":          snap.Busy,
			"transmitterId": snap.TransmitterID,
		})
	})

	api.GET("/ws/radio", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("identity", c.GetString("identity")).Msg("ws radio endpoint hit")
		ctrl.HandleRadio(ctx, c)
	})

	return r
}
