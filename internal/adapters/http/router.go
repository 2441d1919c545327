// Package http assembles the gin router: both websocket endpoints, the
// REST surface around them, health and metrics.
package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/sharecast/relay/internal/config"
	sig "github.com/sharecast/relay/internal/signal"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable opaque id, used
// for request correlation in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, h *Handlers, rooms *sig.RoomController, docs *sig.DocController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RelaySessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/room/:room_id", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Str("room_id", c.Param("room_id")).Msg("room ws endpoint hit")
		rooms.Handle(ctx, c)
	})
	api.GET("/ws/doc/:doc_id", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Str("doc_id", c.Param("doc_id")).Msg("doc ws endpoint hit")
		docs.Handle(ctx, c)
	})

	api.POST("/rooms", h.CreateRoom)
	api.POST("/docs", h.CreateDoc)
	api.POST("/rooms/:room_id/guest", h.JoinAsGuest)
	api.POST("/rooms/heartbeat", h.Heartbeat)
	api.GET("/rooms/active-users", h.ActiveUsers)
	api.GET("/rooms/ice-config", h.ICEConfig)

	return r
}
