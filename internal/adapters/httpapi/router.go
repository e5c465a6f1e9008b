// Package httpapi is the produced surface for the rendering
// collaborator: a gin router serving the static UI plus a websocket
// endpoint through which one client drives one participant.
package httpapi

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peersync/watchparty/internal/config"
	"github.com/peersync/watchparty/internal/core"
)

// Deps carries the collaborator capabilities each participant session
// is wired with.
type Deps struct {
	Cfg        *config.Config
	Store      core.Store
	Transports core.TransportFactory
	Capture    core.Capture
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, deps Deps) *gin.Engine {
	if deps.Cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if deps.Cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	r.Static("/static", deps.Cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(deps.Cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "httpapi").Str("static", deps.Cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl := NewController(deps)
		log.Info().Str("module", "httpapi").Str("token", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.Handle(ctx, c)
	})

	return r
}
