package http

import (
	"errors"
	"net/http"
	"path/filepath"

	"github.com/dkeye/GameFinder/internal/adapters/steam"
	"github.com/dkeye/GameFinder/internal/adapters/ws"
	"github.com/dkeye/GameFinder/internal/config"
	"github.com/dkeye/GameFinder/internal/core"
	"github.com/dkeye/GameFinder/internal/domain"
	"github.com/dkeye/GameFinder/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags each browser with a long-lived cookie so its
// connections can be told apart in logs.
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

func SetupRouter(cfg *config.Config, reg *core.Registry, wsSrv *ws.Server, catalog *steam.Client) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	r.Static("/ui", cfg.StaticPath)
	r.Static("/css", filepath.Join(cfg.StaticPath, "css"))
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	newSession := func(c *gin.Context) {
		sess := reg.Create()
		c.JSON(http.StatusOK, gin.H{"id": sess.ID()})
	}
	api.GET("/new", newSession)
	api.POST("/new", newSession)

	api.GET("/session/:id", func(c *gin.Context) {
		sess, err := reg.Lookup(domain.SessionID(c.Param("id")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, protocol.NewSnapshotBody(sess.Snapshot()))
	})

	if catalog != nil {
		api.GET("/played-games/:steamid", catalogHandler(catalog, catalog.PlayedGames))
		api.GET("/user/:steamid", catalogHandler(catalog, catalog.User))
	}

	r.GET("/ws/:id", func(c *gin.Context) {
		id := domain.SessionID(c.Param("id"))
		sess, err := reg.Lookup(id)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}

		log.Info().Str("module", "adapters.http").Str("session", string(id)).Str("client", c.GetString("client_token")).Msg("ws endpoint hit")
		err = wsSrv.Serve(c.Writer, c.Request, sess)
		switch {
		case err == nil:
		case errors.Is(err, core.ErrSessionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		case errors.Is(err, ws.ErrUpgrade):
			log.Warn().Err(err).Str("module", "adapters.http").Str("session", string(id)).Msg("ws upgrade")
		default:
			log.Warn().Err(err).Str("module", "adapters.http").Str("session", string(id)).Msg("ws refused")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unavailable"})
		}
	})

	return r
}

func catalogHandler(catalog *steam.Client, res steam.Resource) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := catalog.Get(c.Request.Context(), res, c.Param("steamid"))
		switch {
		case err == nil:
			c.Data(http.StatusOK, "application/json", body)
		case errors.Is(err, steam.ErrInvalidID):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		default:
			log.Warn().Err(err).Str("module", "adapters.http").Str("resource", res.Name).Msg("catalog fetch")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream"})
		}
	}
}
