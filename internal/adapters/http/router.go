package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/KwakOri/vshot-server/internal/adapters/signal"
	"github.com/KwakOri/vshot-server/internal/app"
	"github.com/KwakOri/vshot-server/internal/config"
	"github.com/KwakOri/vshot-server/internal/domain"
	"github.com/KwakOri/vshot-server/internal/layout"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware hands every browser a stable opaque token; clients
// may use it as their participant identity.
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

func SetupRouter(ctx context.Context, cfg *config.Config, store *app.Store, layouts *layout.Catalog, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VshotSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")

	// GET /api/rooms/:id
	api.GET("/rooms/:id", func(c *gin.Context) {
		info, err := store.Info(domain.RoomID(c.Param("id")))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	// GET /api/layouts lists the frame catalog.
	api.GET("/layouts", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"layouts": layouts.List()})
	})

	// GET /api/layouts/:id/resolve?w=720&h=1080 resolves pixel rectangles
	// for a canvas.
	api.GET("/layouts/:id/resolve", func(c *gin.Context) {
		frame, ok := layouts.Get(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "layout not found"})
			return
		}
		w, errW := strconv.Atoi(c.Query("w"))
		h, errH := strconv.Atoi(c.Query("h"))
		if errW != nil || errH != nil || w <= 0 || h <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "w and h must be positive integers"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"layoutId": frame.ID,
			"width":    w,
			"height":   h,
			"slots":    frame.Resolve(w, h),
		})
	})

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("token", c.GetString("client_token")).Msg("ws endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	return r
}
