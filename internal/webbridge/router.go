package webbridge

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/murmelhq/murmel/internal/config"
	"github.com/murmelhq/murmel/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ClientTokenMiddleware tags every browser with a stable token cookie.
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

// SetupRouter wires the HTTP surface: health, stats, Prometheus metrics
// and the chat websocket.
func SetupRouter(ctx context.Context, cfg *config.Config, reg *session.Registry, bridge *Bridge) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.WebSessionSecret))
	r.Use(sessions.Sessions("MurmelSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"users":     reg.Count() - 1,
			"max_users": cfg.MaxUsers,
			"channels":  len(reg.Channels()),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ws/chat", func(c *gin.Context) {
		name := c.Query("name")
		if name == "" {
			sess := sessions.Default(c)
			if v, ok := sess.Get("name").(string); ok {
				name = v
			}
		}
		if name == "" {
			name = "guest-" + c.GetString("client_token")[:8]
		} else {
			sess := sessions.Default(c)
			sess.Set("name", name)
			_ = sess.Save()
		}

		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn().Err(err).Str("module", "webbridge").Msg("websocket upgrade failed")
			return
		}
		bridge.Attach(ctx, ws, name)
	})

	log.Info().Str("module", "webbridge").Msg("router setup")
	return r
}
