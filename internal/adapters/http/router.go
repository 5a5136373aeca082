package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/relay/internal/adapters/signal"
	"github.com/dkeye/relay/internal/app"
	"github.com/dkeye/relay/internal/app/orch"
	"github.com/dkeye/relay/internal/config"
	"github.com/dkeye/relay/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const (
	sessionUserID   = "user_id"
	sessionUsername = "username"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

// ClientTokenMiddleware tags each browser with a long-lived token used to
// correlate its requests in logs.
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

// IdentityMiddleware resolves the already-authenticated user, either from a
// header set by a trusted gateway or from the session cookie.
// Requests without an identity are rejected.
func IdentityMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var id, name string
		if cfg.TrustedHeader != "" {
			id = c.GetHeader(cfg.TrustedHeader)
			name = c.GetHeader(cfg.TrustedHeader + "-Name")
		}
		if id == "" {
			s := sessions.Default(c)
			id, _ = s.Get(sessionUserID).(string)
			name, _ = s.Get(sessionUsername).(string)
		}
		user, err := domain.NewUser(id, name)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(signal.UserKey, *user)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.User {
	v, _ := c.Get(signal.UserKey)
	u, _ := v.(domain.User)
	return u
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
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

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")

	api := r.Group("/api")

	// Local login for development; production identities come from the gateway.
	if cfg.Mode == "debug" {
		api.POST("/session", func(c *gin.Context) {
			var req struct {
				UserID   string `json:"user_id"`
				Username string `json:"username"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
				return
			}
			user, err := domain.NewUser(req.UserID, req.Username)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			s := sessions.Default(c)
			s.Set(sessionUserID, string(user.ID))
			s.Set(sessionUsername, user.Username)
			if err := s.Save(); err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
				c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
				return
			}
			c.JSON(http.StatusOK, user)
		})
	}

	authed := api.Group("", IdentityMiddleware(cfg))

	authed.GET("/presence", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Presence.Snapshot())
	})
	authed.GET("/presence/:id", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Presence.Get(domain.UserID(c.Param("id"))))
	})

	authed.GET("/online", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Registry.OnlineUsers())
	})

	authed.GET("/calls", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Calls.State(currentUser(c).ID))
	})

	authed.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Rooms.List())
	})
	authed.GET("/rooms/:id/cameras", func(c *gin.Context) {
		room, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_room"})
			return
		}
		c.JSON(http.StatusOK, o.Rooms.Cameras(room))
	})
	authed.GET("/rooms/:id/members", func(c *gin.Context) {
		room, err := domain.ParseRoomID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_room"})
			return
		}
		c.JSON(http.StatusOK, o.Rooms.Members(room))
	})

	authed.GET("/transfers/:id", func(c *gin.Context) {
		req, err := o.Transfers.Get(c.Request.Context(), domain.TransferID(c.Param("id")), currentUser(c).ID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, req)
		case errors.Is(err, app.ErrUnauthorized):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		default:
			log.Error().Err(err).Str("module", "adapters.http").Msg("get transfer")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
		}
	})

	ctrl := signal.NewSignalWSController(o, cfg)
	authed.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("ct", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	return r
}
