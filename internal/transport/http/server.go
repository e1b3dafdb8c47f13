package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/tweetchat-server/internal/config"
	"github.com/vovakirdan/tweetchat-server/internal/core"
)

// Deps are the core collaborators the HTTP layer serves.
type Deps struct {
	Dispatcher *core.Dispatcher
	Registry   *core.Registry
	Events     core.EventLog
	Presence   core.PresenceTracker
}

// NewServer builds an HTTP server with the websocket endpoint and the
// read-only REST API.
//
// /ws sits on the plain mux: gin's response writer refuses to hijack a
// connection once the upgrade status is written.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Dispatcher, cfg.WS, logger))
	mux.Handle("/", newRouter(deps, cfg, logger))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func newRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	api := NewAPIHandlers(deps, cfg.History.Limit, logger)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/online-users", api.OnlineUsers)
		apiGroup.GET("/rooms/history", api.History)
		apiGroup.GET("/stats", api.Stats)
	}
	return router
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
