package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"kit-sync/internal/auth"
	"kit-sync/internal/handler"
	"kit-sync/internal/logger"
	"kit-sync/internal/middleware"
	"kit-sync/internal/socketio"
	"kit-sync/internal/store"
)

type Deps struct {
	Store       *store.Store
	TokenConfig auth.TokenConfig
	Logger      *logger.Logger
	// Zero values use the socket server defaults.
	PingInterval time.Duration
	PingTimeout  time.Duration
}

func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	historyLimiter := middleware.NewRateLimiter(60, time.Minute)
	historyHandler := &handler.HistoryHandler{Store: deps.Store}

	protected := r.Group("/v1")
	protected.Use(middleware.RateLimitMiddleware(historyLimiter))
	protected.Use(middleware.RequireAuth(deps.TokenConfig))
	protected.GET("/kits/:id/messages", historyHandler.KitMessages)
	protected.GET("/channels/:id/messages", historyHandler.ChannelMessages)

	sio := socketio.NewServer(socketio.ServerOptions{
		Authenticate: handler.SocketAuthenticator(deps.TokenConfig),
		Logger:       deps.Logger.Component("socketio"),
		PingInterval: deps.PingInterval,
		PingTimeout:  deps.PingTimeout,
	})
	realtimeHandler := &handler.RealtimeHandler{
		Store:  deps.Store,
		Server: sio,
		Log:    deps.Logger.Component("realtime"),
	}
	realtimeHandler.Register()
	r.GET("/socket.io/*any", gin.WrapH(sio))

	return r
}
