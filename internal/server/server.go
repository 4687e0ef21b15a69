package server

import (
	apicontroller "ctchen222/tictactoe-solo/internal/api/controller"
	"ctchen222/tictactoe-solo/internal/api/service"
	"ctchen222/tictactoe-solo/internal/events"
	"ctchen222/tictactoe-solo/internal/player"
	"ctchen222/tictactoe-solo/web"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
)

const pageTitle = "Tic Tac Toe"

var tracer = otel.Tracer("server")

// Config holds the dependencies of the HTTP server.
type Config struct {
	Sessions     service.SessionService
	Tokens       *service.TokenIssuer
	Bus          events.Bus
	Logger       *slog.Logger
	PingInterval time.Duration
}

type Server struct {
	sessions     service.SessionService
	tokens       *service.TokenIssuer
	bus          events.Bus
	logger       *slog.Logger
	pingInterval time.Duration
	upgrader     websocket.Upgrader
	engine       *gin.Engine
}

func NewServer(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = player.DefaultPingInterval
	}

	s := &Server{
		sessions:     cfg.Sessions,
		tokens:       cfg.Tokens,
		bus:          cfg.Bus,
		logger:       cfg.Logger.With("component", "server"),
		pingInterval: cfg.PingInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.engine = s.routes()
	return s
}

// Engine returns the HTTP handler.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.logger))
	engine.SetHTMLTemplate(web.Templates())
	engine.StaticFS("/static", web.StaticFS())

	engine.GET("/", func(c *gin.Context) {
		c.HTML(http.StatusOK, "index.tmpl", gin.H{"Title": pageTitle})
	})
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/ws", s.handleWebSocket)

	sessions := apicontroller.NewSessionController(s.sessions)
	api := engine.Group("/api/sessions")
	api.POST("", sessions.Create)

	owned := api.Group("/:id", requireSessionToken(s.tokens))
	owned.GET("", sessions.Get)
	owned.POST("/start", sessions.Start)
	owned.POST("/cells/:index", sessions.Move)
	owned.POST("/try-again", sessions.TryAgain)
	owned.POST("/exit", sessions.Exit)
	owned.DELETE("", sessions.Delete)

	return engine
}
