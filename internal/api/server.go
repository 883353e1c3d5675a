package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"vaultArb/internal/bot"
)

const defaultTradeLimit = 20

// Server exposes the runner's status board over HTTP: health, counters,
// recent opportunities, and pause/resume control. It never touches pool or
// feed state directly.
type Server struct {
	status     *bot.Status
	logger     *zap.Logger
	httpServer *http.Server
}

// NewServer wires the routes onto a gin engine listening on addr.
func NewServer(addr string, status *bot.Status, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{status: status, logger: logger}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.getHealth)
	g := router.Group("/api")
	g.GET("/status", s.getStatus)
	g.GET("/opportunities", s.getOpportunities)
	g.POST("/pause", s.postPause)
	g.POST("/resume", s.postResume)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// Handler returns the underlying HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves in the background until Shutdown.
func (s *Server) Start() {
	s.logger.Info("status server listening", zap.String("addr", s.httpServer.Addr))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server failed", zap.Error(err))
		}
	}()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.status.View())
}

func (s *Server) getOpportunities(c *gin.Context) {
	limit := defaultTradeLimit
	if raw, ok := c.GetQuery("limit"); ok {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	c.JSON(http.StatusOK, gin.H{"trades": s.status.RecentTrades(limit)})
}

func (s *Server) postPause(c *gin.Context) {
	s.status.Pause()
	s.logger.Info("runner paused via api")
	c.JSON(http.StatusOK, gin.H{"paused": true})
}

func (s *Server) postResume(c *gin.Context) {
	s.status.Resume()
	s.logger.Info("runner resumed via api")
	c.JSON(http.StatusOK, gin.H{"paused": false})
}
