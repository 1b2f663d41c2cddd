// Package server is the chat backend: REST endpoints under /api, the /ws
// realtime channel and the AI participant.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/assistant"
	"github.com/saravenpi/whopchat/internal/models"
	"github.com/saravenpi/whopchat/internal/repository"
)

type Config struct {
	JWTSecret      string
	TokenTTL       time.Duration
	FrontendOrigin string
	SecureCookies  bool
	// ReplyTimeout bounds a single AI reply.
	ReplyTimeout time.Duration
}

type Server struct {
	cfg       Config
	router    *gin.Engine
	repo      *repository.DB
	hub       *Hub
	tokens    tokens
	responder assistant.Responder
	aiUser    models.User
	logger    *zap.Logger
}

// New seeds the AI user and builds the router.
func New(ctx context.Context, cfg Config, repo *repository.DB, responder assistant.Responder, logger *zap.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 7 * 24 * time.Hour
	}
	if cfg.ReplyTimeout <= 0 {
		cfg.ReplyTimeout = 2 * time.Minute
	}
	if responder == nil {
		responder = assistant.Echo{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	aiUser, err := repo.EnsureAIUser(ctx)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:       cfg,
		repo:      repo,
		tokens:    tokens{secret: []byte(cfg.JWTSecret), ttl: cfg.TokenTTL, now: time.Now},
		responder: responder,
		aiUser:    *aiUser,
		logger:    logger,
	}
	s.hub = NewHub(cfg.FrontendOrigin, s.canJoin, logger)
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	router := gin.New()
	router.Use(requestLogger(s.logger), gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.Error("panic in handler", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		abortWithError(c, http.StatusInternalServerError, "Internal server error")
	}))
	if s.cfg.FrontendOrigin != "" {
		router.Use(cors(s.cfg.FrontendOrigin))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Server is healthy", "status": "OK"})
	})

	api := router.Group("/api")
	api.POST("/auth/register", s.register)
	api.POST("/auth/login", s.login)
	api.POST("/auth/logout", s.logout)

	authed := api.Group("")
	authed.Use(s.requireAuth())
	{
		authed.GET("/auth/status", s.authStatus)
		authed.GET("/users", s.listUsers)
		authed.GET("/chats", s.listChats)
		authed.GET("/chats/:id", s.getChat)
		authed.POST("/chats", s.createChat)
		authed.POST("/messages", s.sendMessage)
	}

	router.GET("/ws", s.requireAuth(), func(c *gin.Context) {
		s.hub.Serve(c.Writer, c.Request, currentUser(c).ID)
	})

	router.NoRoute(func(c *gin.Context) {
		respondError(c, http.StatusNotFound, "Route not found")
	})

	s.router = router
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) canJoin(ctx context.Context, chatID, userID string) bool {
	ok, err := s.repo.IsParticipant(ctx, chatID, userID)
	if err != nil {
		s.logger.Error("failed to check room membership", zap.Error(err))
		return false
	}
	return ok
}

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
