// Package web hosts the registration form plus the health and diagnostics
// endpoints on a single HTTP surface.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"slack_pay_bridge_bot/internal/config"
	"slack_pay_bridge_bot/internal/domain"
	"slack_pay_bridge_bot/internal/logging"
	"slack_pay_bridge_bot/internal/synapse"
)

const (
	mongoPingTimeout  = 2 * time.Second
	readHeaderTimeout = 2 * time.Second
)

type registrationStore interface {
	GetByChatUserID(ctx context.Context, chatUserID string) (domain.RegisteredUser, error)
	Create(ctx context.Context, user domain.RegisteredUser) (domain.RegisteredUser, error)
}

type registrationProvider interface {
	CreateUser(ctx context.Context, in synapse.CreateUserInput) (*synapse.User, error)
	AddBaseDocument(ctx context.Context, userID string, in synapse.BaseDocumentInput) (*synapse.User, error)
	AddVirtualDocument(ctx context.Context, userID, documentID, ssn string) (*synapse.User, error)
	AddPhysicalDocument(ctx context.Context, userID, documentID, fileURL string) (*synapse.User, error)
	CreateACHNode(ctx context.Context, userID string, in synapse.ACHNodeInput) (*synapse.Node, error)
}

// MongoChecker is the subset of store behavior health checks need.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

type statsSource interface {
	CountUsers(ctx context.Context) (int64, error)
	CountRecurringTransactions(ctx context.Context) (int64, error)
}

/// Server owns the HTTP surface: the registration form, /healthz and
// /diagnostics.
type Server struct {
	server   *http.Server
	users    registrationStore
	provider registrationProvider
	mongo    MongoChecker
	stats    statsSource
}

// Deps names the server's collaborators.
type Deps struct {
	Users    registrationStore
	Provider registrationProvider
	Mongo    MongoChecker
	Stats    statsSource
}

func NewServer(cfg config.Config, deps Deps) *Server {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		users:    deps.Users,
		provider: deps.Provider,
		mongo:    deps.Mongo,
		stats:    deps.Stats,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/register/:slack_id", s.handleRegisterForm)
	router.POST("/register/:slack_id", s.handleRegisterSubmit)
	router.GET("/healthz", s.handleHealth)
	router.GET("/diagnostics", s.handleDiagnostics)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	logging.Info("starting web server", logging.Fields{
		"event": "web_listen",
		"addr":  s.server.Addr,
	})

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logging.Info("web server stopped", logging.Fields{"event": "web_stopped"})
			return nil
		}
		return fmt.Errorf("web server listen: %w", err)
	}

	logging.Info("web server stopped", logging.Fields{"event": "web_stopped"})
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	mongoStatus := "ok"

	if s.mongo == nil {
		mongoStatus = "error"
	} else {
		pingCtx, cancel := context.WithTimeout(c.Request.Context(), mongoPingTimeout)
		err := s.mongo.Ping(pingCtx)
		cancel()
		if err != nil {
			mongoStatus = "error"
			logging.Warn("mongo ping failed during health check", logging.Fields{
				"event": "health_mongo_error",
				"error": err.Error(),
			})
		}
	}

	resp := gin.H{"status": status}
	if mongoStatus != "ok" {
		resp["status"] = "degraded"
		resp["mongo"] = "error"
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDiagnostics(c *gin.Context) {
	ctx := c.Request.Context()
	users, err := s.stats.CountUsers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	recurring, err := s.stats.CountRecurringTransactions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":                  users,
		"recurring_transactions": recurring,
	})
}
