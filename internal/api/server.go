package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/avelasko/taskpilot/internal/agent"
	"github.com/avelasko/taskpilot/internal/auth"
	"github.com/avelasko/taskpilot/internal/storage"
	"github.com/avelasko/taskpilot/internal/task"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the HTTP surface over the task service and the agent.
type Server struct {
	router    *gin.Engine
	validator *auth.Validator
	tasks     *task.Service
	agent     *agent.Agent
	store     storage.Storage
	logger    *zap.Logger
}

func NewServer(validator *auth.Validator, tasks *task.Service, agt *agent.Agent, store storage.Storage, logger *zap.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:    router,
		validator: validator,
		tasks:     tasks,
		agent:     agt,
		store:     store,
		logger:    logger,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api/v1")
	api.Use(s.authMiddleware())
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.POST("/tasks/:id/toggle", s.handleToggleTask)
		api.PUT("/tasks/:id/tags/:tagID", s.handleAttachTag)
		api.DELETE("/tasks/:id/tags/:tagID", s.handleDetachTag)

		api.GET("/tags", s.handleListTags)
		api.POST("/tags", s.handleCreateTag)
		api.DELETE("/tags/:id", s.handleDeleteTag)

		api.POST("/agent/messages", s.handleAgentMessage)
	}

	return s
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

const userIDKey = "userID"

// authMiddleware resolves the bearer token through the session validator.
// Absent, unknown and expired tokens all get the same 401.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		userID, err := s.validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// writeError maps the storage taxonomy onto HTTP statuses without leaking
// internals.
func (s *Server) writeError(c *gin.Context, err error) {
	var (
		validation  *storage.ValidationError
		notFound    *storage.NotFoundError
		authz       *storage.AuthorizationError
		conflict    *storage.ConflictError
		unavailable *storage.UnavailableError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	case errors.As(err, &authz):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.As(err, &unavailable):
		s.logger.Error("storage unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service unavailable"})
	default:
		s.logger.Error("unhandled error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
