// Package api exposes the service over HTTP. Authentication is
// delegated to a fronting proxy; the user identity arrives in a
// trusted header.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/bulk"
	"github.com/nhle/mail-responder/internal/mailbox"
	"github.com/nhle/mail-responder/internal/send"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/internal/summary"
	syncengine "github.com/nhle/mail-responder/internal/sync"
)

// userHeader carries the authenticated user id set by the fronting
// proxy.
const userHeader = "X-User-ID"

const userKey = "userID"

// Server wires the engines into HTTP handlers.
type Server struct {
	store      store.Store
	mailboxes  *mailbox.Service
	syncer     *syncengine.Engine
	sender     *send.Engine
	bulk       *bulk.Engine
	summarizer *summary.Summarizer
	logger     *zap.Logger
}

// New creates the HTTP server facade.
func New(
	s store.Store,
	mailboxes *mailbox.Service,
	syncer *syncengine.Engine,
	sender *send.Engine,
	bulkEngine *bulk.Engine,
	summarizer *summary.Summarizer,
	logger *zap.Logger,
) *Server {
	return &Server{
		store:      s,
		mailboxes:  mailboxes,
		syncer:     syncer,
		sender:     sender,
		bulk:       bulkEngine,
		summarizer: summarizer,
		logger:     logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", s.requireUser())
	{
		api.POST("/mailboxes", s.handleRegisterMailbox)
		api.GET("/mailboxes", s.handleListMailboxes)
		api.PATCH("/mailboxes/:id", s.handleUpdateMailbox)
		api.DELETE("/mailboxes/:id", s.handleDeleteMailbox)

		api.POST("/sync", s.handleSync)

		api.GET("/messages", s.handleListMessages)
		api.GET("/messages/counts", s.handleMessageCounts)
		api.GET("/messages/:id", s.handleGetMessage)
		api.POST("/messages/:id/draft", s.handleSaveDraft)
		api.POST("/messages/:id/summary", s.handleSummarize)
		api.POST("/messages/:id/send", s.handleSendReply)
		api.POST("/messages/bulk-send", s.handleBulkSendNow)

		api.POST("/jobs/bulk-send", s.handleStartBulkJob)
		api.GET("/jobs/:id", s.handleJobProgress)
	}

	return r
}

// requireUser rejects requests without the trusted identity header.
func (s *Server) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(userHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing user identity"})
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()))
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}
