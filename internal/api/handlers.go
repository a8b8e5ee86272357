package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/mail-responder/internal/bulk"
	"github.com/nhle/mail-responder/internal/mailbox"
	"github.com/nhle/mail-responder/internal/model"
	"github.com/nhle/mail-responder/internal/send"
	"github.com/nhle/mail-responder/internal/store"
	"github.com/nhle/mail-responder/internal/summary"
)

// respondError translates engine errors to HTTP statuses. Unknown
// errors are logged and reported as a plain 500.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, store.ErrDuplicateMailbox):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, send.ErrAlreadyResponded),
		errors.Is(err, send.ErrMailboxUnavailable),
		errors.Is(err, send.ErrEmptyReply),
		errors.Is(err, bulk.ErrNoMessages),
		errors.Is(err, mailbox.ErrInvalidAddress),
		errors.Is(err, mailbox.ErrEmptyPassword),
		errors.Is(err, mailbox.ErrVerificationFailed),
		errors.Is(err, summary.ErrNoContent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, summary.ErrNotConfigured):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func pagination(c *gin.Context) (limit, offset int) {
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// --- mailboxes ---

type registerMailboxRequest struct {
	Address  string `json:"address" binding:"required"`
	Nickname string `json:"nickname"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegisterMailbox(c *gin.Context) {
	var req registerMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	mb, err := s.mailboxes.Register(c.Request.Context(), currentUser(c), req.Address, req.Nickname, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toMailboxView(*mb))
}

func (s *Server) handleListMailboxes(c *gin.Context) {
	limit, offset := pagination(c)
	filter := store.MailboxFilter{
		Search:   c.Query("search"),
		SortBy:   c.DefaultQuery("sortBy", "created_at"),
		SortDesc: c.DefaultQuery("order", "desc") == "desc",
		Limit:    limit,
		Offset:   offset,
	}
	if raw := c.Query("active"); raw != "" {
		active := raw == "true" || raw == "1"
		filter.Active = &active
	}

	boxes, total, err := s.mailboxes.List(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"mailboxes": toMailboxViews(boxes),
		"total":     total,
	})
}

type updateMailboxRequest struct {
	Nickname *string `json:"nickname"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password"`
}

func (s *Server) handleUpdateMailbox(c *gin.Context) {
	var req updateMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	mb, err := s.mailboxes.Update(c.Request.Context(), currentUser(c), c.Param("id"), mailbox.UpdateParams{
		Nickname: req.Nickname,
		IsActive: req.IsActive,
		Password: req.Password,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMailboxView(*mb))
}

func (s *Server) handleDeleteMailbox(c *gin.Context) {
	if err := s.mailboxes.Delete(c.Request.Context(), currentUser(c), c.Param("id")); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// --- sync ---

func (s *Server) handleSync(c *gin.Context) {
	summaryResult, err := s.syncer.SyncAll(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryResult)
}

// --- messages ---

func (s *Server) handleListMessages(c *gin.Context) {
	limit, offset := pagination(c)
	filter := store.MessageFilter{
		MailboxID:       c.Query("mailboxId"),
		Search:          c.Query("search"),
		ExceptResponded: c.Query("exceptResponded") == "true",
		Limit:           limit,
		Offset:          offset,
	}
	if raw := c.Query("status"); raw != "" {
		status := model.MessageStatus(raw)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}
		filter.Status = &status
	}

	msgs, total, err := s.store.ListMessages(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages": toMessageViews(msgs),
		"total":    total,
	})
}

func (s *Server) handleMessageCounts(c *gin.Context) {
	counts, err := s.store.CountMessages(c.Request.Context(), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"unread":          counts.Unread,
		"draftSaved":      counts.DraftSaved,
		"readResponded":   counts.ReadResponded,
		"activeMailboxes": counts.ActiveMailboxes,
	})
}

func (s *Server) handleGetMessage(c *gin.Context) {
	msg, err := s.store.GetMessage(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageView(*msg))
}

type draftRequest struct {
	Body string `json:"body" binding:"required"`
}

func (s *Server) handleSaveDraft(c *gin.Context) {
	var req draftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	updated, err := s.store.SaveDraft(c.Request.Context(), c.Param("id"), currentUser(c), req.Body, time.Now())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !updated {
		c.JSON(http.StatusBadRequest, gin.H{"error": send.ErrAlreadyResponded.Error()})
		return
	}

	msg, err := s.store.GetMessage(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageView(*msg))
}

func (s *Server) handleSummarize(c *gin.Context) {
	text, err := s.summarizer.Summarize(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": text})
}

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

func (s *Server) handleSendReply(c *gin.Context) {
	var req sendRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}
	}

	msg, err := s.sender.SendReply(c.Request.Context(), currentUser(c), c.Param("id"), req.To, req.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toMessageView(*msg))
}

// --- bulk ---

type bulkRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required"`
	Body       string   `json:"body"`
}

func (s *Server) handleBulkSendNow(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	results, err := s.bulk.BulkSendNow(c.Request.Context(), currentUser(c), req.MessageIDs, req.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (s *Server) handleStartBulkJob(c *gin.Context) {
	var req bulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	jobID, err := s.bulk.StartJob(c.Request.Context(), currentUser(c), req.MessageIDs, req.Body)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobId": jobID})
}

func (s *Server) handleJobProgress(c *gin.Context) {
	progress, err := s.bulk.Progress(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}
