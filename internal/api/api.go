package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/celerix-dev/nestsync/internal/logging"
	"github.com/celerix-dev/nestsync/internal/store"
	"github.com/celerix-dev/nestsync/pkg/schema"
)

// DefaultWindowHours is the trailing window of the message feed when the caller names none.
const DefaultWindowHours = 24

// RecordStore is what the handlers need from the database.
type RecordStore interface {
	Insert(ctx context.Context, code string) (schema.UserRecord, error)
	Get(ctx context.Context, code string) (schema.UserRecord, error)
	Update(ctx context.Context, code string, p schema.Partial) (schema.UserRecord, error)
	AppendMessage(ctx context.Context, msg schema.CommunityMessage) error
	RecentMessages(ctx context.Context, since time.Time, limit int) ([]schema.CommunityMessage, error)
	Ping(ctx context.Context) error
}

type Handler struct {
	Store       RecordStore
	MaxPageSize int
	Now         func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) pageSize() int {
	if h.MaxPageSize > 0 {
		return h.MaxPageSize
	}
	return 50
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.POST("/users", h.CreateUser)
	r.GET("/users/:code", h.GetUser)
	r.PATCH("/users/:code", h.UpdateUser)
	r.GET("/messages", h.ListMessages)
	r.POST("/messages", h.PostMessage)
}

func (h *Handler) fail(c *gin.Context, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrDuplicate):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logging.Error("request failed", err, logging.Fields{"method": c.Request.Method, "path": c.FullPath()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.Store.Ping(c.Request.Context()); err != nil {
		logging.Error("health check failed", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) CreateUser(c *gin.Context) {
	var input struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := schema.ValidateCode(input.Code); err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.Store.Insert(c.Request.Context(), input.Code)
	if err != nil {
		h.fail(c, err)
		return
	}
	logging.Info("code issued", logging.Fields{"code": rec.Code})
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetUser(c *gin.Context) {
	rec, err := h.Store.Get(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var p schema.Partial
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := p.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.Store.Update(c.Request.Context(), c.Param("code"), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListMessages(c *gin.Context) {
	window := DefaultWindowHours
	if raw := c.Query("windowHours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "windowHours must be a positive integer"})
			return
		}
		window = n
	}

	limit := h.pageSize()
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, limit)
	}

	since := h.now().Add(-time.Duration(window) * time.Hour)
	msgs, err := h.Store.RecentMessages(c.Request.Context(), since, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) PostMessage(c *gin.Context) {
	var msg schema.CommunityMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := msg.Validate(); err != nil {
		h.fail(c, err)
		return
	}

	if err := h.Store.AppendMessage(c.Request.Context(), msg); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}
