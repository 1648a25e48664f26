package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tobyv/vidrelay/internal/chat"
	"github.com/tobyv/vidrelay/internal/errs"
	"github.com/tobyv/vidrelay/internal/middleware"
	"github.com/tobyv/vidrelay/internal/store"
)

type ChatHandler struct {
	chat *chat.Service
	log  *slog.Logger
}

func NewChatHandler(svc *chat.Service, log *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: svc, log: log}
}

type sendMessageRequest struct {
	Text string `json:"text" binding:"required"`
}

// Send posts a message to the user in the path. The created record comes
// back; real-time delivery to the recipient is best effort.
func (h *ChatHandler) Send(c *gin.Context) {
	from := middleware.Identity(c)
	to := c.Param("id")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrEmptyText.Error()})
		return
	}

	m, err := h.chat.Post(from, to, req.Text)
	if errors.Is(err, errs.ErrEmptyText) {
		c.JSON(http.StatusBadRequest, gin.H{"error": errs.ErrEmptyText.Error()})
		return
	}
	if err != nil {
		h.log.Error("message post failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, m)
}

// History returns the conversation with the user in the path, in creation
// order.
func (h *ChatHandler) History(c *gin.Context) {
	me := middleware.Identity(c)
	other := c.Param("id")

	messages, err := h.chat.History(me, other)
	if err != nil {
		h.log.Error("history fetch failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if messages == nil {
		messages = []store.Message{}
	}
	c.JSON(http.StatusOK, messages)
}

// Delete removes a message. Only its creator may do so.
func (h *ChatHandler) Delete(c *gin.Context) {
	requester := middleware.Identity(c)
	messageID := c.Param("id")

	err := h.chat.Remove(messageID, requester)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
	case errors.Is(err, errs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "You can only delete your own messages"})
	case err != nil:
		h.log.Error("message delete failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
	}
}
