package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tobyv/vidrelay/internal/middleware"
	"github.com/tobyv/vidrelay/internal/relay"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the OriginFilter middleware.
		return true
	},
}

type RelayHandler struct {
	hub *relay.Hub
	log *slog.Logger
}

func NewRelayHandler(hub *relay.Hub, log *slog.Logger) *RelayHandler {
	return &RelayHandler{hub: hub, log: log}
}

// Connect upgrades the request and attaches the authenticated identity to
// the relay hub. The identity comes from the verified token, never from the
// client's say-so.
func (h *RelayHandler) Connect(c *gin.Context) {
	identity := middleware.Identity(c)
	if identity == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization required"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	h.hub.Attach(identity, conn)
}
