package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/regassist/backend/internal/ws"
)

// WebSocketHandler exposes the multiplexed streaming connection.
type WebSocketHandler struct {
	wsHandler *ws.Handler
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(wsHandler *ws.Handler) *WebSocketHandler {
	return &WebSocketHandler{wsHandler: wsHandler}
}

// Attach handles GET /api/ws - upgrades to the persistent connection.
// Project scoping happens through subscribe frames on the connection,
// not through the URL, so one socket serves every open project.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	userID := getUserID(c)
	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, userID); err != nil {
		// Upgrade failures already wrote the HTTP error
		return
	}
}

// RegisterRoutes registers the WebSocket route on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", h.Attach)
}
