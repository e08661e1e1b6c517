package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/raahi/dispatch-core/internal/apperrors"
	"github.com/raahi/dispatch-core/internal/transport/socket"
	"github.com/raahi/dispatch-core/pkg/logger"
)

var socketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SocketHandler upgrades GET /socket to a bidirectional WebSocket
// connection and wires it into the socket transport (spec §4.7).
type SocketHandler struct {
	hub      *socket.Hub
	handlers *socket.Handlers
}

// NewSocketHandler wires the socket transport's HTTP upgrade endpoint.
func NewSocketHandler(hub *socket.Hub, handlers *socket.Handlers) *SocketHandler {
	return &SocketHandler{hub: hub, handlers: handlers}
}

// Connect handles GET /socket: upgrades, registers the client, and runs its
// read/write pumps until disconnect.
func (h *SocketHandler) Connect(c *gin.Context) {
	conn, err := socketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		respondError(c, apperrors.Internal("websocket upgrade failed", err))
		return
	}

	client := socket.NewClient(c.ClientIP()+":"+c.Request.RemoteAddr, conn)
	h.hub.Register(client)

	go client.WritePump()

	client.ReadPump(func(cl *socket.Client, msg socket.InboundMessage) {
		h.handlers.Dispatch(cl, msg)
	})

	h.handlers.HandleDisconnect(client)
	logger.Debug("socket connection closed")
}
