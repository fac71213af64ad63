package api

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	"norelock.dev/rpcsite/internal/rpc"
	"norelock.dev/rpcsite/internal/utils"
)

// WebSocketHandler serves the WebSocket endpoint of one site.
type WebSocketHandler struct {
	server *rpc.WebSocketServer
	logger *utils.Logger
}

// NewWebSocketHandler creates the WebSocket endpoint of site. authenticate
// may be nil for sites without auth.
func NewWebSocketHandler(site *rpc.Site, authenticate rpc.Authenticator, allowedOrigins []string, logger *utils.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		server: rpc.NewWebSocketServer(site, authenticate, allowedOrigins, logger),
		logger: logger.Named("ws_handler").With("site", site.Name()),
	}
}

// ServeHTTP upgrades WebSocket handshakes and rejects plain requests.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		utils.RespondWithError(w, http.StatusBadRequest, "Expected a WebSocket upgrade")
		return
	}
	h.server.HandleWebSocket(w, r)
}

// ClientCount returns the number of connected clients.
func (h *WebSocketHandler) ClientCount() int {
	return h.server.ClientCount()
}

// Shutdown closes every connection.
func (h *WebSocketHandler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}
