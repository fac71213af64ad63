package rpc

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"norelock.dev/rpcsite/internal/utils"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024
)

// Authenticator resolves the caller of an HTTP request. It returns a nil
// principal for anonymous callers and an error to reject the request.
type Authenticator func(r *http.Request) (*Principal, error)

// WebSocketServer serves a site over WebSocket. Every text frame is one JSON-RPC
// payload; its response, if any, is written back as one text frame.
type WebSocketServer struct {
	site         *Site
	authenticate Authenticator
	upgrader     websocket.Upgrader
	logger       *utils.Logger
	clients      map[*Client]bool
	register     chan *Client
	unregister   chan *Client
	done         chan struct{}
	closeOnce    sync.Once
	closing      bool
	pumps        sync.WaitGroup
	mutex        sync.Mutex
}

// NewWebSocketServer creates a WebSocket server for site. authenticate may be nil.
func NewWebSocketServer(site *Site, authenticate Authenticator, allowedOrigins []string, logger *utils.Logger) *WebSocketServer {
	server := &WebSocketServer{
		site:         site,
		authenticate: authenticate,
		logger:       logger.Named("ws_server").With("site", site.Name()),
		clients:      make(map[*Client]bool),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
	}
	server.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	go server.run()

	return server
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// run processes client registration and unregistration.
func (s *WebSocketServer) run() {
	for {
		select {
		case client := <-s.register:
			s.mutex.Lock()
			s.clients[client] = true
			s.mutex.Unlock()
			s.logger.Debug("Client registered", "id", client.ID)

		case client := <-s.unregister:
			s.mutex.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
				s.logger.Debug("Client unregistered", "id", client.ID)
			}
			s.mutex.Unlock()

		case <-s.done:
			return
		}
	}
}

// HandleWebSocket authenticates the request, upgrades it and starts the
// client pumps.
func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	var principal *Principal
	if s.authenticate != nil {
		p, err := s.authenticate(r)
		if err != nil {
			s.logger.Warn("WebSocket authentication failed", "error", err)
			WriteError(w, NewError(ErrAuthenticationRequired, "", map[string]any{"message": err.Error()}))
			return
		}
		principal = p
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", err)
		return
	}

	clientID, err := utils.GenerateID("client")
	if err != nil {
		s.logger.Error("Failed to generate client ID", err)
		conn.Close()
		return
	}

	ctx := WithTransport(context.Background(), "ws")
	if principal != nil {
		ctx = WithPrincipal(ctx, principal)
	}
	ctx, cancel := context.WithCancel(ctx)

	client := &Client{
		ID:     clientID,
		server: s,
		conn:   conn,
		send:   make(chan []byte, 256),
		ctx:    ctx,
		cancel: cancel,
		logger: s.logger.Named("client").With("clientID", clientID),
	}

	s.mutex.Lock()
	if s.closing {
		s.mutex.Unlock()
		cancel()
		conn.Close()
		return
	}
	s.pumps.Add(2)
	s.mutex.Unlock()

	select {
	case s.register <- client:
	case <-s.done:
		s.pumps.Add(-2)
		cancel()
		conn.Close()
		return
	}

	go func() {
		defer s.pumps.Done()
		client.readPump()
	}()
	go func() {
		defer s.pumps.Done()
		client.writePump()
	}()

	s.logger.Info("WebSocket connection established", "clientID", client.ID)
}

// ClientCount returns the number of connected clients.
func (s *WebSocketServer) ClientCount() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.clients)
}

// forget drops a client once the server loop has stopped.
func (s *WebSocketServer) forget(client *Client) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.clients, client)
}

// Shutdown sends a close frame to every client, stops the server loop and
// waits for the client pumps to exit. Connections still open when ctx ends
// are closed without waiting.
func (s *WebSocketServer) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down WebSocket server")

	s.mutex.Lock()
	s.closing = true
	clients := make([]*Client, 0, len(s.clients))
	for client := range s.clients {
		clients = append(clients, client)
		client.cancel()
	}
	s.mutex.Unlock()

	s.closeOnce.Do(func() { close(s.done) })

	stopped := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		for _, client := range clients {
			client.conn.Close()
		}
		return ctx.Err()
	}
}
