package server

import (
	"net/http"
	"sync"

	// gorilla/websocket is the most popular WebSocket library for Go.
	// It provides a complete implementation of the WebSocket protocol
	// with support for reading/writing messages, ping/pong, and close handling.
	"github.com/gorilla/websocket"

	// Rate limiting for command input to prevent message flooding.
	"golang.org/x/time/rate"

	"github.com/tabterm/host/internal/dispatch"
	"github.com/tabterm/host/internal/session"
	"github.com/tabterm/host/internal/storage"
)

// channelBufferSize is the buffer size for the broadcast channel and
// per-client send channels. This value balances memory usage against the
// ability to absorb bursts of messages without blocking senders. If the
// buffer fills up, messages may be dropped for slow clients.
const channelBufferSize = 256

// commandRateLimit and commandRateBurst bound how fast one connection
// may submit commands. A human cannot exceed this; a runaway script can,
// and gets server.rate_limited errors instead of queue growth.
const (
	commandRateLimit = 20
	commandRateBurst = 40
)

// Server manages WebSocket connections, routes per-tab messages to the
// connection that owns each tab, and broadcasts metrics to all clients.
type Server struct {
	// addr is the address to listen on (e.g., "127.0.0.1:7180")
	addr string

	// upgrader converts HTTP connections to WebSocket connections.
	// We accept connections from any origin: the host binds to
	// localhost by default and carries no credentials.
	upgrader websocket.Upgrader

	// clients tracks all connected WebSocket clients.
	clients map[*Client]bool

	// tabs maps each claimed tab ID to the client that owns it.
	// A tab has at most one owner; a reconnect re-claims it.
	tabs map[string]*Client

	// mu protects clients, tabs, and the stopped flag.
	mu sync.RWMutex

	// stopped prevents sending to a closed broadcast channel.
	stopped bool

	// broadcast receives messages to send to all clients.
	broadcast chan Message

	// httpServer is the underlying HTTP server for graceful shutdown.
	httpServer *http.Server

	// dispatcher executes commands. Set via SetDispatcher; command
	// messages are rejected while nil.
	dispatcher *dispatch.Dispatcher

	// sessions is consulted to schedule session expiry when a client
	// disconnects. Set via SetSessionStore.
	sessions *session.Store

	// transcript backs the /api/export-logs endpoint. Set via
	// SetTranscript; the endpoint returns 503 while nil.
	transcript *storage.Store
}

// Client represents a single WebSocket connection. Each client has its
// own goroutine for writing messages, which prevents slow clients from
// blocking the broadcast.
type Client struct {
	// conn is the underlying WebSocket connection.
	conn *websocket.Conn

	// send is a buffered channel for outgoing messages.
	send chan Message

	// done is closed to signal the client should shut down.
	// Used to coordinate clean shutdown without racing on send channel.
	done chan struct{}

	// sendOnce ensures done is only closed once. Both Stop() and
	// readPump() may try, so sync.Once prevents a double-close panic.
	sendOnce sync.Once

	// server is a reference back to the parent server.
	server *Server

	// tabs is the set of tab IDs this connection has claimed.
	// Written only by the client's own readPump goroutine; read under
	// server.mu when the connection closes.
	tabs map[string]bool

	// commandLimiter rate-limits command messages from this connection.
	commandLimiter *rate.Limiter
}

// NewServer creates a new WebSocket server.
// Call Start() to begin accepting connections.
func NewServer(addr string) *Server {
	return &Server{
		addr:      addr,
		clients:   make(map[*Client]bool),
		tabs:      make(map[string]*Client),
		broadcast: make(chan Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetDispatcher wires the command dispatcher. Must be called before
// Start; the server delivers dispatch results through its Sink
// implementation.
func (s *Server) SetDispatcher(d *dispatch.Dispatcher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dispatcher = d
}

// SetSessionStore wires the session store used for disconnect expiry.
func (s *Server) SetSessionStore(sessions *session.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = sessions
}

// SetTranscript wires the transcript store behind /api/export-logs.
func (s *Server) SetTranscript(store *storage.Store) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = store
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
