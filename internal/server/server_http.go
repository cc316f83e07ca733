package server

import (
	"log"
	"net/http"

	"golang.org/x/time/rate"
)

// createMux creates the HTTP mux with all endpoints.
func (s *Server) createMux() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket endpoint for tab connections
	mux.HandleFunc("/ws", s.handleWebSocket)

	// Health check endpoint for monitoring
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Transcript export endpoint: /api/export-logs?format=md|txt[&tab_id=...]
	mux.HandleFunc("/api/export-logs", s.handleExportLogs)

	return mux
}

// handleWebSocket upgrades an HTTP connection to a WebSocket connection.
// This is called by the HTTP server for each new connection to /ws.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	// Buffered send channel lets the client fall behind temporarily
	// without blocking the broadcaster.
	client := &Client{
		conn:           conn,
		send:           make(chan Message, channelBufferSize),
		done:           make(chan struct{}),
		server:         s,
		tabs:           make(map[string]bool),
		commandLimiter: rate.NewLimiter(rate.Limit(commandRateLimit), commandRateBurst),
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.clients[client] = true
	s.mu.Unlock()

	log.Printf("server: client connected (%d total)", s.ClientCount())

	go client.writePump()
	go client.readPump()
}
