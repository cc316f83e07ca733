package server

import (
	"fmt"
	"log"
	"net"
	"net/http"
)

// Start begins listening for WebSocket connections.
// This method blocks, so call it in a goroutine if you need to do other
// work. For non-blocking startup with error handling, use StartAsync().
func (s *Server) Start() error {
	mux := s.createMux()

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: mux,
	}

	go s.runBroadcaster()

	log.Printf("server: listening on %s", s.addr)

	// ListenAndServe blocks until the server is stopped or an error
	// occurs. It returns http.ErrServerClosed on graceful shutdown.
	return s.httpServer.ListenAndServe()
}

// StartAsync starts the server in a goroutine and returns any startup
// errors. The returned channel receives nil if startup succeeded, or an
// error if the listener could not be created (e.g., port already in
// use). After receiving from the channel, the server is either running
// or failed.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	mux := s.createMux()

	// Create the listener first to detect port conflicts immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	s.httpServer = &http.Server{
		Handler: mux,
	}

	go s.runBroadcaster()

	go func() {
		log.Printf("server: listening on %s", s.addr)
		errCh <- nil
		close(errCh)

		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("server: serve error: %v", err)
		}
	}()

	return errCh
}

// Addr returns the listen address the server was created with.
func (s *Server) Addr() string {
	return s.addr
}

// Stop gracefully shuts down the server. It sends close frames to all
// clients, closes connections, and stops accepting new ones. This also
// closes the broadcast channel to allow the runBroadcaster goroutine to
// exit cleanly.
func (s *Server) Stop() error {
	s.mu.Lock()

	if s.stopped {
		s.mu.Unlock()
		return nil // Already stopped
	}
	s.stopped = true

	// Signal all clients to stop. writePump sends the close frame and
	// closes the connection when it sees done closed; we don't write
	// directly here to avoid racing with writePump.
	for client := range s.clients {
		client.closeSend()
	}

	s.clients = make(map[*Client]bool)
	s.tabs = make(map[string]*Client)

	// Close the broadcast channel to allow runBroadcaster to exit.
	// This must happen after setting stopped=true to prevent panics
	// from concurrent Broadcast() calls.
	close(s.broadcast)

	s.mu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}
