package server

import (
	"log"

	"github.com/tabterm/host/internal/metrics"
)

// Broadcast sends a message to all connected clients.
// This method is non-blocking; messages are queued for delivery.
// If the server has been stopped, this method does nothing.
func (s *Server) Broadcast(msg Message) {
	// Hold RLock while checking stopped AND sending to avoid race with
	// Stop(). Stop() takes the write lock, sets stopped=true, then
	// closes the channel. Holding RLock through the send ensures the
	// channel can't be closed while we're sending to it.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		return
	}

	select {
	case s.broadcast <- msg:
	default:
		log.Printf("server: broadcast channel full, dropping message")
	}
}

// BroadcastSystemInfo sends a metrics snapshot to all clients. This is
// the metrics sampler's OnSnapshot callback.
func (s *Server) BroadcastSystemInfo(snap metrics.Snapshot) {
	s.Broadcast(NewSystemInfoMessage(snap))
}

// sendToTab delivers a message to the client that owns tabID. Messages
// for unclaimed tabs are dropped: the tab's owner disconnected and its
// session will either be reclaimed (and replayed from history) or
// expire.
func (s *Server) sendToTab(tabID string, msg Message) {
	s.mu.RLock()
	client := s.tabs[tabID]
	s.mu.RUnlock()

	if client == nil {
		return
	}
	client.trySend(msg)
}

// trySend queues a message for this client without blocking. Messages
// are dropped when the client is shutting down or too slow.
func (c *Client) trySend(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		log.Printf("server: client send buffer full, dropping message")
	}
}

// Output implements dispatch.Sink.
func (s *Server) Output(tabID, text string) {
	s.sendToTab(tabID, NewOutputMessage(tabID, text))
}

// Error implements dispatch.Sink.
func (s *Server) Error(tabID, code, message string) {
	s.sendToTab(tabID, NewErrorMessage(tabID, code, message))
}

// DirectoryChange implements dispatch.Sink.
func (s *Server) DirectoryChange(tabID, dir string) {
	s.sendToTab(tabID, NewDirectoryChangeMessage(tabID, dir))
}

// Clear implements dispatch.Sink.
func (s *Server) Clear(tabID string) {
	s.sendToTab(tabID, NewClearMessage(tabID))
}

// runBroadcaster reads from the broadcast channel and sends to all
// clients. This runs in its own goroutine started by Start().
func (s *Server) runBroadcaster() {
	for msg := range s.broadcast {
		s.mu.RLock()
		for client := range s.clients {
			client.trySend(msg)
		}
		s.mu.RUnlock()
	}
}
