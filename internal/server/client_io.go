package server

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tabterm/host/internal/dispatch"
	apperrors "github.com/tabterm/host/internal/errors"
	"github.com/tabterm/host/internal/resolve"
)

// maxSuggestions caps one autocomplete response.
const maxSuggestions = 20

// closeSend safely signals the client to shut down exactly once.
// This is safe to call multiple times from different goroutines.
// We only close the done channel (not send) to avoid racing with
// ongoing send operations. All senders check done before sending.
func (c *Client) closeSend() {
	c.sendOnce.Do(func() {
		close(c.done)
	})
}

// writePump continuously sends messages from the send channel to the
// WebSocket. It also sends periodic pings to keep the connection alive.
func (c *Client) writePump() {
	// Pings help detect dead connections and keep NAT/firewalls happy.
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Shutdown signaled; send close frame and exit.
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case msg, ok := <-c.send:
			// Set a write deadline to prevent hanging on slow connections
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(msg)
			if err != nil {
				log.Printf("server: failed to marshal message: %v", err)
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("server: write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads messages from the WebSocket and handles them. When the
// connection drops, every tab this client owned is released and its
// session TTL starts ticking.
func (c *Client) readPump() {
	defer func() {
		c.server.releaseClient(c)
		c.closeSend()
		log.Printf("server: client disconnected (%d remaining)", c.server.ClientCount())
	}()

	c.conn.SetReadLimit(512 * 1024) // Max message size: 512KB
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	// A pong in response to our ping proves the client is alive.
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				log.Printf("server: read error: %v", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("server: failed to parse message: %v", err)
			c.trySend(NewErrorMessage("", apperrors.CodeServerInvalidMessage, "malformed message"))
			continue
		}

		switch msg.Type {
		case MessageTypeCommand:
			c.handleCommand(data)
		case MessageTypeAutocomplete:
			c.handleAutocomplete(data)
		case MessageTypeGetHistory:
			c.handleGetHistory(data)
		default:
			log.Printf("server: received message: type=%s", msg.Type)
			c.trySend(NewErrorMessage("", apperrors.CodeServerInvalidMessage, "unknown message type: "+string(msg.Type)))
		}
	}
}

// envelope mirrors Message with a raw payload for two-stage decoding.
type envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func decodePayload(data []byte, out interface{}) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	return json.Unmarshal(env.Payload, out)
}

// handleCommand claims the tab and submits the input to the dispatcher.
func (c *Client) handleCommand(data []byte) {
	var payload CommandPayload
	if err := decodePayload(data, &payload); err != nil {
		c.trySend(NewErrorMessage("", apperrors.CodeServerInvalidMessage, "malformed command payload"))
		return
	}

	tabID := c.claimTab(payload.TabID)

	if !c.commandLimiter.Allow() {
		c.trySend(NewErrorMessage(tabID, apperrors.CodeServerRateLimited, "too many commands, slow down"))
		return
	}

	d := c.server.dispatcherRef()
	if d == nil {
		c.trySend(NewErrorMessage(tabID, apperrors.CodeServerInvalidMessage, "command handling not available"))
		return
	}
	if !d.Submit(tabID, payload.Command) {
		c.trySend(NewErrorMessage(tabID, apperrors.CodeServerChannelClosed, "tab session is closed"))
	}
}

// handleAutocomplete answers a completion request. Completion never
// errors toward the client: anything that fails produces an empty list.
func (c *Client) handleAutocomplete(data []byte) {
	var payload AutocompletePayload
	if err := decodePayload(data, &payload); err != nil {
		return
	}

	tabID := c.claimTab(payload.TabID)

	d := c.server.dispatcherRef()
	if d == nil {
		return
	}

	suggestions := completions(d.Navigator(), d.Dir(tabID), payload.Command)
	if len(suggestions) > maxSuggestions {
		suggestions = suggestions[:maxSuggestions]
	}
	c.trySend(NewSuggestionsMessage(tabID, payload.Command, suggestions))
}

// handleGetHistory replays the tab's command history.
func (c *Client) handleGetHistory(data []byte) {
	var payload GetHistoryPayload
	if err := decodePayload(data, &payload); err != nil {
		return
	}

	tabID := c.claimTab(payload.TabID)

	d := c.server.dispatcherRef()
	if d == nil {
		return
	}
	c.trySend(NewHistoryMessage(tabID, d.History(tabID)))
}

// claimTab records this connection as the owner of tabID, assigning a
// fresh ID when the client sent none. Re-claiming a tab after a
// reconnect cancels its pending expiry (via the session store) and
// replays the tab's working directory.
func (c *Client) claimTab(tabID string) string {
	if tabID == "" {
		tabID = uuid.New().String()
	}

	c.server.mu.Lock()
	alreadyMine := c.server.tabs[tabID] == c
	c.server.tabs[tabID] = c
	c.tabs[tabID] = true
	c.server.mu.Unlock()

	if alreadyMine {
		return tabID
	}

	if d := c.server.dispatcherRef(); d != nil {
		// GetOrCreate inside Dir cancels any pending removal timer.
		c.trySend(NewTabOpenedMessage(tabID, d.Dir(tabID)))
	} else {
		c.trySend(NewTabOpenedMessage(tabID, ""))
	}
	return tabID
}

// releaseClient drops a disconnected client and starts the expiry clock
// on every tab it owned.
func (s *Server) releaseClient(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	var released []string
	for tabID := range c.tabs {
		if s.tabs[tabID] == c {
			delete(s.tabs, tabID)
			released = append(released, tabID)
		}
	}
	sessions := s.sessions
	s.mu.Unlock()

	if sessions != nil {
		for _, tabID := range released {
			sessions.ScheduleRemoval(tabID)
		}
	}
}

func (s *Server) dispatcherRef() *dispatch.Dispatcher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatcher
}

// pathCompleter lists directory entries matching a prefix. It is the
// slice of the navigator that completion needs, kept narrow so the
// completion logic is testable with a fake.
type pathCompleter interface {
	Entries(dir, prefix string) []string
}

// completions builds the suggestion list for a partial input line.
//
// A line without whitespace is a partial command name: vocabulary
// matches come first, then matching entries from the working directory,
// each group alphabetical. A line with whitespace is completing an
// argument, so only the last token is matched against directory
// entries.
func completions(nav pathCompleter, dir, prefix string) []string {
	if strings.TrimSpace(prefix) == "" {
		return nil
	}

	if !strings.ContainsAny(prefix, " \t") {
		var out []string
		for _, name := range resolve.VocabularyNames() {
			if strings.HasPrefix(name, prefix) {
				out = append(out, name)
			}
		}
		out = append(out, nav.Entries(dir, prefix)...)
		return out
	}

	fields := strings.Fields(prefix)
	last := fields[len(fields)-1]
	if strings.HasSuffix(prefix, " ") || strings.HasSuffix(prefix, "\t") {
		last = ""
	}
	entries := nav.Entries(dir, last)
	sort.Strings(entries)
	return entries
}
