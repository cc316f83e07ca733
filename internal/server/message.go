// Package server provides the WebSocket server for browser tab
// connections. It routes command input to the dispatcher, delivers
// per-tab results back to the owning connection, and broadcasts
// system metrics to every client.
package server

import (
	"time"

	"github.com/tabterm/host/internal/metrics"
)

// MessageType identifies the kind of message being sent over WebSocket.
// Each type has a specific payload structure defined below.
type MessageType string

const (
	// MessageTypeCommand is sent by clients to run a line of input.
	// Payload: CommandPayload
	MessageTypeCommand MessageType = "command"

	// MessageTypeAutocomplete is sent by clients to request completions
	// for a partial input line.
	// Payload: AutocompletePayload
	MessageTypeAutocomplete MessageType = "autocomplete"

	// MessageTypeGetHistory is sent by clients to fetch a tab's command
	// history, typically right after (re)connecting.
	// Payload: GetHistoryPayload
	MessageTypeGetHistory MessageType = "get_history"

	// MessageTypeTabOpened is sent by the server when a tab is claimed.
	// It carries the (possibly server-assigned) tab ID and the tab's
	// current working directory so a reloaded page can resume.
	// Payload: TabOpenedPayload
	MessageTypeTabOpened MessageType = "tab_opened"

	// MessageTypeOutput delivers command output to the owning tab.
	// Payload: OutputPayload
	MessageTypeOutput MessageType = "output"

	// MessageTypeError delivers a coded command error to the owning tab.
	// Payload: ErrorPayload
	MessageTypeError MessageType = "error"

	// MessageTypeDirectoryChange notifies a tab that its working
	// directory changed after a successful cd.
	// Payload: DirectoryChangePayload
	MessageTypeDirectoryChange MessageType = "directory_change"

	// MessageTypeClear instructs a tab to clear its screen.
	// Payload: ClearPayload
	MessageTypeClear MessageType = "clear"

	// MessageTypeSuggestions carries autocomplete results.
	// Payload: SuggestionsPayload
	MessageTypeSuggestions MessageType = "autocomplete_suggestions"

	// MessageTypeHistory carries a tab's command history.
	// Payload: HistoryPayload
	MessageTypeHistory MessageType = "history"

	// MessageTypeSystemInfo broadcasts a metrics snapshot to all clients.
	// Payload: SystemInfoPayload
	MessageTypeSystemInfo MessageType = "system_info"
)

// Message is the envelope for all WebSocket traffic in both directions.
type Message struct {
	// Type identifies what kind of message this is.
	Type MessageType `json:"type"`

	// ID is an optional message identifier for correlation.
	// Clients can use this to match responses to requests.
	ID string `json:"id,omitempty"`

	// Payload contains the message-specific data.
	// The structure depends on the Type field.
	Payload interface{} `json:"payload"`
}

// CommandPayload carries one line of raw input from a tab. An empty
// TabID asks the server to assign one.
type CommandPayload struct {
	TabID   string `json:"tab_id"`
	Command string `json:"command"`
}

// AutocompletePayload requests completions for a partial input line.
type AutocompletePayload struct {
	TabID   string `json:"tab_id"`
	Command string `json:"command"`
}

// GetHistoryPayload requests a tab's command history.
type GetHistoryPayload struct {
	TabID string `json:"tab_id"`
}

// TabOpenedPayload confirms a tab claim.
type TabOpenedPayload struct {
	TabID string `json:"tab_id"`
	Dir   string `json:"dir"`
}

// OutputPayload carries command output text for one tab.
type OutputPayload struct {
	TabID     string `json:"tab_id"`
	Output    string `json:"output"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorPayload carries a coded error for one tab. Code is a stable
// {domain}.{error} identifier clients can use for styling.
type ErrorPayload struct {
	TabID   string `json:"tab_id"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DirectoryChangePayload notifies a tab of its new working directory.
type DirectoryChangePayload struct {
	TabID     string `json:"tab_id"`
	Directory string `json:"directory"`
}

// ClearPayload instructs a tab to clear its screen.
type ClearPayload struct {
	TabID string `json:"tab_id"`
}

// SuggestionsPayload carries autocomplete results for the prefix the
// client asked about. Echoing the prefix back lets the client discard
// stale responses after further typing.
type SuggestionsPayload struct {
	TabID       string   `json:"tab_id"`
	Prefix      string   `json:"prefix"`
	Suggestions []string `json:"suggestions"`
}

// HistoryPayload carries a tab's command history oldest-first.
type HistoryPayload struct {
	TabID   string   `json:"tab_id"`
	History []string `json:"history"`
}

// SystemInfoPayload is a broadcast metrics snapshot. CPU and memory are
// nested objects so further per-resource fields can be added without
// breaking clients.
type SystemInfoPayload struct {
	CPU          PercentPayload `json:"cpu"`
	Memory       PercentPayload `json:"memory"`
	ProcessCount int            `json:"process_count"`
	Timestamp    int64          `json:"timestamp"`
}

// PercentPayload is a single utilization reading in [0,100].
type PercentPayload struct {
	Percent float64 `json:"percent"`
}

// NewTabOpenedMessage creates a tab claim confirmation.
func NewTabOpenedMessage(tabID, dir string) Message {
	return Message{
		Type:    MessageTypeTabOpened,
		Payload: TabOpenedPayload{TabID: tabID, Dir: dir},
	}
}

// NewOutputMessage creates a command output message.
func NewOutputMessage(tabID, output string) Message {
	return Message{
		Type: MessageTypeOutput,
		Payload: OutputPayload{
			TabID:     tabID,
			Output:    output,
			Timestamp: time.Now().UnixMilli(),
		},
	}
}

// NewErrorMessage creates a coded error message.
func NewErrorMessage(tabID, code, message string) Message {
	return Message{
		Type:    MessageTypeError,
		Payload: ErrorPayload{TabID: tabID, Code: code, Message: message},
	}
}

// NewDirectoryChangeMessage creates a directory change notification.
func NewDirectoryChangeMessage(tabID, dir string) Message {
	return Message{
		Type:    MessageTypeDirectoryChange,
		Payload: DirectoryChangePayload{TabID: tabID, Directory: dir},
	}
}

// NewClearMessage creates a clear-screen instruction.
func NewClearMessage(tabID string) Message {
	return Message{
		Type:    MessageTypeClear,
		Payload: ClearPayload{TabID: tabID},
	}
}

// NewSuggestionsMessage creates an autocomplete result message.
func NewSuggestionsMessage(tabID, prefix string, suggestions []string) Message {
	return Message{
		Type:    MessageTypeSuggestions,
		Payload: SuggestionsPayload{TabID: tabID, Prefix: prefix, Suggestions: suggestions},
	}
}

// NewHistoryMessage creates a history replay message.
func NewHistoryMessage(tabID string, entries []string) Message {
	return Message{
		Type:    MessageTypeHistory,
		Payload: HistoryPayload{TabID: tabID, History: entries},
	}
}

// NewSystemInfoMessage creates a metrics broadcast from a snapshot.
func NewSystemInfoMessage(snap metrics.Snapshot) Message {
	return Message{
		Type: MessageTypeSystemInfo,
		Payload: SystemInfoPayload{
			CPU:          PercentPayload{Percent: snap.CPUPercent},
			Memory:       PercentPayload{Percent: snap.MemoryPercent},
			ProcessCount: snap.ProcessCount,
			Timestamp:    snap.Timestamp.UnixMilli(),
		},
	}
}
