package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tabterm/host/internal/storage"
)

// handleExportLogs renders the persisted transcript as a downloadable
// file. Query parameters:
//
//	format  "txt" (default) or "md"
//	tab_id  restrict to one tab; omitted means all tabs
func (s *Server) handleExportLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	store := s.transcript
	s.mu.RUnlock()
	if store == nil {
		http.Error(w, "transcript storage not available", http.StatusServiceUnavailable)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "txt"
	}
	if format != "txt" && format != "md" {
		http.Error(w, "format must be txt or md", http.StatusBadRequest)
		return
	}

	tabID := r.URL.Query().Get("tab_id")

	var entries []storage.Entry
	var err error
	if tabID != "" {
		entries, err = store.Entries(tabID, 0)
	} else {
		entries, err = store.AllEntries(0)
	}
	if err != nil {
		http.Error(w, "failed to read transcript", http.StatusInternalServerError)
		return
	}

	var body string
	var contentType, filename string
	switch format {
	case "md":
		body = renderTranscriptMarkdown(entries, tabID)
		contentType = "text/markdown; charset=utf-8"
		filename = exportFilename(tabID, "md")
	default:
		body = renderTranscriptText(entries, tabID)
		contentType = "text/plain; charset=utf-8"
		filename = exportFilename(tabID, "txt")
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(body))
}

func exportFilename(tabID, ext string) string {
	stamp := time.Now().Format("20060102-150405")
	if tabID != "" {
		return fmt.Sprintf("tabterm-%s-%s.%s", tabID, stamp, ext)
	}
	return fmt.Sprintf("tabterm-%s.%s", stamp, ext)
}

// renderTranscriptText produces a plain-text log, one command block per
// entry with its timestamp and output.
func renderTranscriptText(entries []storage.Entry, tabID string) string {
	var b strings.Builder

	title := "Command Log"
	if tabID != "" {
		title += " - tab " + tabID
	}
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")

	if len(entries) == 0 {
		b.WriteString("(no commands recorded)\n")
		return b.String()
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "[%s]", e.CreatedAt.Format("2006-01-02 15:04:05"))
		if tabID == "" {
			fmt.Fprintf(&b, " [%s]", e.TabID)
		}
		fmt.Fprintf(&b, " $ %s\n", e.Command)

		if e.ErrorCode != "" {
			fmt.Fprintf(&b, "  error: %s\n", e.ErrorCode)
		}
		if e.Output != "" {
			for _, line := range strings.Split(e.Output, "\n") {
				b.WriteString("  " + line + "\n")
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderTranscriptMarkdown produces a markdown log with commands as
// inline code and output as fenced blocks.
func renderTranscriptMarkdown(entries []storage.Entry, tabID string) string {
	var b strings.Builder

	if tabID != "" {
		fmt.Fprintf(&b, "# Command Log - tab %s\n\n", tabID)
	} else {
		b.WriteString("# Command Log\n\n")
	}

	if len(entries) == 0 {
		b.WriteString("_No commands recorded._\n")
		return b.String()
	}

	for _, e := range entries {
		fmt.Fprintf(&b, "## `%s`\n\n", e.Command)
		fmt.Fprintf(&b, "- time: %s\n", e.CreatedAt.Format("2006-01-02 15:04:05"))
		if tabID == "" {
			fmt.Fprintf(&b, "- tab: %s\n", e.TabID)
		}
		if e.ErrorCode != "" {
			fmt.Fprintf(&b, "- error: `%s`\n", e.ErrorCode)
		}
		b.WriteString("\n")
		if e.Output != "" {
			b.WriteString("```\n")
			b.WriteString(e.Output)
			if !strings.HasSuffix(e.Output, "\n") {
				b.WriteString("\n")
			}
			b.WriteString("```\n\n")
		}
	}
	return b.String()
}
