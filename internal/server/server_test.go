package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tabterm/host/internal/dispatch"
	apperrors "github.com/tabterm/host/internal/errors"
	"github.com/tabterm/host/internal/metrics"
	"github.com/tabterm/host/internal/session"
	"github.com/tabterm/host/internal/shell"
	"github.com/tabterm/host/internal/storage"
)

// newTestServer wires a server against a real dispatcher rooted in a
// temp directory, served through httptest.
func newTestServer(t *testing.T) (*Server, *httptest.Server, string) {
	t.Helper()

	root := t.TempDir()
	nav := shell.NewNavigator("")
	nav.Home = root
	sessions := session.NewStore(root, 100, true, 5*time.Second)
	t.Cleanup(sessions.Close)

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	s := NewServer("unused")
	d := dispatch.New(sessions, nav, shell.NewHostRunner(5*time.Second), nil, store, s)
	s.SetDispatcher(d)
	s.SetSessionStore(sessions)
	s.SetTranscript(store)
	go s.runBroadcaster()

	ts := httptest.NewServer(s.createMux())
	t.Cleanup(func() {
		ts.Close()
		s.Stop()
	})

	return s, ts, root
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts.URL), nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, want MessageType) Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return Message{}
}

func payloadMap(t *testing.T, msg Message) map[string]interface{} {
	t.Helper()
	payload, ok := msg.Payload.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map payload, got %#v", msg.Payload)
	}
	return payload
}

func sendCommand(t *testing.T, conn *websocket.Conn, tabID, command string) {
	t.Helper()
	msg := Message{Type: MessageTypeCommand, Payload: CommandPayload{TabID: tabID, Command: command}}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "echo hello")

	opened := readUntil(t, conn, MessageTypeTabOpened)
	if payloadMap(t, opened)["tab_id"] != "tab-1" {
		t.Fatalf("unexpected tab_opened payload: %#v", opened.Payload)
	}

	out := readUntil(t, conn, MessageTypeOutput)
	payload := payloadMap(t, out)
	if payload["output"] != "hello" {
		t.Errorf("output = %#v, want hello", payload["output"])
	}
	if payload["tab_id"] != "tab-1" {
		t.Errorf("tab_id = %#v, want tab-1", payload["tab_id"])
	}
}

func TestEmptyTabIDGetsAssigned(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "", "echo hi")

	opened := readUntil(t, conn, MessageTypeTabOpened)
	tabID, _ := payloadMap(t, opened)["tab_id"].(string)
	if tabID == "" {
		t.Fatal("server did not assign a tab id")
	}

	out := readUntil(t, conn, MessageTypeOutput)
	if payloadMap(t, out)["tab_id"] != tabID {
		t.Errorf("output routed to %#v, want %q", payloadMap(t, out)["tab_id"], tabID)
	}
}

func TestErrorCarriesCode(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "cat missing.txt")

	errMsg := readUntil(t, conn, MessageTypeError)
	payload := payloadMap(t, errMsg)
	if payload["code"] != apperrors.CodeShellNotFound {
		t.Errorf("code = %#v, want %s", payload["code"], apperrors.CodeShellNotFound)
	}
}

func TestDirectoryChangeEvent(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "mkdir sub")
	readUntil(t, conn, MessageTypeOutput)

	sendCommand(t, conn, "tab-1", "cd sub")
	change := readUntil(t, conn, MessageTypeDirectoryChange)
	dir, _ := payloadMap(t, change)["directory"].(string)
	if !strings.HasSuffix(dir, "/sub") {
		t.Errorf("directory = %q, want .../sub", dir)
	}
}

func TestGetHistory(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "echo one")
	readUntil(t, conn, MessageTypeOutput)

	if err := conn.WriteJSON(Message{Type: MessageTypeGetHistory, Payload: GetHistoryPayload{TabID: "tab-1"}}); err != nil {
		t.Fatal(err)
	}
	hist := readUntil(t, conn, MessageTypeHistory)
	entries, _ := payloadMap(t, hist)["history"].([]interface{})
	if len(entries) != 1 || entries[0] != "echo one" {
		t.Errorf("history = %#v, want [echo one]", entries)
	}
}

func TestAutocompleteCommandNames(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteJSON(Message{Type: MessageTypeAutocomplete, Payload: AutocompletePayload{TabID: "tab-1", Command: "c"}}); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, MessageTypeSuggestions)
	payload := payloadMap(t, msg)
	if payload["prefix"] != "c" {
		t.Errorf("prefix = %#v, want c", payload["prefix"])
	}
	raw, _ := payload["suggestions"].([]interface{})
	var got []string
	for _, v := range raw {
		got = append(got, v.(string))
	}
	for _, want := range []string{"cat", "cd", "clear", "cp", "cpu"} {
		found := false
		for _, g := range got {
			if g == want {
				found = true
			}
		}
		if !found {
			t.Errorf("suggestions %v missing %q", got, want)
		}
	}
}

func TestMetricsBroadcastReachesAllClients(t *testing.T) {
	s, ts, _ := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	// Claim tabs so both connections are registered and draining.
	sendCommand(t, a, "tab-a", "echo x")
	readUntil(t, a, MessageTypeOutput)
	sendCommand(t, b, "tab-b", "echo y")
	readUntil(t, b, MessageTypeOutput)

	s.BroadcastSystemInfo(metrics.Snapshot{CPUPercent: 12.5, MemoryPercent: 50, ProcessCount: 42, Timestamp: time.Now()})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readUntil(t, conn, MessageTypeSystemInfo)
		payload := payloadMap(t, msg)
		cpu, _ := payload["cpu"].(map[string]interface{})
		if cpu["percent"] != 12.5 {
			t.Errorf("cpu.percent = %#v, want 12.5", cpu["percent"])
		}
		if payload["process_count"] != float64(42) {
			t.Errorf("process_count = %#v, want 42", payload["process_count"])
		}
	}
}

func TestOutputRoutedOnlyToOwningTab(t *testing.T) {
	_, ts, _ := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	sendCommand(t, b, "tab-b", "echo theirs")
	readUntil(t, b, MessageTypeOutput)

	sendCommand(t, a, "tab-a", "echo mine")
	out := readUntil(t, a, MessageTypeOutput)
	if payloadMap(t, out)["output"] != "mine" {
		t.Errorf("output = %#v, want mine", payloadMap(t, out)["output"])
	}

	// Client b must not see tab-a's output.
	b.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	for {
		var msg Message
		if err := b.ReadJSON(&msg); err != nil {
			break // timeout: nothing leaked
		}
		if msg.Type == MessageTypeOutput {
			if payloadMap(t, msg)["tab_id"] == "tab-a" {
				t.Fatal("tab-a output leaked to another client")
			}
		}
	}
}

func TestSessionResumesWithinTTL(t *testing.T) {
	_, ts, root := newTestServer(t)

	conn := dial(t, ts)
	sendCommand(t, conn, "tab-1", "mkdir sub")
	readUntil(t, conn, MessageTypeOutput)
	sendCommand(t, conn, "tab-1", "cd sub")
	readUntil(t, conn, MessageTypeDirectoryChange)
	conn.Close()

	// Reconnect within the TTL: claiming the tab cancels the expiry
	// timer and the old working directory is still in effect.
	conn2 := dial(t, ts)
	sendCommand(t, conn2, "tab-1", "pwd")
	readUntil(t, conn2, MessageTypeTabOpened)
	out := readUntil(t, conn2, MessageTypeOutput)
	if got := payloadMap(t, out)["output"]; got != root+"/sub" {
		t.Errorf("pwd after reconnect = %#v, want %q", got, root+"/sub")
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestExportLogsText(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "echo exported")
	readUntil(t, conn, MessageTypeOutput)

	resp, err := http.Get(ts.URL + "/api/export-logs?format=txt&tab_id=tab-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "echo exported") {
		t.Errorf("export body missing command:\n%s", body)
	}
	if !strings.Contains(string(body), "exported") {
		t.Errorf("export body missing output:\n%s", body)
	}
}

func TestExportLogsMarkdown(t *testing.T) {
	_, ts, _ := newTestServer(t)
	conn := dial(t, ts)

	sendCommand(t, conn, "tab-1", "echo md")
	readUntil(t, conn, MessageTypeOutput)

	resp, err := http.Get(ts.URL + "/api/export-logs?format=md")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "## `echo md`") {
		t.Errorf("markdown export missing command heading:\n%s", body)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "markdown") {
		t.Errorf("Content-Type = %q, want markdown", ct)
	}
}

func TestExportLogsRejectsBadFormat(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/export-logs?format=pdf")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCompletionsHelper(t *testing.T) {
	nav := fakeCompleter{"notes.txt", "nested/"}

	got := completions(nav, "/work", "c")
	if len(got) == 0 || got[0] != "cat" {
		t.Errorf("completions(c) = %v, want vocabulary first", got)
	}

	// Argument position completes paths only.
	got = completions(nav, "/work", "cat n")
	if len(got) != 2 {
		t.Errorf("completions(cat n) = %v, want the fake's entries", got)
	}

	if got := completions(nav, "/work", "  "); got != nil {
		t.Errorf("completions(blank) = %v, want nil", got)
	}
}

type fakeCompleter []string

func (f fakeCompleter) Entries(dir, prefix string) []string {
	var out []string
	for _, e := range f {
		if strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
