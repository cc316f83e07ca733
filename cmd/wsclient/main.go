// Command wsclient is a simple WebSocket test client for tabterm.
// It connects to a host, sends each stdin line as a command, and prints
// everything the server delivers. Lost connections are retried with
// exponential backoff.
//
// Usage: go run ./cmd/wsclient [-tab my-tab] ws://127.0.0.1:7180/ws
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
)

func main() {
	tabID := flag.String("tab", "wsclient", "Tab ID to claim")
	flag.Parse()

	url := "ws://127.0.0.1:7180/ws"
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	// Stdin lines are read once and fed to whichever connection is
	// currently live.
	input := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
		close(input)
	}()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0 // retry forever until interrupted
	policy.MaxInterval = 30 * time.Second

	for {
		err := runSession(url, *tabID, input, interrupt)
		if err == nil {
			return
		}
		wait := policy.NextBackOff()
		fmt.Fprintf(os.Stderr, "Connection lost: %v (retrying in %s)\n", err, wait)
		select {
		case <-time.After(wait):
		case <-interrupt:
			return
		}
	}
}

// runSession drives one connection until it fails (returned error) or
// the user interrupts or stdin closes (nil).
func runSession(url, tabID string, input <-chan string, interrupt <-chan os.Signal) error {
	fmt.Printf("Connecting to %s...\n", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Connected. Commands go to tab %q; Ctrl-C to quit.\n", tabID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			printMessage(data)
		}
	}()

	for {
		select {
		case <-done:
			return fmt.Errorf("connection closed")

		case line, ok := <-input:
			if !ok {
				closeQuietly(conn, done)
				return nil
			}
			msg := map[string]interface{}{
				"type": "command",
				"payload": map[string]string{
					"tab_id":  tabID,
					"command": line,
				},
			}
			if err := conn.WriteJSON(msg); err != nil {
				return err
			}

		case <-interrupt:
			fmt.Println("Interrupted")
			closeQuietly(conn, done)
			return nil
		}
	}
}

func closeQuietly(conn *websocket.Conn, done <-chan struct{}) {
	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(time.Second):
	}
}

// printMessage renders one server message for the terminal.
func printMessage(data []byte) {
	var msg struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		fmt.Printf("raw: %s\n", data)
		return
	}

	switch msg.Type {
	case "output":
		if out, ok := msg.Payload["output"].(string); ok {
			fmt.Println(out)
		}
	case "error":
		fmt.Printf("error [%v]: %v\n", msg.Payload["code"], msg.Payload["message"])
	case "directory_change":
		fmt.Printf("cwd: %v\n", msg.Payload["directory"])
	case "clear":
		fmt.Print("\033[2J\033[H")
	case "system_info":
		fmt.Printf("[metrics] cpu=%v%% mem=%v%% procs=%v\n",
			nestedPercent(msg.Payload, "cpu"), nestedPercent(msg.Payload, "memory"), msg.Payload["process_count"])
	case "tab_opened":
		fmt.Printf("tab %v opened in %v\n", msg.Payload["tab_id"], msg.Payload["dir"])
	case "history":
		fmt.Printf("history: %v\n", msg.Payload["history"])
	case "autocomplete_suggestions":
		fmt.Printf("suggestions: %v\n", msg.Payload["suggestions"])
	default:
		fmt.Printf("type=%s payload=%v\n", msg.Type, msg.Payload)
	}
}

func nestedPercent(payload map[string]interface{}, key string) interface{} {
	if m, ok := payload[key].(map[string]interface{}); ok {
		return m["percent"]
	}
	return "?"
}
