package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apperrors "github.com/tabterm/host/internal/errors"
	"github.com/tabterm/host/internal/resolve"
	"github.com/tabterm/host/internal/session"
	"github.com/tabterm/host/internal/shell"
	"github.com/tabterm/host/internal/storage"
)

// event is one sink delivery, flattened for assertions.
type event struct {
	kind  string // "output", "error", "dirchange", "clear"
	tabID string
	text  string
	code  string
}

// chanSink delivers events on a channel so tests can wait for the
// session worker without sleeping.
type chanSink struct {
	events chan event
}

func newChanSink() *chanSink {
	return &chanSink{events: make(chan event, 32)}
}

func (s *chanSink) Output(tabID, text string) { s.events <- event{"output", tabID, text, ""} }
func (s *chanSink) Error(tabID, code, msg string) {
	s.events <- event{"error", tabID, msg, code}
}
func (s *chanSink) DirectoryChange(tabID, dir string) {
	s.events <- event{"dirchange", tabID, dir, ""}
}
func (s *chanSink) Clear(tabID string) { s.events <- event{"clear", tabID, "", ""} }

func (s *chanSink) next(t *testing.T) event {
	t.Helper()
	select {
	case e := <-s.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sink event")
		return event{}
	}
}

func (s *chanSink) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-s.events:
		t.Fatalf("unexpected event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeRunner scripts host execution without spawning processes.
type fakeRunner struct {
	result shell.ExecResult
	err    error
	delay  time.Duration
}

func (f *fakeRunner) Execute(ctx context.Context, name string, args []string, cwd string) (shell.ExecResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.result, f.err
}

func newTestDispatcher(t *testing.T, runner shell.Runner) (*Dispatcher, *chanSink, string) {
	t.Helper()
	root := t.TempDir()
	nav := shell.NewNavigator("")
	nav.Home = root
	sessions := session.NewStore(root, 100, true, time.Minute)
	t.Cleanup(sessions.Close)
	sink := newChanSink()
	if runner == nil {
		runner = &fakeRunner{err: apperrors.New(apperrors.CodeDispatchUnknownCommand, "command not found")}
	}
	d := New(sessions, nav, runner, nil, nil, sink)
	return d, sink, root
}

func TestRegistryCoversVocabulary(t *testing.T) {
	reg := buildRegistry()
	for _, name := range resolve.VocabularyNames() {
		if _, ok := reg[name]; !ok {
			t.Errorf("vocabulary command %q has no handler", name)
		}
	}
	for name := range reg {
		if _, ok := resolve.Vocabulary[name]; !ok {
			t.Errorf("handler %q is not in the vocabulary", name)
		}
	}
}

func TestEcho(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "echo hello world")
	e := sink.next(t)
	if e.kind != "output" || e.text != "hello world" {
		t.Errorf("event = %+v, want output %q", e, "hello world")
	}
	if e.tabID != "tab-1" {
		t.Errorf("tabID = %q, want tab-1", e.tabID)
	}
}

func TestCdEmitsDirectoryChange(t *testing.T) {
	d, sink, root := newTestDispatcher(t, nil)
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	d.Submit("tab-1", "cd sub")
	e := sink.next(t)
	if e.kind != "dirchange" || e.text != sub {
		t.Errorf("event = %+v, want dirchange to %q", e, sub)
	}

	// The textual confirmation arrives after the directory event.
	e = sink.next(t)
	if e.kind != "output" || e.text != "Changed directory to: "+sub {
		t.Errorf("event = %+v, want cd confirmation output", e)
	}
	if got := d.Dir("tab-1"); got != sub {
		t.Errorf("Dir() = %q, want %q", got, sub)
	}

	// pwd reports the committed directory.
	d.Submit("tab-1", "pwd")
	e = sink.next(t)
	if e.kind != "output" || e.text != sub {
		t.Errorf("pwd = %+v, want %q", e, sub)
	}
}

func TestRemoveOwnDirectoryRejected(t *testing.T) {
	d, sink, root := newTestDispatcher(t, nil)
	sub := filepath.Join(root, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}

	d.Submit("tab-1", "cd sub")
	sink.next(t) // dirchange
	sink.next(t) // confirmation

	d.Submit("tab-1", "rm -r "+sub)
	e := sink.next(t)
	if e.kind != "error" || e.code != apperrors.CodeShellForbidden {
		t.Fatalf("event = %+v, want shell.forbidden", e)
	}

	// The session still points at a directory that exists.
	if got := d.Dir("tab-1"); got != sub {
		t.Errorf("Dir() = %q, want %q", got, sub)
	}
	if _, err := os.Stat(sub); err != nil {
		t.Errorf("working directory no longer exists: %v", err)
	}
}

func TestNaturalLanguageCreatesFolder(t *testing.T) {
	d, sink, root := newTestDispatcher(t, nil)

	d.Submit("tab-1", "!create folder logs")
	e := sink.next(t)
	if e.kind != "output" {
		t.Fatalf("event = %+v, want output", e)
	}
	if _, err := os.Stat(filepath.Join(root, "logs")); err != nil {
		t.Errorf("folder not created: %v", err)
	}
}

func TestUnrecognizedIntent(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "!doSomethingUnknown")
	e := sink.next(t)
	if e.kind != "error" || e.code != apperrors.CodeResolveUnrecognizedIntent {
		t.Errorf("event = %+v, want %s error", e, apperrors.CodeResolveUnrecognizedIntent)
	}

	// Unrecognized input is not recallable, so it never enters history.
	if h := d.History("tab-1"); len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestFailedCommandStillEntersHistory(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "cat missing.txt")
	e := sink.next(t)
	if e.kind != "error" || e.code != apperrors.CodeShellNotFound {
		t.Fatalf("event = %+v, want shell.not_found error", e)
	}

	h := d.History("tab-1")
	if len(h) != 1 || h[0] != "cat missing.txt" {
		t.Errorf("history = %v, want the failed command recorded", h)
	}
}

func TestEmptyInputIsNoop(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "   ")
	sink.expectNone(t)
	if h := d.History("tab-1"); len(h) != 0 {
		t.Errorf("history = %v, want empty", h)
	}
}

func TestUnknownCommandSuggestion(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "lss")
	e := sink.next(t)
	if e.kind != "error" || e.code != apperrors.CodeDispatchUnknownCommand {
		t.Fatalf("event = %+v, want dispatch.unknown_command", e)
	}
	if !strings.Contains(e.text, "ls") {
		t.Errorf("error message %q carries no suggestion", e.text)
	}
}

func TestHostExecFallthrough(t *testing.T) {
	runner := &fakeRunner{result: shell.ExecResult{Stdout: "v2.43.0\n"}}
	d, sink, _ := newTestDispatcher(t, runner)

	d.Submit("tab-1", "git version")
	e := sink.next(t)
	if e.kind != "output" || e.text != "v2.43.0" {
		t.Errorf("event = %+v, want trimmed stdout", e)
	}
}

func TestHostExecNonZeroExit(t *testing.T) {
	runner := &fakeRunner{result: shell.ExecResult{Stderr: "fatal: not a repository\n", ExitCode: 128}}
	d, sink, _ := newTestDispatcher(t, runner)

	d.Submit("tab-1", "git status")
	e := sink.next(t)
	if e.kind != "error" || e.code != apperrors.CodeDispatchExecFailed {
		t.Fatalf("event = %+v, want dispatch.exec_failed", e)
	}
	if !strings.Contains(e.text, "not a repository") {
		t.Errorf("error message %q should carry stderr", e.text)
	}
}

func TestPerTabOrdering(t *testing.T) {
	runner := &fakeRunner{result: shell.ExecResult{Stdout: "slow done"}, delay: 100 * time.Millisecond}
	d, sink, _ := newTestDispatcher(t, runner)

	d.Submit("tab-1", "slowcmd")
	d.Submit("tab-1", "echo after")

	first := sink.next(t)
	second := sink.next(t)
	if first.text != "slow done" || second.text != "after" {
		t.Errorf("results out of order: %q then %q", first.text, second.text)
	}
}

func TestSlowTabDoesNotBlockOthers(t *testing.T) {
	runner := &fakeRunner{result: shell.ExecResult{Stdout: "slow done"}, delay: 300 * time.Millisecond}
	d, sink, _ := newTestDispatcher(t, runner)

	d.Submit("tab-slow", "slowcmd")
	d.Submit("tab-fast", "echo quick")

	// The fast tab's result must land before the slow tab's.
	e := sink.next(t)
	if e.tabID != "tab-fast" {
		t.Errorf("first event from %q, want tab-fast", e.tabID)
	}
}

func TestClear(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "clear")
	e := sink.next(t)
	if e.kind != "clear" {
		t.Errorf("event = %+v, want clear", e)
	}
}

func TestHistoryCommand(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "echo one")
	sink.next(t)
	d.Submit("tab-1", "history")
	e := sink.next(t)
	if e.kind != "output" || !strings.Contains(e.text, "echo one") {
		t.Errorf("history output = %+v", e)
	}
	if !strings.Contains(e.text, "history") {
		t.Errorf("history should include itself: %q", e.text)
	}
}

func TestHelpListsVocabulary(t *testing.T) {
	d, sink, _ := newTestDispatcher(t, nil)

	d.Submit("tab-1", "help")
	e := sink.next(t)
	for _, name := range []string{"ls", "mkdir", "cpu"} {
		if !strings.Contains(e.text, name) {
			t.Errorf("help output missing %q", name)
		}
	}
}

func TestTranscriptRecording(t *testing.T) {
	root := t.TempDir()
	nav := shell.NewNavigator("")
	nav.Home = root
	sessions := session.NewStore(root, 100, true, time.Minute)
	defer sessions.Close()

	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	sink := newChanSink()
	d := New(sessions, nav, &fakeRunner{}, nil, store, sink)

	d.Submit("tab-1", "echo recorded")
	sink.next(t)
	d.Submit("tab-1", "cat missing.txt")
	sink.next(t)

	entries, err := store.Entries("tab-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Output != "recorded" || entries[0].ErrorCode != "" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].ErrorCode != apperrors.CodeShellNotFound {
		t.Errorf("entry 1 error code = %q, want shell.not_found", entries[1].ErrorCode)
	}
}
