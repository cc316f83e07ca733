// Package dispatch routes resolved commands to their handlers: the
// filesystem navigator for built-ins, the metrics sampler for system
// information, and the host runner for everything else. All execution
// for a tab flows through that tab's serial session queue, so a slow
// command delays only its own tab and results always arrive in
// submission order.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/tabterm/host/internal/errors"
	"github.com/tabterm/host/internal/metrics"
	"github.com/tabterm/host/internal/resolve"
	"github.com/tabterm/host/internal/session"
	"github.com/tabterm/host/internal/shell"
	"github.com/tabterm/host/internal/storage"
)

// Sink receives dispatch results for delivery to the client that owns
// the tab. Implementations must not block; the hub's buffered send
// channels absorb transient slowness.
type Sink interface {
	Output(tabID, text string)
	Error(tabID, code, message string)
	DirectoryChange(tabID, dir string)
	Clear(tabID string)
}

// Dispatcher owns command routing for all tabs.
type Dispatcher struct {
	sessions   *session.Store
	nav        *shell.Navigator
	runner     shell.Runner
	sampler    *metrics.Sampler
	transcript *storage.Store
	sink       Sink
	registry   map[string]handler
}

// handler executes one built-in against a session and returns its
// output text.
type handler func(d *Dispatcher, sess *session.Session, args []string) (string, error)

// New creates a dispatcher. transcript may be nil to disable
// persistence (used by some tests).
func New(sessions *session.Store, nav *shell.Navigator, runner shell.Runner, sampler *metrics.Sampler, transcript *storage.Store, sink Sink) *Dispatcher {
	d := &Dispatcher{
		sessions:   sessions,
		nav:        nav,
		runner:     runner,
		sampler:    sampler,
		transcript: transcript,
		sink:       sink,
	}
	d.registry = buildRegistry()
	return d
}

// Submit enqueues raw input for the tab. Returns false when the tab's
// session has been stopped.
func (d *Dispatcher) Submit(tabID, raw string) bool {
	sess := d.sessions.GetOrCreate(tabID)
	return sess.Submit(func() {
		d.run(sess, raw)
	})
}

// History returns the tab's in-memory command history oldest-first.
func (d *Dispatcher) History(tabID string) []string {
	return d.sessions.GetOrCreate(tabID).History()
}

// Dir returns the tab's current working directory.
func (d *Dispatcher) Dir(tabID string) string {
	return d.sessions.GetOrCreate(tabID).Dir()
}

// Navigator exposes the navigator for autocomplete path lookups.
func (d *Dispatcher) Navigator() *shell.Navigator {
	return d.nav
}

// run executes one line of input on the session's worker goroutine.
//
// History and transcript record every command that resolves, whether it
// then succeeds or fails; input the resolver rejects outright (an
// unrecognized natural-language phrase) is not recorded, since there is
// nothing re-runnable to recall.
func (d *Dispatcher) run(sess *session.Session, raw string) {
	cmd, err := resolve.Resolve(raw)
	if err != nil {
		code, msg := apperrors.ToCodeAndMessage(err)
		d.sink.Error(sess.ID, code, msg)
		return
	}
	if cmd.IsNoop() {
		return
	}

	sess.AppendHistory(strings.TrimSpace(raw))

	output, err := d.execute(sess, cmd)
	if err != nil {
		code, msg := apperrors.ToCodeAndMessage(err)
		d.record(sess.ID, raw, "", code)
		d.sink.Error(sess.ID, code, msg)
		return
	}

	d.record(sess.ID, raw, output, "")
	if output != "" {
		d.sink.Output(sess.ID, output)
	}
}

// execute routes a resolved command to its handler. Names outside the
// built-in registry run as host processes.
func (d *Dispatcher) execute(sess *session.Session, cmd resolve.Command) (string, error) {
	if h, ok := d.registry[cmd.Name]; ok {
		return h(d, sess, cmd.Args)
	}
	return d.executeHost(sess, cmd)
}

// executeHost runs an unrecognized command as a host process. A missing
// binary gets a did-you-mean suggestion drawn from the built-in
// vocabulary.
func (d *Dispatcher) executeHost(sess *session.Session, cmd resolve.Command) (string, error) {
	res, err := d.runner.Execute(context.Background(), cmd.Name, cmd.Args, sess.Dir())
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeDispatchUnknownCommand) {
			if suggestions := resolve.SuggestCommand(cmd.Name, 3); len(suggestions) > 0 {
				return "", apperrors.Newf(apperrors.CodeDispatchUnknownCommand,
					"command not found: %s (did you mean: %s?)", cmd.Name, strings.Join(suggestions, ", "))
			}
		}
		return "", err
	}

	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = fmt.Sprintf("%s exited with status %d", cmd.Name, res.ExitCode)
		}
		return "", apperrors.New(apperrors.CodeDispatchExecFailed, msg)
	}

	out := res.Stdout
	if res.Stderr != "" {
		out += res.Stderr
	}
	return strings.TrimRight(out, "\n"), nil
}

// record appends to the persistent transcript. Persistence failures are
// logged but never surfaced; losing a transcript row must not break the
// terminal.
func (d *Dispatcher) record(tabID, command, output, errorCode string) {
	if d.transcript == nil {
		return
	}
	if err := d.transcript.Append(tabID, command, output, errorCode); err != nil {
		log.Printf("dispatch: transcript append failed: %v", err)
	}
}
