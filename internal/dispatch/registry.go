package dispatch

import (
	"fmt"
	"strings"

	"github.com/tabterm/host/internal/resolve"
	"github.com/tabterm/host/internal/session"
)

// buildRegistry maps every vocabulary name to its handler. The map is
// closed: a name in resolve.Vocabulary without a handler here is a
// programming error, caught by a registry test rather than a runtime
// panic.
func buildRegistry() map[string]handler {
	return map[string]handler{
		"ls":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.List(s.Dir(), args) },
		"mkdir": func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.MakeDir(s.Dir(), args) },
		"rmdir": func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.RemoveDir(s.Dir(), args) },
		"rm":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.Remove(s.Dir(), args) },
		"cp":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.Copy(s.Dir(), args) },
		"mv":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.Move(s.Dir(), args) },
		"cat":   func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.Cat(s.Dir(), args) },
		"touch": func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.nav.Touch(s.Dir(), args) },

		"cd":  handleCd,
		"pwd": func(d *Dispatcher, s *session.Session, args []string) (string, error) { return s.Dir(), nil },

		"echo":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return strings.Join(args, " "), nil },
		"clear":   handleClear,
		"history": handleHistory,
		"help":    handleHelp,

		"cpu":       func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.cpuInfo() },
		"memory":    func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.memoryInfo() },
		"processes": func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.processList() },
		"top":       func(d *Dispatcher, s *session.Session, args []string) (string, error) { return d.topSummary() },
	}
}

// handleCd is the one built-in that mutates session state. The new
// directory is committed only after the navigator validates it. The
// client gets a directory_change event for its prompt state in addition
// to the textual confirmation.
func handleCd(d *Dispatcher, s *session.Session, args []string) (string, error) {
	dir, err := d.nav.ChangeDir(s.Dir(), args)
	if err != nil {
		return "", err
	}
	s.SetDir(dir)
	d.sink.DirectoryChange(s.ID, dir)
	return "Changed directory to: " + dir, nil
}

func handleClear(d *Dispatcher, s *session.Session, args []string) (string, error) {
	d.sink.Clear(s.ID)
	return "", nil
}

func handleHistory(d *Dispatcher, s *session.Session, args []string) (string, error) {
	entries := s.History()
	if len(entries) == 0 {
		return "(no history)", nil
	}
	var b strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&b, "%4d  %s\n", i+1, e)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func handleHelp(d *Dispatcher, s *session.Session, args []string) (string, error) {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, name := range resolve.VocabularyNames() {
		fmt.Fprintf(&b, "  %-10s %s\n", name, resolve.Vocabulary[name])
	}
	b.WriteString("\nPrefix input with '!' to use natural language, e.g. !create folder logs")
	return b.String(), nil
}
