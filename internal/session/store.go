// Package session tracks per-tab state: the working directory, the
// bounded command history, and the serial task queue that keeps each
// tab's commands strictly ordered. A session outlives its WebSocket
// connection by a configurable TTL so a page reload resumes where it
// left off.
package session

import (
	"log"
	"sync"
	"time"
)

// taskQueueSize bounds the per-session task queue. Submitting to a full
// queue blocks the caller, which applies natural backpressure to a tab
// flooding commands.
const taskQueueSize = 64

// Session is the state of one terminal tab. The working directory and
// history are guarded by the session's own lock; command execution is
// serialized through the task queue so results arrive in submission
// order regardless of how long each command runs.
type Session struct {
	// ID is the tab identifier, stable across reconnects.
	ID string

	mu      sync.RWMutex
	dir     string
	history *ringBuffer
	dedupe  bool

	tasks chan func()
	quit  chan struct{}
	done  chan struct{}
}

func newSession(id, dir string, historyCap int, dedupe bool) *Session {
	s := &Session{
		ID:      id,
		dir:     dir,
		history: newRingBuffer(historyCap),
		dedupe:  dedupe,
		tasks:   make(chan func(), taskQueueSize),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.worker()
	return s
}

// worker drains the task queue one task at a time. A slow command delays
// only this session's queue, never other sessions or the reader that
// enqueued it.
func (s *Session) worker() {
	defer close(s.done)
	for {
		select {
		case task := <-s.tasks:
			task()
		case <-s.quit:
			// Drain what was already queued so accepted commands
			// still produce their results.
			for {
				select {
				case task := <-s.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues a task on the session's serial queue. Tasks run in
// submission order. Blocks when the queue is full. Returns false after
// the session has been stopped.
func (s *Session) Submit(task func()) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.tasks <- task:
		return true
	case <-s.quit:
		return false
	}
}

// stop shuts down the worker after draining queued tasks.
func (s *Session) stop() {
	close(s.quit)
	<-s.done
}

// Dir returns the session's current working directory.
func (s *Session) Dir() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dir
}

// SetDir commits a new working directory. The caller (the dispatcher)
// has already validated it through the navigator.
func (s *Session) SetDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = dir
}

// AppendHistory records a raw command line. With dedupe enabled an entry
// identical to the most recent one is dropped. Empty lines are never
// recorded.
func (s *Session) AppendHistory(raw string) {
	if raw == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dedupe {
		if last, ok := s.history.Last(); ok && last == raw {
			return
		}
	}
	s.history.Append(raw)
}

// History returns the command history oldest-first.
func (s *Session) History() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Snapshot()
}

// Store holds all live sessions. Sessions are created on first use of a
// tab ID and removed after the TTL elapses without a reconnect.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	timers   map[string]*time.Timer

	defaultDir string
	historyCap int
	dedupe     bool
	ttl        time.Duration
}

// NewStore creates a session store. New sessions start in defaultDir
// with a history bounded at historyCap entries.
func NewStore(defaultDir string, historyCap int, dedupe bool, ttl time.Duration) *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		timers:     make(map[string]*time.Timer),
		defaultDir: defaultDir,
		historyCap: historyCap,
		dedupe:     dedupe,
		ttl:        ttl,
	}
}

// GetOrCreate returns the session for id, creating it on first use.
// A pending removal for id is canceled, which is what makes reconnects
// within the TTL resume the old state.
func (s *Store) GetOrCreate(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}

	if sess, ok := s.sessions[id]; ok {
		return sess
	}

	sess := newSession(id, s.defaultDir, s.historyCap, s.dedupe)
	s.sessions[id] = sess
	log.Printf("session: created %s (dir=%s)", id, s.defaultDir)
	return sess
}

// Get returns the session for id, or nil when none exists.
func (s *Store) Get(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// ScheduleRemoval arms the TTL timer for id. Called when the tab's
// connection closes; if nothing reclaims the session before the timer
// fires, the session and its history are discarded.
func (s *Store) ScheduleRemoval(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return
	}
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	s.timers[id] = time.AfterFunc(s.ttl, func() {
		s.Remove(id)
	})
}

// CancelRemoval disarms a pending removal timer for id.
func (s *Store) CancelRemoval(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// Remove discards the session for id immediately, stopping its worker.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	if t, tok := s.timers[id]; tok {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	if ok {
		sess.stop()
		log.Printf("session: removed %s", id)
	}
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Close stops every session worker. Used at shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, id)
	}
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
}
