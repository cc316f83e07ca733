package session

import (
	"sync"
	"testing"
	"time"
)

func newTestStore() *Store {
	return NewStore("/work", 5, true, 50*time.Millisecond)
}

func TestGetOrCreate(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	a := s.GetOrCreate("tab-1")
	if a == nil {
		t.Fatal("GetOrCreate returned nil")
	}
	if a.Dir() != "/work" {
		t.Errorf("Dir() = %q, want %q", a.Dir(), "/work")
	}

	b := s.GetOrCreate("tab-1")
	if a != b {
		t.Error("GetOrCreate returned a different session for the same id")
	}

	c := s.GetOrCreate("tab-2")
	if c == a {
		t.Error("distinct tabs share a session")
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestSessionIsolation(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	a := s.GetOrCreate("tab-1")
	b := s.GetOrCreate("tab-2")

	a.SetDir("/work/a")
	a.AppendHistory("ls")

	if b.Dir() != "/work" {
		t.Errorf("tab-2 dir = %q, want untouched %q", b.Dir(), "/work")
	}
	if len(b.History()) != 0 {
		t.Errorf("tab-2 history = %v, want empty", b.History())
	}
}

func TestHistoryCapEviction(t *testing.T) {
	s := NewStore("/work", 3, false, time.Minute)
	defer s.Close()

	sess := s.GetOrCreate("tab-1")
	for _, cmd := range []string{"one", "two", "three", "four"} {
		sess.AppendHistory(cmd)
	}

	got := sess.History()
	want := []string{"two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("History() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHistoryDedupe(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	sess := s.GetOrCreate("tab-1")
	sess.AppendHistory("ls")
	sess.AppendHistory("ls")
	sess.AppendHistory("pwd")
	sess.AppendHistory("ls")

	got := sess.History()
	want := []string{"ls", "pwd", "ls"}
	if len(got) != len(want) {
		t.Fatalf("History() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("History()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHistoryIgnoresEmpty(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	sess := s.GetOrCreate("tab-1")
	sess.AppendHistory("")
	if len(sess.History()) != 0 {
		t.Errorf("History() = %v, want empty", sess.History())
	}
}

func TestSubmitRunsTasksInOrder(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	sess := s.GetOrCreate("tab-1")

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		i := i
		wg.Add(1)
		ok := sess.Submit(func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
		if !ok {
			t.Fatalf("Submit(%d) = false", i)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("tasks ran out of order: %v", order)
		}
	}
}

func TestSubmitAfterStop(t *testing.T) {
	s := newTestStore()
	sess := s.GetOrCreate("tab-1")
	s.Remove("tab-1")

	if sess.Submit(func() {}) {
		t.Error("Submit after removal = true, want false")
	}
}

func TestScheduledRemovalFires(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	s.GetOrCreate("tab-1")
	s.ScheduleRemoval("tab-1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Get("tab-1") == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("session survived past its TTL")
}

func TestReconnectCancelsRemoval(t *testing.T) {
	s := newTestStore()
	defer s.Close()

	sess := s.GetOrCreate("tab-1")
	sess.AppendHistory("ls")
	s.ScheduleRemoval("tab-1")

	// Reconnect before the TTL fires.
	again := s.GetOrCreate("tab-1")
	if again != sess {
		t.Fatal("reconnect created a fresh session")
	}

	time.Sleep(120 * time.Millisecond)
	if s.Get("tab-1") == nil {
		t.Error("session was removed despite reconnect")
	}
	if len(again.History()) != 1 {
		t.Errorf("history lost across reconnect: %v", again.History())
	}
}

func TestRingBufferWraps(t *testing.T) {
	r := newRingBuffer(2)
	r.Append("a")
	r.Append("b")
	r.Append("c")

	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	got := r.Snapshot()
	if got[0] != "b" || got[1] != "c" {
		t.Errorf("Snapshot() = %v, want [b c]", got)
	}
	if last, ok := r.Last(); !ok || last != "c" {
		t.Errorf("Last() = %q, %v", last, ok)
	}
}
