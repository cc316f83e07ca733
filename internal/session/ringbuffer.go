package session

// ringBuffer is a fixed-capacity FIFO of history entries. When full,
// appending evicts the oldest entry. Not safe for concurrent use; the
// owning Session serializes access.
type ringBuffer struct {
	entries []string
	head    int // index of the oldest entry
	count   int
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &ringBuffer{entries: make([]string, capacity)}
}

// Append adds an entry, evicting the oldest when at capacity.
func (r *ringBuffer) Append(entry string) {
	if r.count < len(r.entries) {
		r.entries[(r.head+r.count)%len(r.entries)] = entry
		r.count++
		return
	}
	r.entries[r.head] = entry
	r.head = (r.head + 1) % len(r.entries)
}

// Last returns the most recently appended entry and whether one exists.
func (r *ringBuffer) Last() (string, bool) {
	if r.count == 0 {
		return "", false
	}
	return r.entries[(r.head+r.count-1)%len(r.entries)], true
}

// Snapshot returns the entries oldest-first as a fresh slice.
func (r *ringBuffer) Snapshot() []string {
	out := make([]string, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.entries[(r.head+i)%len(r.entries)]
	}
	return out
}

// Len returns the number of stored entries.
func (r *ringBuffer) Len() int {
	return r.count
}
