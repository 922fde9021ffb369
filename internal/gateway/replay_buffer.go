package gateway

import "sync"

type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel, oldest
// first, so clients can backfill sequence gaps. Safe for concurrent use.
type ReplayBuffer struct {
	mu       sync.RWMutex
	entries  []replayEntry
	capacity int
}

// NewReplayBuffer creates a replay buffer holding up to capacity entries.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = replayCapacity
	}
	return &ReplayBuffer{entries: make([]replayEntry, 0, capacity), capacity: capacity}
}

// Push appends an envelope, evicting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	defer rb.mu.Unlock()
	if len(rb.entries) == rb.capacity {
		copy(rb.entries, rb.entries[1:])
		rb.entries = rb.entries[:len(rb.entries)-1]
	}
	rb.entries = append(rb.entries, replayEntry{Seq: seq, Data: cp})
}

// Range returns entries with seq in [fromSeq, toSeq], in seq order.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out []replayEntry
	for _, e := range rb.entries {
		if e.Seq >= fromSeq && e.Seq <= toSeq {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return len(rb.entries)
}
