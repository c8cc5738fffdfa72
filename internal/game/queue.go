package game

import (
	"slices"
	"sync"
	"time"
)

// Queue holds one FIFO queue per bracket. An identity is in at most one
// bracket at a time.
type Queue struct {
	mu      sync.Mutex
	buckets map[Bracket][]QueueEntry
	index   map[string]Bracket // identity -> bracket holding it
}

func NewQueue() *Queue {
	q := &Queue{
		buckets: make(map[Bracket][]QueueEntry, len(Brackets)),
		index:   make(map[string]Bracket),
	}
	for _, b := range Brackets {
		q.buckets[b] = nil
	}
	return q
}

// Enqueue drops any existing entry for the identity and inserts e into its
// bracket, ordered by JoinedAt. Entries with equal timestamps keep arrival order.
func (q *Queue) Enqueue(e QueueEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(e.ID)
	b := q.buckets[e.Bracket]
	i, _ := slices.BinarySearchFunc(b, e, func(x, target QueueEntry) int {
		if x.JoinedAt.After(target.JoinedAt) {
			return 1
		}
		return -1
	})
	q.buckets[e.Bracket] = slices.Insert(b, i, e)
	q.index[e.ID] = e.Bracket
}

// Dequeue removes the identity from whichever bracket holds it.
func (q *Queue) Dequeue(id string) (QueueEntry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue) removeLocked(id string) (QueueEntry, bool) {
	b, ok := q.index[id]
	if !ok {
		return QueueEntry{}, false
	}
	delete(q.index, id)
	entries := q.buckets[b]
	for i, e := range entries {
		if e.ID == id {
			q.buckets[b] = slices.Delete(entries, i, i+1)
			return e, true
		}
	}
	return QueueEntry{}, false
}

// Contains reports whether the identity is queued, and where.
func (q *Queue) Contains(id string) (Bracket, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.index[id]
	return b, ok
}

// Position returns the 1-based position of the identity within its bracket.
func (q *Queue) Position(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	b, ok := q.index[id]
	if !ok {
		return 0
	}
	for i, e := range q.buckets[b] {
		if e.ID == id {
			return i + 1
		}
	}
	return 0
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.index)
}

// Snapshot returns per-bracket counts taken under a single lock.
func (q *Queue) Snapshot() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	st := QueueStatus{ByBracket: make(map[Bracket]int, len(Brackets))}
	for _, b := range Brackets {
		n := len(q.buckets[b])
		st.ByBracket[b] = n
		st.Total += n
	}
	return st
}

// Entries returns a copy of one bracket's queue, oldest first.
func (q *Queue) Entries(b Bracket) []QueueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.buckets[b])
}

// Match runs the matcher against the trigger bracket and removes the paired
// entries from the queue.
func (q *Queue) Match(m *Matcher, trigger Bracket, now time.Time) (Pair, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	p, ok := m.pick(q.buckets, trigger, now)
	if !ok {
		return Pair{}, false
	}
	delete(q.index, p[0].ID)
	delete(q.index, p[1].ID)
	return p, true
}
