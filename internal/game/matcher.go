package game

import (
	"time"
)

// DefaultFallbackWait is how long an entry waits alone before it may be paired
// with an adjacent bracket.
const DefaultFallbackWait = 30 * time.Second

// Pair is two queue entries taken out of the queue to form a session.
type Pair [2]QueueEntry

// Matcher decides which queued entries form a session.
//
// Within a bracket the two oldest entries pair first. When the trigger bracket
// cannot pair on its own, its oldest entry that has waited at least
// FallbackWait is paired with the oldest entry of the bracket directly below
// or above. Only one step is searched in each direction. Both neighbours are
// one step away, so the older of their two heads wins rather than always the
// lower bracket; an exact tie goes to the lower one.
type Matcher struct {
	FallbackWait time.Duration
}

func NewMatcher(fallbackWait time.Duration) *Matcher {
	if fallbackWait <= 0 {
		fallbackWait = DefaultFallbackWait
	}
	return &Matcher{FallbackWait: fallbackWait}
}

// pick removes a pair from buckets. Each bucket must be ordered oldest first.
func (m *Matcher) pick(buckets map[Bracket][]QueueEntry, trigger Bracket, now time.Time) (Pair, bool) {
	own := buckets[trigger]
	if len(own) >= 2 {
		p := Pair{own[0], own[1]}
		buckets[trigger] = own[2:]
		return p, true
	}

	waiter := -1
	for i, e := range own {
		if now.Sub(e.JoinedAt) >= m.FallbackWait {
			waiter = i
			break
		}
	}
	if waiter < 0 {
		return Pair{}, false
	}

	var (
		from     Bracket
		opponent QueueEntry
		found    bool
	)
	for _, adj := range trigger.Adjacent() {
		entries := buckets[adj]
		if len(entries) == 0 {
			continue
		}
		if !found || entries[0].JoinedAt.Before(opponent.JoinedAt) {
			from, opponent, found = adj, entries[0], true
		}
	}
	if !found {
		return Pair{}, false
	}

	p := Pair{own[waiter], opponent}
	buckets[trigger] = append(own[:waiter:waiter], own[waiter+1:]...)
	buckets[from] = buckets[from][1:]
	return p, true
}
