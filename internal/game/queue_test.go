package game

import (
	"fmt"
	"testing"
	"time"
)

func entry(id string, b Bracket, at time.Time) QueueEntry {
	return QueueEntry{Participant: Participant{ID: id, Bracket: b}, ConnID: "c-" + id, JoinedAt: at}
}

func TestEnqueueKeepsIdentityInOneBracket(t *testing.T) {
	q := NewQueue()
	t0 := time.Now()

	q.Enqueue(entry("alice", BracketBronze, t0))
	q.Enqueue(entry("alice", BracketGold, t0.Add(time.Second)))

	b, ok := q.Contains("alice")
	if !ok || b != BracketGold {
		t.Fatalf("expected alice in gold, got %q (queued=%v)", b, ok)
	}
	st := q.Snapshot()
	if st.Total != 1 {
		t.Fatalf("expected total 1, got %d", st.Total)
	}
	if st.ByBracket[BracketBronze] != 0 || st.ByBracket[BracketGold] != 1 {
		t.Fatalf("unexpected counts %v", st.ByBracket)
	}
}

func TestJoinLeaveSequencesNeverDuplicate(t *testing.T) {
	q := NewQueue()
	t0 := time.Now()
	ids := []string{"a", "b", "c"}
	for i := 0; i < 60; i++ {
		id := ids[i%len(ids)]
		if i%4 == 3 {
			q.Dequeue(id)
		} else {
			q.Enqueue(entry(id, Brackets[i%len(Brackets)], t0.Add(time.Duration(i)*time.Millisecond)))
		}

		seen := map[string]int{}
		for _, b := range Brackets {
			for _, e := range q.Entries(b) {
				seen[e.ID]++
			}
		}
		for id, n := range seen {
			if n > 1 {
				t.Fatalf("step %d: %s queued %d times", i, id, n)
			}
		}
		if len(seen) != q.Len() {
			t.Fatalf("step %d: index has %d entries, buckets %d", i, q.Len(), len(seen))
		}
	}
}

func TestDequeueAbsentIsNoop(t *testing.T) {
	q := NewQueue()
	q.Enqueue(entry("alice", BracketSilver, time.Now()))

	if _, ok := q.Dequeue("nobody"); ok {
		t.Fatal("dequeue of unknown identity should report false")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 queued, got %d", q.Len())
	}
	if _, ok := q.Dequeue("alice"); !ok {
		t.Fatal("alice should be dequeued")
	}
	if _, ok := q.Dequeue("alice"); ok {
		t.Fatal("second dequeue should be a no-op")
	}
}

func TestEnqueueOrdersByJoinTime(t *testing.T) {
	q := NewQueue()
	t0 := time.Now()
	q.Enqueue(entry("late", BracketGold, t0.Add(2*time.Second)))
	q.Enqueue(entry("early", BracketGold, t0))
	q.Enqueue(entry("middle", BracketGold, t0.Add(time.Second)))

	got := q.Entries(BracketGold)
	want := []string{"early", "middle", "late"}
	for i, e := range got {
		if e.ID != want[i] {
			t.Fatalf("position %d: expected %s, got %s", i, want[i], e.ID)
		}
	}
	if p := q.Position("late"); p != 3 {
		t.Fatalf("expected late at position 3, got %d", p)
	}
}

func TestSnapshotCountsEveryBracket(t *testing.T) {
	q := NewQueue()
	t0 := time.Now()
	for i, b := range Brackets {
		for j := 0; j <= i; j++ {
			q.Enqueue(entry(fmt.Sprintf("%s-%d", b, j), b, t0))
		}
	}
	st := q.Snapshot()
	if st.Total != 15 {
		t.Fatalf("expected 15 queued, got %d", st.Total)
	}
	for i, b := range Brackets {
		if st.ByBracket[b] != i+1 {
			t.Fatalf("expected %d in %s, got %d", i+1, b, st.ByBracket[b])
		}
	}
}

func TestParseBracket(t *testing.T) {
	if b, err := ParseBracket(""); err != nil || b != BracketBronze {
		t.Fatalf("empty rank should default to bronze, got %q %v", b, err)
	}
	if b, err := ParseBracket(" Platinum "); err != nil || b != BracketPlatinum {
		t.Fatalf("expected platinum, got %q %v", b, err)
	}
	if _, err := ParseBracket("mythic"); ReasonCode(err) != "invalid_input" {
		t.Fatalf("unknown rank should be invalid input, got %v", err)
	}
	if adj := BracketBronze.Adjacent(); len(adj) != 1 || adj[0] != BracketSilver {
		t.Fatalf("bronze should only neighbour silver, got %v", adj)
	}
	if adj := BracketGold.Adjacent(); len(adj) != 2 || adj[0] != BracketSilver || adj[1] != BracketPlatinum {
		t.Fatalf("gold neighbours should be silver, platinum; got %v", adj)
	}
}
