package game

import (
	"fmt"
	"testing"
	"time"
)

func TestMatchPairsOldestTwoInBracket(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()

	// Enqueue out of order; pairs must still follow join time.
	order := []int{3, 0, 5, 1, 4, 2}
	for _, i := range order {
		q.Enqueue(entry(fmt.Sprintf("p%d", i), BracketSilver, t0.Add(time.Duration(i)*time.Second)))
	}

	for round := 0; round < 3; round++ {
		p, ok := q.Match(m, BracketSilver, t0.Add(10*time.Second))
		if !ok {
			t.Fatalf("round %d: expected a pair", round)
		}
		want0, want1 := fmt.Sprintf("p%d", 2*round), fmt.Sprintf("p%d", 2*round+1)
		if p[0].ID != want0 || p[1].ID != want1 {
			t.Fatalf("round %d: expected %s vs %s, got %s vs %s", round, want0, want1, p[0].ID, p[1].ID)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, has %d", q.Len())
	}
	if _, ok := q.Match(m, BracketSilver, t0); ok {
		t.Fatal("empty queue should not match")
	}
}

func TestMatchSingleEntryWaitsForFallback(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()
	q.Enqueue(entry("alice", BracketGold, t0))
	q.Enqueue(entry("bob", BracketSilver, t0))

	if _, ok := q.Match(m, BracketGold, t0.Add(29*time.Second)); ok {
		t.Fatal("should not fall back before the wait threshold")
	}
	if q.Len() != 2 {
		t.Fatalf("queues should be unchanged, have %d", q.Len())
	}

	p, ok := q.Match(m, BracketGold, t0.Add(30*time.Second))
	if !ok {
		t.Fatal("expected fallback pair after 30s")
	}
	if p[0].ID != "alice" || p[1].ID != "bob" {
		t.Fatalf("expected alice vs bob, got %s vs %s", p[0].ID, p[1].ID)
	}
	if q.Len() != 0 {
		t.Fatalf("both entries should leave the queue, %d left", q.Len())
	}
}

func TestFallbackTakesOldestAdjacentEntry(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()
	q.Enqueue(entry("waiter", BracketGold, t0))
	q.Enqueue(entry("silver", BracketSilver, t0.Add(10*time.Second)))
	q.Enqueue(entry("platinum", BracketPlatinum, t0.Add(5*time.Second)))

	p, ok := q.Match(m, BracketGold, t0.Add(31*time.Second))
	if !ok {
		t.Fatal("expected a fallback pair")
	}
	if p[1].ID != "platinum" {
		t.Fatalf("expected the older platinum entry, got %s", p[1].ID)
	}
	if _, queued := q.Contains("silver"); !queued {
		t.Fatal("silver entry should still be waiting")
	}
}

func TestFallbackTiePrefersLowerBracket(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()
	q.Enqueue(entry("waiter", BracketGold, t0))
	q.Enqueue(entry("platinum", BracketPlatinum, t0.Add(time.Second)))
	q.Enqueue(entry("silver", BracketSilver, t0.Add(time.Second)))

	p, ok := q.Match(m, BracketGold, t0.Add(time.Minute))
	if !ok || p[1].ID != "silver" {
		t.Fatalf("expected silver on equal wait, got %+v (ok=%v)", p[1].ID, ok)
	}
}

func TestFallbackIsSingleStep(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()
	q.Enqueue(entry("bronze", BracketBronze, t0))
	q.Enqueue(entry("gold", BracketGold, t0))

	if _, ok := q.Match(m, BracketBronze, t0.Add(time.Hour)); ok {
		t.Fatal("bronze must not reach gold, it is two steps away")
	}
	if q.Len() != 2 {
		t.Fatalf("queues should be unchanged, have %d", q.Len())
	}
}

func TestFallbackWithNoAdjacentEntryLeavesWaiting(t *testing.T) {
	q := NewQueue()
	m := NewMatcher(30 * time.Second)
	t0 := time.Now()
	q.Enqueue(entry("alone", BracketDiamond, t0))

	if _, ok := q.Match(m, BracketDiamond, t0.Add(time.Hour)); ok {
		t.Fatal("nobody to pair with")
	}
	if b, ok := q.Contains("alone"); !ok || b != BracketDiamond {
		t.Fatal("entry should keep waiting in diamond")
	}
}

func TestNewMatcherDefaultsWait(t *testing.T) {
	if m := NewMatcher(0); m.FallbackWait != DefaultFallbackWait {
		t.Fatalf("expected default wait %s, got %s", DefaultFallbackWait, m.FallbackWait)
	}
}
