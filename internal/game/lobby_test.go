package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestLobby(t *testing.T, opts ...LobbyOption) (*Lobby, *harness, *fakeClock) {
	t.Helper()
	h := newHarness(t, nil, Timings{Compose: time.Hour, Vote: time.Hour, Grace: time.Hour})
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append([]LobbyOption{
		WithLobbyClock(clock.Now),
		WithThemes([]string{"벚꽃"}, func(th []string) string { return th[0] }),
	}, opts...)
	l := NewLobby(NewQueue(), NewMatcher(30*time.Second), h.ctrl, h.reg, NewGateway(h.tr, h.reg), opts...)
	return l, h, clock
}

func TestJoinPairsSameBracket(t *testing.T) {
	l, h, clock := newTestLobby(t)

	res, err := l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	if err != nil {
		t.Fatalf("alice should join: %v", err)
	}
	if res.SessionID != "" || res.Position != 1 || res.Status.Total != 1 {
		t.Fatalf("alice should be waiting alone, got %+v", res)
	}
	if h.tr.count("c-alice", "queue-joined") != 1 {
		t.Fatal("alice should get queue-joined")
	}

	clock.Advance(time.Second)
	res, err = l.Join(Participant{ID: "bob", Bracket: BracketGold}, "c-bob")
	if err != nil {
		t.Fatalf("bob should join: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("bob should be paired immediately")
	}
	if l.Status().Total != 0 {
		t.Fatalf("queue should be empty, has %d", l.Status().Total)
	}

	s, err := h.store.Get(res.SessionID)
	if err != nil {
		t.Fatalf("session should exist: %v", err)
	}
	if s.Theme != "벚꽃" || s.Mode != ModeRank {
		t.Fatalf("unexpected session %s/%s", s.Theme, s.Mode)
	}
	if s.Players[0].ID != "alice" || s.Players[1].ID != "bob" {
		t.Fatalf("expected alice vs bob, got %s vs %s", s.Players[0].ID, s.Players[1].ID)
	}
	if h.tr.count("c-alice", "match-found") != 1 || h.tr.count("c-bob", "match-found") != 1 {
		t.Fatal("both players should get match-found")
	}
	if h.tr.count("*", "queue-status") != 2 {
		t.Fatalf("each join should broadcast queue-status, got %d", h.tr.count("*", "queue-status"))
	}
}

func TestDisconnectRemovesQueuedParticipant(t *testing.T) {
	l, h, _ := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketSilver}, "c-alice")
	l.Join(Participant{ID: "carol", Bracket: BracketDiamond}, "c-carol")
	if l.Status().Total != 2 {
		t.Fatalf("expected 2 queued, got %d", l.Status().Total)
	}

	l.Disconnect("c-alice")

	st := l.Status()
	if st.Total != 1 || st.ByBracket[BracketSilver] != 0 {
		t.Fatalf("alice should be gone from the queue, got %+v", st)
	}
	payload, ok := h.tr.last("*", "queue-status")
	if !ok || payload.(QueueStatus).Total != 1 {
		t.Fatalf("broadcast status should show 1 queued, got %+v", payload)
	}
	if _, bound := h.reg.Conn("alice"); bound {
		t.Fatal("alice should be unbound")
	}

	// Unknown connections are ignored
	l.Disconnect("c-unknown")
	if l.Status().Total != 1 {
		t.Fatal("unknown disconnect must not change the queue")
	}
}

func TestLeaveQueue(t *testing.T) {
	l, h, _ := newTestLobby(t)
	l.Join(Participant{ID: "alice"}, "c-alice")

	if _, ok := l.Leave("alice"); !ok {
		t.Fatal("alice should leave")
	}
	if h.tr.count("c-alice", "queue-left") != 1 {
		t.Fatal("alice should get queue-left")
	}
	if _, ok := l.Leave("alice"); ok {
		t.Fatal("leaving twice should be a no-op")
	}
}

func TestJoinWhilePlayingIsRejected(t *testing.T) {
	l, h, _ := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	l.Join(Participant{ID: "bob", Bracket: BracketGold}, "c-bob")
	if h.store.Len() != 1 {
		t.Fatal("alice and bob should be playing")
	}

	_, err := l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	if !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("expected already in game, got %v", err)
	}
	if l.Status().Total != 0 {
		t.Fatal("rejected join must not queue")
	}
}

func TestJoinValidation(t *testing.T) {
	l, _, _ := newTestLobby(t)
	if _, err := l.Join(Participant{ID: " "}, "c1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing userId should be invalid, got %v", err)
	}
	if _, err := l.Join(Participant{ID: "x", Bracket: "wood"}, "c1"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("unknown rank should be invalid, got %v", err)
	}
	res, err := l.Join(Participant{ID: "x"}, "c1")
	if err != nil || res.Bracket != BracketBronze {
		t.Fatalf("empty rank should default to bronze, got %+v %v", res, err)
	}
}

func TestSweepAppliesFallback(t *testing.T) {
	l, h, clock := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	clock.Advance(time.Second)
	l.Join(Participant{ID: "bob", Bracket: BracketSilver}, "c-bob")

	if n := l.Sweep(); n != 0 {
		t.Fatalf("nobody has waited long enough, matched %d", n)
	}
	clock.Advance(30 * time.Second)
	if n := l.Sweep(); n != 1 {
		t.Fatalf("expected one fallback match, got %d", n)
	}
	if h.store.Len() != 1 || l.Status().Total != 0 {
		t.Fatal("alice and bob should be in a session")
	}
}

func TestJoinMatchesLongWaiterNextDoor(t *testing.T) {
	l, _, clock := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	clock.Advance(45 * time.Second)

	res, err := l.Join(Participant{ID: "bob", Bracket: BracketPlatinum}, "c-bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("bob should be paired with the long waiting alice")
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	l, h, clock := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketBronze}, "c-alice")
	l.Join(Participant{ID: "bob", Bracket: BracketSilver}, "c-bob")
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	h.tr.waitFor(t, "c-alice", "match-found", 1)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return after cancel")
	}
}

func TestStartAIBattle(t *testing.T) {
	src := func(_ context.Context, theme, difficulty string) Lines {
		if difficulty != "hard" {
			t.Errorf("expected hard difficulty, got %s", difficulty)
		}
		return Lines{theme + " 하나", "", "셋"}
	}
	opponent := func(d string) Participant { return Participant{Nickname: "AI 대가"} }
	l, h, _ := newTestLobby(t, WithAIPoems(src, opponent, time.Second))

	view, err := l.StartAIBattle(Participant{ID: "alice"}, "c-alice", "별하늘", "HARD")
	if err != nil {
		t.Fatalf("ai battle should start: %v", err)
	}
	if view.Mode != ModeAI || view.Theme != "별하늘" {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Players[1].ID != AIParticipantID || !view.Players[1].Bot || view.Players[1].Nickname != "AI 대가" {
		t.Fatalf("second slot should be the AI, got %+v", view.Players[1])
	}
	l.Wait()

	s, _ := h.store.Get(view.ID)
	v := s.View()
	if len(v.Submitted) != 1 || v.Submitted[0] != AIParticipantID {
		t.Fatalf("ai poem should be submitted, got %v", v.Submitted)
	}
	if _, err := h.ctrl.Submit(view.ID, "alice", poem("별", "하", "늘")); err != nil {
		t.Fatalf("alice should submit: %v", err)
	}
	if s.Phase() != PhaseVoting {
		t.Fatalf("both poems in, expected voting, got %s", s.Phase())
	}
	if h.tr.count("c-alice", "voting-start") != 1 {
		t.Fatal("alice should see voting-start")
	}

	if _, err := l.StartAIBattle(Participant{ID: "alice"}, "c-alice", "", ""); !errors.Is(err, ErrAlreadyInSession) {
		t.Fatalf("second battle while playing should be rejected, got %v", err)
	}
}

func TestAIBattleDisabledWithoutPoems(t *testing.T) {
	l, _, _ := newTestLobby(t)
	if _, err := l.StartAIBattle(Participant{ID: "alice"}, "c-alice", "꿈", "easy"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestResumeRebindsPlayer(t *testing.T) {
	l, h, _ := newTestLobby(t)
	l.Join(Participant{ID: "alice", Bracket: BracketGold}, "c-alice")
	res, _ := l.Join(Participant{ID: "bob", Bracket: BracketGold}, "c-bob")

	l.Disconnect("c-alice")
	view, ok := l.Resume("alice", "c-alice-2")
	if !ok || view.ID != res.SessionID {
		t.Fatalf("alice should resume the game, got %+v", view)
	}
	if _, err := h.ctrl.Submit(res.SessionID, "bob", poem("a", "b", "c")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if h.tr.count("c-alice-2", "poem-submitted") != 1 {
		t.Fatal("resumed connection should receive session events")
	}

	if _, ok := l.Resume("nobody", "c-x"); ok {
		t.Fatal("identity without a game has nothing to resume")
	}
}
