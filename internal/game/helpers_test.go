package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/storage"
)

type sentEvent struct {
	conn    string // "*" for broadcasts
	event   string
	payload any
}

// recordingTransport keeps every emitted event for inspection.
type recordingTransport struct {
	mu   sync.Mutex
	sent []sentEvent
	fail bool
}

func (r *recordingTransport) Emit(connID, event string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentEvent{conn: connID, event: event, payload: payload})
	if r.fail {
		return errors.New("socket closed")
	}
	return nil
}

func (r *recordingTransport) EmitAll(event string, payload any) error {
	return r.Emit("*", event, payload)
}

func (r *recordingTransport) count(conn, event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.event == event && (conn == "" || s.conn == conn) {
			n++
		}
	}
	return n
}

func (r *recordingTransport) last(conn, event string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.sent) - 1; i >= 0; i-- {
		s := r.sent[i]
		if s.event == event && (conn == "" || s.conn == conn) {
			return s.payload, true
		}
	}
	return nil, false
}

// waitFor polls until conn has received event n times.
func (r *recordingTransport) waitFor(t *testing.T, conn, event string, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.count(conn, event) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d %q event(s) on %q, got %d", n, event, conn, r.count(conn, event))
}

// failingRepo fails every call.
type failingRepo struct {
	mu    sync.Mutex
	calls int
}

func (f *failingRepo) fail() error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return errors.New("database is down")
}

func (f *failingRepo) CreateSession(context.Context, storage.SessionRecord) (string, error) {
	return "", f.fail()
}

func (f *failingRepo) AppendSubmission(context.Context, storage.SubmissionRecord) (string, error) {
	return "", f.fail()
}

func (f *failingRepo) AppendVote(context.Context, storage.VoteRecord) error { return f.fail() }

func (f *failingRepo) FinalizeSession(context.Context, string, string, time.Time) error {
	return f.fail()
}

func (f *failingRepo) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memRepo records what reached the repository.
type memRepo struct {
	mu        sync.Mutex
	sessions  map[string]storage.SessionRecord
	poems     []storage.SubmissionRecord
	votes     []storage.VoteRecord
	finalized map[string]string
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: map[string]storage.SessionRecord{}, finalized: map[string]string{}}
}

func (m *memRepo) CreateSession(_ context.Context, rec storage.SessionRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return rec.ID, nil
}

func (m *memRepo) AppendSubmission(_ context.Context, rec storage.SubmissionRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.poems = append(m.poems, rec)
	return rec.ID, nil
}

func (m *memRepo) AppendVote(_ context.Context, rec storage.VoteRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.votes = append(m.votes, rec)
	return nil
}

func (m *memRepo) FinalizeSession(_ context.Context, id, winnerID string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalized[id] = winnerID
	return nil
}

type harness struct {
	tr    *recordingTransport
	reg   *Registry
	store *Store
	ctrl  *Controller
}

func newHarness(t *testing.T, repo storage.Repository, timings Timings, opts ...ControllerOption) *harness {
	t.Helper()
	tr := &recordingTransport{}
	reg := NewRegistry()
	store := NewStore()
	ctrl := NewController(store, NewGateway(tr, reg), repo, timings, opts...)
	t.Cleanup(ctrl.Close)
	return &harness{tr: tr, reg: reg, store: store, ctrl: ctrl}
}

// startDuel binds alice and bob and starts a rank session between them.
func (h *harness) startDuel() *Session {
	h.reg.Bind("alice", "c-alice")
	h.reg.Bind("bob", "c-bob")
	s := newSession("g1", ModeRank, "벚꽃", [2]Participant{
		{ID: "alice", Bracket: BracketGold},
		{ID: "bob", Bracket: BracketGold},
	}, time.Now())
	h.ctrl.Start(s)
	return s
}

func poem(a, b, c string) Lines { return Lines{a, b, c} }

func waitPhase(t *testing.T, s *Session, want Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Phase() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected phase %s, still %s", want, s.Phase())
}
