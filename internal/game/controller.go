package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/storage"
	"github.com/rs/zerolog/log"
)

// Timings are the phase durations of a session.
type Timings struct {
	Compose time.Duration
	Vote    time.Duration
	Grace   time.Duration // finished sessions stay readable this long
}

func DefaultTimings() Timings {
	return Timings{Compose: 180 * time.Second, Vote: 30 * time.Second, Grace: 5 * time.Second}
}

// Exporter receives the result of every finished session.
type Exporter interface {
	Export(Result) error
}

type ControllerOption func(*Controller)

func WithExporter(e Exporter) ControllerOption {
	return func(c *Controller) {
		if e != nil {
			c.exporters = append(c.exporters, e)
		}
	}
}

func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

func WithMaxLineLength(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxLen = n
		}
	}
}

// WithPersistQueue sizes the persistence queue and bounds each write.
func WithPersistQueue(size int, timeout time.Duration) ControllerOption {
	return func(c *Controller) {
		c.persistSize, c.persistTimeout = size, timeout
	}
}

// Controller drives sessions through composing, voting and finished.
type Controller struct {
	store     *Store
	gw        *Gateway
	repo      storage.Repository
	timings   Timings
	exporters []Exporter
	now       func() time.Time
	maxLen    int

	persistSize    int
	persistTimeout time.Duration
	persist        *persister
}

func NewController(store *Store, gw *Gateway, repo storage.Repository, t Timings, opts ...ControllerOption) *Controller {
	def := DefaultTimings()
	if t.Compose <= 0 {
		t.Compose = def.Compose
	}
	if t.Vote <= 0 {
		t.Vote = def.Vote
	}
	if t.Grace < 0 {
		t.Grace = def.Grace
	}
	if repo == nil {
		repo = storage.Nop{}
	}
	c := &Controller{
		store:   store,
		gw:      gw,
		repo:    repo,
		timings: t,
		now:     time.Now,
		maxLen:  DefaultMaxLineLength,
	}
	for _, o := range opts {
		o(c)
	}
	c.persist = newPersister(c.persistSize, c.persistTimeout)
	return c
}

func (c *Controller) Store() *Store { return c.store }

func (c *Controller) Timings() Timings { return c.timings }

func (c *Controller) MaxLineLength() int { return c.maxLen }

// Close stops all session timers and flushes pending writes.
func (c *Controller) Close() {
	c.store.Close()
	c.persist.Close()
}

// Start registers a freshly created session, arms the composing timer and
// announces the match to both participants.
func (c *Controller) Start(s *Session) {
	c.store.Add(s)

	s.mu.Lock()
	c.scheduleLocked(s, PhaseComposing, c.timings.Compose)
	limit := int(c.timings.Compose / time.Second)
	for _, p := range s.Players {
		c.gw.ToParticipant(p, "match-found", map[string]any{
			"gameId":    s.ID,
			"opponent":  s.Opponent(p.ID),
			"theme":     s.Theme,
			"mode":      s.Mode,
			"timeLimit": limit,
		})
	}
	c.gw.ToSession(s, "game-start", map[string]any{
		"gameId":    s.ID,
		"theme":     s.Theme,
		"timeLimit": limit,
		"startTime": s.CreatedAt.UnixMilli(),
	})
	s.mu.Unlock()

	log.Info().Str("gameId", s.ID).Str("mode", string(s.Mode)).Str("theme", s.Theme).
		Str("p1", s.Players[0].ID).Str("p2", s.Players[1].ID).Msg("game started")

	rec := storage.SessionRecord{
		ID:        s.ID,
		Mode:      string(s.Mode),
		Theme:     s.Theme,
		PlayerIDs: [2]string{s.Players[0].ID, s.Players[1].ID},
		Status:    storage.StatusActive,
		TimeLimit: c.timings.Compose,
		CreatedAt: s.CreatedAt,
	}
	c.persist.dispatch("create_session", s.ID, func(ctx context.Context) error {
		if _, err := c.repo.CreateSession(ctx, rec); err != nil && !errors.Is(err, storage.ErrAlreadyExists) {
			return err
		}
		s.markRecorded()
		return nil
	})
}

// Submit stores a participant's poem. The second submission of a session
// moves it straight to voting.
func (c *Controller) Submit(sessionID, participantID string, lines Lines) (Submission, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(participantID) == "" {
		return Submission{}, fmt.Errorf("%w: gameId and userId are required", ErrInvalidInput)
	}
	s, err := c.store.Get(sessionID)
	if err != nil {
		return Submission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, err := s.submitLocked(participantID, lines, c.maxLen, c.now())
	if err != nil {
		return Submission{}, err
	}
	log.Info().Str("gameId", s.ID).Str("userId", participantID).Str("poemId", sub.ID).Msg("poem submitted")
	c.gw.ToSession(s, "poem-submitted", map[string]any{
		"playerId":  participantID,
		"timestamp": sub.CreatedAt.UnixMilli(),
	})

	rec := storage.SubmissionRecord{
		ID:            sub.ID,
		SessionID:     s.ID,
		ParticipantID: participantID,
		Theme:         s.Theme,
		Lines:         sub.Lines,
		CreatedAt:     sub.CreatedAt,
	}
	c.persist.dispatch("append_submission", s.ID, func(ctx context.Context) error {
		if !s.isRecorded() {
			return nil
		}
		_, err := c.repo.AppendSubmission(ctx, rec)
		return err
	})

	if s.bothSubmittedLocked() {
		c.enterVotingLocked(s)
	}
	return sub, nil
}

// Vote counts one vote. Voters are anonymous identities and need not be
// players of the session.
func (c *Controller) Vote(sessionID, voterID, submissionID string) (Vote, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(voterID) == "" || strings.TrimSpace(submissionID) == "" {
		return Vote{}, fmt.Errorf("%w: gameId, poemId and voterId are required", ErrInvalidInput)
	}
	s, err := c.store.Get(sessionID)
	if err != nil {
		return Vote{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.voteLocked(voterID, submissionID, c.now())
	if err != nil {
		return Vote{}, err
	}
	log.Debug().Str("gameId", s.ID).Str("poemId", submissionID).Msg("vote counted")
	c.gw.ToSession(s, "vote-counted", map[string]any{
		"poemId":    submissionID,
		"timestamp": v.CreatedAt.UnixMilli(),
	})

	rec := storage.VoteRecord{SessionID: s.ID, VoterID: voterID, SubmissionID: submissionID, CreatedAt: v.CreatedAt}
	c.persist.dispatch("append_vote", s.ID, func(ctx context.Context) error {
		if !s.isRecorded() {
			return nil
		}
		return c.repo.AppendVote(ctx, rec)
	})
	return v, nil
}

// scheduleLocked replaces the session's phase timer. The callback only acts
// if the session is still in expect and no later timer was armed.
func (c *Controller) scheduleLocked(s *Session, expect Phase, d time.Duration) {
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timerGen++
	gen := s.timerGen
	s.deadline = c.now().Add(d).UTC()
	s.timer = time.AfterFunc(d, func() { c.expire(s, expect, gen) })
}

func (c *Controller) expire(s *Session, expect Phase, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timerGen != gen || s.phase != expect {
		return
	}
	s.timer = nil
	switch expect {
	case PhaseComposing:
		log.Info().Str("gameId", s.ID).Int("poems", len(s.submissions)).Msg("compose time over")
		c.enterVotingLocked(s)
	case PhaseVoting:
		c.finishLocked(s)
	}
}

func (c *Controller) enterVotingLocked(s *Session) {
	if s.phase != PhaseComposing {
		return
	}
	s.phase = PhaseVoting
	c.scheduleLocked(s, PhaseVoting, c.timings.Vote)

	poems := make([]map[string]any, 0, len(s.submissions))
	for _, sub := range s.submissions {
		poems = append(poems, map[string]any{
			"id":    sub.ID,
			"lines": sub.Lines,
			"line1": sub.Lines[0],
			"line2": sub.Lines[1],
			"line3": sub.Lines[2],
		})
	}
	log.Info().Str("gameId", s.ID).Int("poems", len(poems)).Msg("voting started")
	c.gw.ToSession(s, "voting-start", map[string]any{
		"gameId":    s.ID,
		"poems":     poems,
		"timeLimit": int(c.timings.Vote / time.Second),
	})
}

func (c *Controller) finishLocked(s *Session) {
	if s.phase == PhaseFinished {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
	s.phase = PhaseFinished
	s.deadline = time.Time{}
	s.endedAt = c.now().UTC()
	s.winner = DecideWinner(s.submissionsLocked())
	res := s.resultLocked()

	ev := log.Info().Str("gameId", s.ID).Int("votes", res.VoteCount)
	if res.Winner != nil {
		ev = ev.Str("winner", res.Winner.ParticipantID)
	}
	ev.Msg("game finished")
	c.gw.ToSession(s, "game-end", res)

	winnerID := ""
	if res.Winner != nil {
		winnerID = res.Winner.ParticipantID
	}
	c.persist.dispatch("finalize_session", s.ID, func(ctx context.Context) error {
		if !s.isRecorded() {
			return nil
		}
		return c.repo.FinalizeSession(ctx, res.SessionID, winnerID, res.EndedAt)
	})
	for _, e := range c.exporters {
		e := e
		c.persist.dispatch("export", s.ID, func(context.Context) error { return e.Export(res) })
	}

	id := s.ID
	s.removeTimer = time.AfterFunc(c.timings.Grace, func() {
		if c.store.Remove(id) {
			log.Debug().Str("gameId", id).Msg("game removed")
		}
	})
}
