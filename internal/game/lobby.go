package game

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AIParticipantID is the identity of the AI slot in an AI battle.
const AIParticipantID = "ai"

// DefaultThemes are the three-syllable themes a rank match draws from.
var DefaultThemes = []string{
	"첫눈", "지하철", "야근", "비오는날", "벚꽃", "여름밤", "단풍", "겨울바람",
	"그리움", "설렘", "아쉬움", "기쁨", "어머니", "친구", "꿈", "희망",
}

// ThemePicker chooses the theme of a new session.
type ThemePicker func(themes []string) string

func RandomTheme(themes []string) string {
	if len(themes) == 0 {
		return ""
	}
	return themes[rand.Intn(len(themes))]
}

// PoemSource writes the AI side of a battle. It must always return something;
// empty lines are filled in before submission.
type PoemSource func(ctx context.Context, theme, difficulty string) Lines

// AIOpponent names the AI slot for a difficulty.
type AIOpponent func(difficulty string) Participant

type LobbyOption func(*Lobby)

func WithThemes(themes []string, pick ThemePicker) LobbyOption {
	return func(l *Lobby) {
		if len(themes) > 0 {
			l.themes = themes
		}
		if pick != nil {
			l.pick = pick
		}
	}
}

func WithLobbyClock(now func() time.Time) LobbyOption {
	return func(l *Lobby) {
		if now != nil {
			l.now = now
		}
	}
}

// WithAIPoems enables AI battles.
func WithAIPoems(src PoemSource, opponent AIOpponent, timeout time.Duration) LobbyOption {
	return func(l *Lobby) {
		l.poems = src
		if opponent != nil {
			l.opponent = opponent
		}
		if timeout > 0 {
			l.aiTimeout = timeout
		}
	}
}

// JoinResult is what a participant learns when entering the queue.
type JoinResult struct {
	Status    QueueStatus `json:"queueStatus"`
	Position  int         `json:"position"`
	Bracket   Bracket     `json:"rank"`
	SessionID string      `json:"gameId,omitempty"` // set when the join paired immediately
}

// Lobby serializes queue membership, matching and session creation so a
// participant is never paired twice or queued while playing.
type Lobby struct {
	mu      sync.Mutex
	queue   *Queue
	matcher *Matcher
	ctrl    *Controller
	reg     *Registry
	gw      *Gateway

	themes    []string
	pick      ThemePicker
	now       func() time.Time
	poems     PoemSource
	opponent  AIOpponent
	aiTimeout time.Duration

	wg sync.WaitGroup
}

func NewLobby(q *Queue, m *Matcher, ctrl *Controller, reg *Registry, gw *Gateway, opts ...LobbyOption) *Lobby {
	l := &Lobby{
		queue:     q,
		matcher:   m,
		ctrl:      ctrl,
		reg:       reg,
		gw:        gw,
		themes:    DefaultThemes,
		pick:      RandomTheme,
		now:       time.Now,
		opponent:  defaultOpponent,
		aiTimeout: 20 * time.Second,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

func defaultOpponent(string) Participant {
	return Participant{ID: AIParticipantID, Nickname: "AI", Bot: true}
}

// Join queues the participant on connID and tries to pair its bracket.
func (l *Lobby) Join(p Participant, connID string) (JoinResult, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return JoinResult{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	b, err := ParseBracket(string(p.Bracket))
	if err != nil {
		return JoinResult{}, err
	}
	p.Bracket, p.Bot = b, false

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.ctrl.Store().ActiveFor(p.ID); ok {
		return JoinResult{}, fmt.Errorf("%w: %s", ErrAlreadyInSession, s.ID)
	}
	l.reg.Bind(p.ID, connID)
	now := l.now()
	l.queue.Enqueue(QueueEntry{Participant: p, ConnID: connID, JoinedAt: now})
	log.Info().Str("userId", p.ID).Str("rank", string(b)).Msg("joined queue")

	res := JoinResult{Bracket: b, Position: l.queue.Position(p.ID), Status: l.queue.Snapshot()}
	l.gw.ToConn(connID, "queue-joined", res)

	s := l.matchLocked(b, now)
	if s == nil {
		// a long waiter next door may take the newcomer
		for _, adj := range b.Adjacent() {
			if s = l.matchLocked(adj, now); s != nil {
				break
			}
		}
	}
	if s != nil && s.HasParticipant(p.ID) {
		res.SessionID = s.ID
		res.Position = 0
	}
	res.Status = l.queue.Snapshot()
	l.gw.ToAll("queue-status", res.Status)
	return res, nil
}

// Leave removes the participant from the queue. Leaving while not queued is
// a no-op.
func (l *Lobby) Leave(participantID string) (QueueStatus, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.queue.Dequeue(participantID)
	st := l.queue.Snapshot()
	if !ok {
		return st, false
	}
	log.Info().Str("userId", participantID).Str("rank", string(e.Bracket)).Msg("left queue")
	if connID, bound := l.reg.Conn(participantID); bound {
		l.gw.ToConn(connID, "queue-left", st)
	}
	l.gw.ToAll("queue-status", st)
	return st, true
}

// Disconnect forgets connID and drops its identity from the queue. A running
// session is left to its timers.
func (l *Lobby) Disconnect(connID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.reg.Unbind(connID)
	if !ok {
		return
	}
	if _, queued := l.queue.Dequeue(id); !queued {
		return
	}
	log.Info().Str("userId", id).Str("conn", connID).Msg("dropped from queue on disconnect")
	l.gw.ToAll("queue-status", l.queue.Snapshot())
}

// Resume rebinds identity to connID and returns the session it is playing, if
// any.
func (l *Lobby) Resume(identity, connID string) (SessionView, bool) {
	if identity == "" || connID == "" {
		return SessionView{}, false
	}
	l.mu.Lock()
	l.reg.Bind(identity, connID)
	l.mu.Unlock()
	s, ok := l.ctrl.Store().ActiveFor(identity)
	if !ok {
		return SessionView{}, false
	}
	return s.View(), true
}

func (l *Lobby) Status() QueueStatus { return l.queue.Snapshot() }

func (l *Lobby) Registry() *Registry { return l.reg }

// Sweep retries matching in every bracket so long waiters can fall back to an
// adjacent bracket. It returns the number of sessions started.
func (l *Lobby) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	n := 0
	for _, b := range Brackets {
		for l.matchLocked(b, now) != nil {
			n++
		}
	}
	if n > 0 {
		l.gw.ToAll("queue-status", l.queue.Snapshot())
	}
	return n
}

// Run sweeps every interval until ctx is done.
func (l *Lobby) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := l.Sweep(); n > 0 {
				log.Debug().Int("sessions", n).Msg("sweep matched")
			}
		}
	}
}

func (l *Lobby) matchLocked(trigger Bracket, now time.Time) *Session {
	pair, ok := l.queue.Match(l.matcher, trigger, now)
	if !ok {
		return nil
	}
	players := [2]Participant{pair[0].Participant, pair[1].Participant}
	s := newSession(uuid.NewString(), ModeRank, l.pick(l.themes), players, now)
	l.ctrl.Start(s)
	return s
}

// StartAIBattle opens a session against the AI slot. The AI poem is written in
// the background and submitted like any other.
func (l *Lobby) StartAIBattle(p Participant, connID, theme, difficulty string) (SessionView, error) {
	if l.poems == nil {
		return SessionView{}, fmt.Errorf("%w: ai battles are disabled", ErrInvalidInput)
	}
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" || p.ID == AIParticipantID {
		return SessionView{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	}
	b, err := ParseBracket(string(p.Bracket))
	if err != nil {
		return SessionView{}, err
	}
	p.Bracket, p.Bot = b, false
	difficulty = NormalizeDifficulty(difficulty)

	l.mu.Lock()
	if s, ok := l.ctrl.Store().ActiveFor(p.ID); ok {
		l.mu.Unlock()
		return SessionView{}, fmt.Errorf("%w: %s", ErrAlreadyInSession, s.ID)
	}
	if _, queued := l.queue.Dequeue(p.ID); queued {
		l.gw.ToAll("queue-status", l.queue.Snapshot())
	}
	l.reg.Bind(p.ID, connID)
	theme = strings.TrimSpace(theme)
	if theme == "" {
		theme = l.pick(l.themes)
	}
	bot := l.opponent(difficulty)
	bot.ID, bot.Bot = AIParticipantID, true
	if bot.Bracket == "" {
		bot.Bracket = b
	}
	s := newSession(uuid.NewString(), ModeAI, theme, [2]Participant{p, bot}, l.now())
	l.ctrl.Start(s)
	l.mu.Unlock()

	l.wg.Add(1)
	go l.writeAIPoem(s.ID, theme, difficulty)
	return s.View(), nil
}

func (l *Lobby) writeAIPoem(sessionID, theme, difficulty string) {
	defer l.wg.Done()
	ctx, cancel := context.WithTimeout(context.Background(), l.aiTimeout)
	defer cancel()
	lines := ClampLines(l.poems(ctx, theme, difficulty), l.ctrl.MaxLineLength(), theme)
	if _, err := l.ctrl.Submit(sessionID, AIParticipantID, lines); err != nil {
		log.Warn().Err(err).Str("gameId", sessionID).Msg("ai poem rejected")
	}
}

// Wait blocks until background AI writers have finished.
func (l *Lobby) Wait() { l.wg.Wait() }

// NormalizeDifficulty maps unknown difficulties to medium.
func NormalizeDifficulty(d string) string {
	switch d = strings.ToLower(strings.TrimSpace(d)); d {
	case "easy", "medium", "hard":
		return d
	default:
		return "medium"
	}
}
