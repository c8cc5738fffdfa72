package game

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultMaxLineLength bounds each poem line, counted in runes.
const DefaultMaxLineLength = 50

// Session is one two-participant contest. Identity fields are fixed at
// creation; everything below mu is guarded by it.
type Session struct {
	ID        string
	Mode      Mode
	Theme     string
	Players   [2]Participant
	CreatedAt time.Time

	mu          sync.Mutex
	phase       Phase
	deadline    time.Time
	submissions []*Submission          // arrival order
	byPlayer    map[string]*Submission // participantID -> submission
	votes       map[string]*Vote       // voterID -> vote
	winner      *Winner
	endedAt     time.Time
	recorded    bool // session row exists in the repository

	timer       *time.Timer
	timerGen    uint64
	removeTimer *time.Timer
}

func newSession(id string, mode Mode, theme string, players [2]Participant, now time.Time) *Session {
	return &Session{
		ID:        id,
		Mode:      mode,
		Theme:     theme,
		Players:   players,
		CreatedAt: now.UTC(),
		phase:     PhaseComposing,
		byPlayer:  make(map[string]*Submission, 2),
		votes:     make(map[string]*Vote),
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) HasParticipant(id string) bool {
	return s.Players[0].ID == id || s.Players[1].ID == id
}

// Opponent returns the other slot holder.
func (s *Session) Opponent(id string) Participant {
	if s.Players[0].ID == id {
		return s.Players[1]
	}
	return s.Players[0]
}

func (s *Session) View() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := SessionView{
		ID:        s.ID,
		Mode:      s.Mode,
		Theme:     s.Theme,
		Phase:     s.phase,
		Players:   []Participant{s.Players[0], s.Players[1]},
		Submitted: make([]string, 0, len(s.submissions)),
		VoteCount: len(s.votes),
		CreatedAt: s.CreatedAt,
		Deadline:  s.deadline,
	}
	for _, sub := range s.submissions {
		v.Submitted = append(v.Submitted, sub.ParticipantID)
	}
	if s.winner != nil {
		w := *s.winner
		v.Winner = &w
	}
	return v
}

func (s *Session) markRecorded() {
	s.mu.Lock()
	s.recorded = true
	s.mu.Unlock()
}

func (s *Session) isRecorded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorded
}

func (s *Session) submitLocked(participantID string, lines Lines, maxLen int, now time.Time) (Submission, error) {
	switch s.phase {
	case PhaseComposing:
	case PhaseFinished:
		return Submission{}, ErrSessionFinished
	default:
		return Submission{}, ErrWrongPhase
	}
	if !s.HasParticipant(participantID) {
		return Submission{}, fmt.Errorf("%w: %q is not a player of this game", ErrInvalidInput, participantID)
	}
	if _, ok := s.byPlayer[participantID]; ok {
		return Submission{}, ErrDuplicateSubmission
	}
	clean, err := ValidateLines(lines, maxLen)
	if err != nil {
		return Submission{}, err
	}
	sub := &Submission{
		ID:            uuid.NewString(),
		SessionID:     s.ID,
		ParticipantID: participantID,
		Lines:         clean,
		CreatedAt:     now.UTC(),
	}
	s.submissions = append(s.submissions, sub)
	s.byPlayer[participantID] = sub
	return *sub, nil
}

func (s *Session) voteLocked(voterID, submissionID string, now time.Time) (Vote, error) {
	switch s.phase {
	case PhaseVoting:
	case PhaseFinished:
		return Vote{}, ErrSessionFinished
	default:
		return Vote{}, ErrWrongPhase
	}
	var target *Submission
	for _, sub := range s.submissions {
		if sub.ID == submissionID {
			target = sub
			break
		}
	}
	if target == nil {
		return Vote{}, ErrSubmissionNotFound
	}
	if _, ok := s.votes[voterID]; ok {
		return Vote{}, ErrDuplicateVote
	}
	v := &Vote{VoterID: voterID, SubmissionID: submissionID, CreatedAt: now.UTC()}
	s.votes[voterID] = v
	target.Votes++
	return *v, nil
}

func (s *Session) bothSubmittedLocked() bool {
	return len(s.byPlayer) == len(s.Players)
}

func (s *Session) submissionsLocked() []Submission {
	out := make([]Submission, 0, len(s.submissions))
	for _, sub := range s.submissions {
		out = append(out, *sub)
	}
	return out
}

func (s *Session) resultLocked() Result {
	subs := s.submissionsLocked()
	sort.SliceStable(subs, func(i, j int) bool { return subs[i].Votes > subs[j].Votes })
	r := Result{
		SessionID:   s.ID,
		Mode:        s.Mode,
		Theme:       s.Theme,
		Players:     []Participant{s.Players[0], s.Players[1]},
		Submissions: subs,
		VoteCount:   len(s.votes),
		StartedAt:   s.CreatedAt,
		EndedAt:     s.endedAt,
	}
	if s.winner != nil {
		w := *s.winner
		r.Winner = &w
	}
	return r
}

func (s *Session) stopTimersLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
	if s.removeTimer != nil {
		s.removeTimer.Stop()
		s.removeTimer = nil
	}
}

// DecideWinner returns the submission with strictly the most votes. Ties,
// including 0-0, and sessions where nobody got a vote have no winner.
func DecideWinner(subs []Submission) *Winner {
	var best *Submission
	tied := false
	for i := range subs {
		sub := &subs[i]
		switch {
		case best == nil || sub.Votes > best.Votes:
			best, tied = sub, false
		case sub.Votes == best.Votes:
			tied = true
		}
	}
	if best == nil || tied || best.Votes == 0 {
		return nil
	}
	return &Winner{ParticipantID: best.ParticipantID, SubmissionID: best.ID, Votes: best.Votes}
}

// ValidateLines trims each line and checks it is present and within maxLen runes.
func ValidateLines(lines Lines, maxLen int) (Lines, error) {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	var out Lines
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			return Lines{}, fmt.Errorf("%w: line%d is required", ErrInvalidInput, i+1)
		}
		if utf8.RuneCountInString(l) > maxLen {
			return Lines{}, fmt.Errorf("%w: line%d exceeds %d characters", ErrInvalidInput, i+1, maxLen)
		}
		out[i] = l
	}
	return out, nil
}

// ClampLines cuts each line to maxLen runes and fills blanks with fallback.
func ClampLines(lines Lines, maxLen int, fallback string) Lines {
	if maxLen <= 0 {
		maxLen = DefaultMaxLineLength
	}
	var out Lines
	for i, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" {
			l = fallback
		}
		if r := []rune(l); len(r) > maxLen {
			l = string(r[:maxLen])
		}
		out[i] = l
	}
	return out
}
