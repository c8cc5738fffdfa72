package game

import (
	"fmt"
	"strings"
	"time"
)

type Phase string

const (
	PhaseComposing Phase = "composing"
	PhaseVoting    Phase = "voting"
	PhaseFinished  Phase = "finished"
)

type Mode string

const (
	ModeRank Mode = "rank"
	ModeAI   Mode = "ai"
)

// Bracket is a skill tier. Brackets are ordered from lowest to highest.
type Bracket string

const (
	BracketBronze   Bracket = "bronze"
	BracketSilver   Bracket = "silver"
	BracketGold     Bracket = "gold"
	BracketPlatinum Bracket = "platinum"
	BracketDiamond  Bracket = "diamond"
)

// Brackets lists every bracket in ascending order.
var Brackets = []Bracket{BracketBronze, BracketSilver, BracketGold, BracketPlatinum, BracketDiamond}

// ParseBracket accepts a bracket name case-insensitively. An empty selector
// falls back to bronze.
func ParseBracket(s string) (Bracket, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BracketBronze, nil
	}
	for _, b := range Brackets {
		if string(b) == s {
			return b, nil
		}
	}
	return "", fmt.Errorf("%w: unknown rank %q", ErrInvalidInput, s)
}

// Index returns the position of b in Brackets, or -1.
func (b Bracket) Index() int {
	for i, x := range Brackets {
		if x == b {
			return i
		}
	}
	return -1
}

// Adjacent returns the brackets one step below and above b, lower first.
func (b Bracket) Adjacent() []Bracket {
	i := b.Index()
	if i < 0 {
		return nil
	}
	out := make([]Bracket, 0, 2)
	if i > 0 {
		out = append(out, Brackets[i-1])
	}
	if i < len(Brackets)-1 {
		out = append(out, Brackets[i+1])
	}
	return out
}

type Participant struct {
	ID       string  `json:"userId"`
	Bracket  Bracket `json:"rank"`
	Nickname string  `json:"nickname,omitempty"`
	Level    int     `json:"level,omitempty"`
	Bot      bool    `json:"bot,omitempty"` // AI slot, never has a connection
}

type QueueEntry struct {
	Participant
	ConnID   string    `json:"-"`
	JoinedAt time.Time `json:"joinTime"`
}

// Lines is one three-line poem.
type Lines [3]string

type Submission struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"gameId"`
	ParticipantID string    `json:"userId"`
	Lines         Lines     `json:"lines"`
	Votes         int       `json:"votes"`
	CreatedAt     time.Time `json:"createdAt"`
}

type Vote struct {
	VoterID      string    `json:"voterId"`
	SubmissionID string    `json:"poemId"`
	CreatedAt    time.Time `json:"createdAt"`
}

type QueueStatus struct {
	Total     int             `json:"total"`
	ByBracket map[Bracket]int `json:"byRank"`
}

// Winner identifies the winning submission of a finished session.
type Winner struct {
	ParticipantID string `json:"userId"`
	SubmissionID  string `json:"poemId"`
	Votes         int    `json:"votes"`
}

// Result is the final view of a session, broadcast with game-end.
type Result struct {
	SessionID   string        `json:"gameId"`
	Mode        Mode          `json:"mode"`
	Theme       string        `json:"theme"`
	Players     []Participant `json:"players"`
	Winner      *Winner       `json:"winner"`
	Submissions []Submission  `json:"finalResults"`
	VoteCount   int           `json:"voteCount"`
	StartedAt   time.Time     `json:"startTime"`
	EndedAt     time.Time     `json:"endTime"`
}

// SessionView is a point-in-time copy of a session for status queries.
type SessionView struct {
	ID        string        `json:"gameId"`
	Mode      Mode          `json:"mode"`
	Theme     string        `json:"theme"`
	Phase     Phase         `json:"status"`
	Players   []Participant `json:"players"`
	Submitted []string      `json:"submitted"`
	VoteCount int           `json:"voteCount"`
	CreatedAt time.Time     `json:"startTime"`
	Deadline  time.Time     `json:"deadline"`
	Winner    *Winner       `json:"winner,omitempty"`
}
