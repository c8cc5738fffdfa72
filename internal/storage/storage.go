// Package storage defines the durable mirror of finished and in-flight games.
//
// The game core writes to a Repository best-effort; nothing read back from it
// ever drives live play.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyExists = errors.New("record already exists")
	ErrNotFound      = errors.New("record not found")
)

const (
	StatusActive   = "active"
	StatusFinished = "finished"
)

type SessionRecord struct {
	ID        string
	Mode      string
	Theme     string
	PlayerIDs [2]string
	Status    string
	TimeLimit time.Duration
	WinnerID  string
	CreatedAt time.Time
	EndedAt   time.Time
}

type SubmissionRecord struct {
	ID            string
	SessionID     string
	ParticipantID string
	Theme         string
	Lines         [3]string
	Votes         int
	CreatedAt     time.Time
}

type VoteRecord struct {
	SessionID    string
	VoterID      string
	SubmissionID string
	CreatedAt    time.Time
}

// Repository is the write side used by the game core.
type Repository interface {
	CreateSession(ctx context.Context, rec SessionRecord) (string, error)
	// AppendSubmission fails with ErrAlreadyExists when the participant already
	// submitted in the session.
	AppendSubmission(ctx context.Context, rec SubmissionRecord) (string, error)
	// AppendVote fails with ErrAlreadyExists when the voter already voted in the
	// session.
	AppendVote(ctx context.Context, rec VoteRecord) error
	FinalizeSession(ctx context.Context, sessionID, winnerID string, endedAt time.Time) error
}

// Reader is implemented by repositories that can serve history lookups.
type Reader interface {
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	ListSubmissions(ctx context.Context, sessionID string) ([]SubmissionRecord, error)
}

// Nop is the repository used when no durable store is configured.
type Nop struct{}

func (Nop) CreateSession(_ context.Context, rec SessionRecord) (string, error) { return rec.ID, nil }

func (Nop) AppendSubmission(_ context.Context, rec SubmissionRecord) (string, error) {
	return rec.ID, nil
}

func (Nop) AppendVote(context.Context, VoteRecord) error { return nil }

func (Nop) FinalizeSession(context.Context, string, string, time.Time) error { return nil }
