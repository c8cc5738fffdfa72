package game

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSubmissionNotFound  = errors.New("poem not found")
	ErrDuplicateSubmission = errors.New("poem already submitted")
	ErrDuplicateVote       = errors.New("already voted")
	ErrWrongPhase          = errors.New("invalid phase for action")
	ErrSessionFinished     = fmt.Errorf("%w: session finished", ErrWrongPhase)
	ErrAlreadyInSession    = errors.New("already in a game")

	// Never surfaced to participants; logged at the call boundary.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrTransportFailure       = errors.New("transport failure")
)

// ReasonCode maps an error to the reason code sent in an error event.
func ReasonCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrSubmissionNotFound):
		return "not_found"
	case errors.Is(err, ErrDuplicateSubmission):
		return "duplicate_submission"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate_vote"
	case errors.Is(err, ErrSessionFinished):
		return "session_finished"
	case errors.Is(err, ErrWrongPhase):
		return "wrong_phase"
	case errors.Is(err, ErrAlreadyInSession):
		return "already_in_game"
	default:
		return "internal"
	}
}
