package domain

import "errors"

var (
	// ErrNoPairsAvailable is returned when every catalog pair has been played in a game.
	ErrNoPairsAvailable = errors.New("no word pairs available")
	// ErrNoOpenTurn indicates the client acted on a turn that is already closed.
	ErrNoOpenTurn = errors.New("no open turn")
	// ErrInvalidSubmission marks a user-correctable word rejection.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrStandInUnavailable is returned when the automated partner could not answer.
	ErrStandInUnavailable = errors.New("stand-in unavailable")

	ErrGameNotFound   = errors.New("game not found")
	ErrTurnNotFound   = errors.New("turn not found")
	ErrNotParticipant = errors.New("not a participant of this game")
	// ErrSlotFilled is returned when a participant submits twice for one attempt.
	ErrSlotFilled  = errors.New("slot already filled for this attempt")
	ErrInvalidGame = errors.New("invalid game")
)

// InvalidSubmissionError carries the reason a word was rejected.
type InvalidSubmissionError struct {
	Reason string
}

func (e *InvalidSubmissionError) Error() string {
	return ErrInvalidSubmission.Error() + ": " + e.Reason
}

func (e *InvalidSubmissionError) Unwrap() error {
	return ErrInvalidSubmission
}

// InvalidSubmission builds a rejection with a human-readable reason.
func InvalidSubmission(reason string) error {
	return &InvalidSubmissionError{Reason: reason}
}
