package roundservice

import "errors"

// Domain errors for the round service. They travel as failure results.
var (
	ErrRoundNotFound        = errors.New("round not found")
	ErrTemplateNotFound     = errors.New("round template not found")
	ErrTemplateInactive     = errors.New("round template is inactive")
	ErrEntriesClosed        = errors.New("round is not accepting entries")
	ErrAlreadyJoined        = errors.New("user already joined round")
	ErrNotParticipant       = errors.New("user is not in this round")
	ErrSpectatorsNotAllowed = errors.New("round does not allow spectators")
	ErrNotSpectator         = errors.New("participant is not a spectator")
	ErrSpectatorCannotAct   = errors.New("spectators cannot act")
	ErrRoundNotLive         = errors.New("round is not accepting actions")
	ErrRoundAlreadyLive     = errors.New("round has already gone live")
	ErrRoundTerminal        = errors.New("round is already finished")
	ErrRoundNotFinished     = errors.New("round has not finished")
	ErrQuorumNotMet         = errors.New("minimum participants not met")
	ErrInvalidStartTime     = errors.New("invalid start time")
	ErrInsufficientFunds    = errors.New("insufficient funds for entry fee")
	ErrConcurrentChange     = errors.New("round changed concurrently")
	ErrEmptyAction          = errors.New("action body is empty")
	errFailureRollback      = errors.New("operation returned failure result")
)
