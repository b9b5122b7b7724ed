package rounddb

import (
	"errors"

	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	// ErrNotFound is returned when a round does not exist.
	ErrNotFound = errors.New("round not found")

	// ErrTemplateNotFound is returned when a template does not exist.
	ErrTemplateNotFound = errors.New("round template not found")

	// ErrParticipantNotFound is returned when the user has not joined the round.
	ErrParticipantNotFound = errors.New("participant not found")

	// ErrAlreadyJoined is returned when the user is already in the round.
	ErrAlreadyJoined = errors.New("user already joined round")

	// ErrNoRowsAffected is returned when a guarded UPDATE or DELETE matched nothing.
	ErrNoRowsAffected = errors.New("no rows affected")

	// ErrTransitionConflict is returned when a compare-and-transition finds the
	// round no longer in the expected status. Another writer got there first.
	ErrTransitionConflict = errors.New("round transition conflict")

	// ErrDuplicateSuccessor is returned when a successor already exists for the predecessor.
	ErrDuplicateSuccessor = errors.New("successor round already exists")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.Field('C') == uniqueViolation
	}
	return false
}
