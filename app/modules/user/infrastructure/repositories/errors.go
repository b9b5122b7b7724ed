package userdb

import "errors"

// Sentinel errors for the player stats repository layer.
var (
	// ErrNotFound indicates the user has no stats row yet.
	ErrNotFound = errors.New("player stats not found")
)
