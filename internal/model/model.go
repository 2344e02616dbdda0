// Package model defines the core domain types for the conference backend:
// profiles, conferences, sessions, and the client-facing forms that create
// and update them. Entity invariants (seat bounds, membership uniqueness,
// mandatory speaker) are enforced here so no caller can construct an
// invalid committed state.
package model

import "errors"

var (
	// ErrNoSeatsAvailable is returned by BookSeat on a sold-out conference.
	ErrNoSeatsAvailable = errors.New("no seats available")

	// ErrSeatsExceedCapacity is returned by ReleaseSeat when restoring a
	// seat would push the counter past the conference capacity. A committed
	// state can only reach this through corruption, so callers abort.
	ErrSeatsExceedCapacity = errors.New("seats available would exceed capacity")

	// ErrSpeakerRequired is returned when a session is created or updated
	// without a speaker.
	ErrSpeakerRequired = errors.New("speaker is required")
)

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error string `json:"error"`
}
