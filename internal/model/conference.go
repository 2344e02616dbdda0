package model

import "time"

// Conference is a conference entity. Its numeric id is allocated by the
// store under the organizer's profile, which is the entity's locality
// group. SeatsAvailable is mutated only by BookSeat and ReleaseSeat, which
// keep 0 <= SeatsAvailable <= MaxAttendees across every committed state.
type Conference struct {
	ID              int64      `json:"id"`
	WebsafeKey      string     `json:"websafeKey"`
	OrganizerUserID string     `json:"organizerUserId"`
	Name            string     `json:"name"`
	Description     string     `json:"description,omitempty"`
	City            string     `json:"city,omitempty"`
	Topics          []string   `json:"topics,omitempty"`
	StartDate       *time.Time `json:"startDate,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty"`
	MaxAttendees    int        `json:"maxAttendees"`
	SeatsAvailable  int        `json:"seatsAvailable"`
}

// NewConference builds a conference from a form with every seat available.
func NewConference(id int64, organizerUserID string, form ConferenceForm) *Conference {
	return &Conference{
		ID:              id,
		OrganizerUserID: organizerUserID,
		Name:            form.Name,
		Description:     form.Description,
		City:            form.City,
		Topics:          form.Topics,
		StartDate:       form.StartDate,
		EndDate:         form.EndDate,
		MaxAttendees:    form.MaxAttendees,
		SeatsAvailable:  form.MaxAttendees,
	}
}

// SoldOut reports whether no seats remain.
func (c *Conference) SoldOut() bool {
	return c.SeatsAvailable <= 0
}

// BookSeat consumes one available seat.
func (c *Conference) BookSeat() error {
	if c.SeatsAvailable <= 0 {
		return ErrNoSeatsAvailable
	}
	c.SeatsAvailable--
	return nil
}

// ReleaseSeat restores one seat. A seat can only be restored once per
// prior booking, so crossing MaxAttendees means the stored counter is
// corrupt and the mutation is refused.
func (c *Conference) ReleaseSeat() error {
	if c.SeatsAvailable >= c.MaxAttendees {
		return ErrSeatsExceedCapacity
	}
	c.SeatsAvailable++
	return nil
}

// Summary returns the human-readable description used in confirmation
// notifications.
func (c *Conference) Summary() string {
	s := c.Name
	if c.City != "" {
		s += " in " + c.City
	}
	return s
}
