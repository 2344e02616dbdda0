package model

import "time"

// SessionType enumerates the kinds of conference session.
type SessionType string

// Possible session types.
const (
	SessionWorkshop     SessionType = "WORKSHOP"
	SessionLecture      SessionType = "LECTURE"
	SessionKeynote      SessionType = "KEYNOTE"
	SessionNotSpecified SessionType = "NOT_SPECIFIED"
)

// DefaultLocation is the sentinel used when a session form omits the
// location.
const DefaultLocation = "DEFAULT LOC"

// Session is a session entity, keyed under its parent conference.
type Session struct {
	ID           int64       `json:"id"`
	WebsafeKey   string      `json:"websafeKey"`
	ConferenceID int64       `json:"conferenceId"`
	Speaker      string      `json:"speaker"`
	StartTime    *time.Time  `json:"startTime,omitempty"`
	Duration     string      `json:"duration,omitempty"`
	Type         SessionType `json:"type"`
	Location     string      `json:"location"`
}

// NewSession builds a session from a form. The speaker is mandatory;
// creation fails without one.
func NewSession(id, conferenceID int64, form SessionForm) (*Session, error) {
	s := &Session{ID: id, ConferenceID: conferenceID}
	if err := s.UpdateWithForm(form); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateWithForm replaces the session's fields with the form's values,
// applying the same defaults as creation.
func (s *Session) UpdateWithForm(form SessionForm) error {
	if form.Speaker == "" {
		return ErrSpeakerRequired
	}
	s.Speaker = form.Speaker
	s.StartTime = form.StartTime
	s.Duration = form.Duration
	if form.Type == "" {
		s.Type = SessionNotSpecified
	} else {
		s.Type = form.Type
	}
	if form.Location == "" {
		s.Location = DefaultLocation
	} else {
		s.Location = form.Location
	}
	return nil
}
