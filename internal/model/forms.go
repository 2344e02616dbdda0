package model

import (
	"fmt"
	"strings"
	"time"
)

// ProfileForm is the payload for creating or updating a profile.
type ProfileForm struct {
	DisplayName  string       `json:"displayName"`
	TeeShirtSize TeeShirtSize `json:"teeShirtSize"`
}

// ConferenceForm is the payload for creating a conference.
type ConferenceForm struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	City         string     `json:"city"`
	Topics       []string   `json:"topics"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate"`
	MaxAttendees int        `json:"maxAttendees"`
}

// Validate checks the form before any store work happens.
func (f *ConferenceForm) Validate() error {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return fmt.Errorf("conference name is required")
	}
	if f.MaxAttendees <= 0 {
		return fmt.Errorf("maxAttendees must be a positive integer")
	}
	if f.MaxAttendees > 100_000 {
		return fmt.Errorf("maxAttendees cannot exceed 100,000")
	}
	return nil
}

// SessionForm is the payload for creating or updating a session.
type SessionForm struct {
	Speaker   string      `json:"speaker"`
	StartTime *time.Time  `json:"startTime"`
	Duration  string      `json:"duration"`
	Type      SessionType `json:"type"`
	Location  string      `json:"location"`
}

// Validate checks the form before any store work happens.
func (f *SessionForm) Validate() error {
	f.Speaker = strings.TrimSpace(f.Speaker)
	if f.Speaker == "" {
		return ErrSpeakerRequired
	}
	switch f.Type {
	case "", SessionWorkshop, SessionLecture, SessionKeynote, SessionNotSpecified:
	default:
		return fmt.Errorf("unknown session type %q", f.Type)
	}
	return nil
}
