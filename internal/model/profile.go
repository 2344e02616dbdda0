package model

import (
	"encoding/json"
	"slices"
	"strings"
)

// TeeShirtSize is a user's apparel-size preference.
type TeeShirtSize string

// Possible tee shirt sizes.
const (
	SizeNotSpecified TeeShirtSize = "NOT_SPECIFIED"
	SizeXS           TeeShirtSize = "XS"
	SizeS            TeeShirtSize = "S"
	SizeM            TeeShirtSize = "M"
	SizeL            TeeShirtSize = "L"
	SizeXL           TeeShirtSize = "XL"
	SizeXXL          TeeShirtSize = "XXL"
	SizeXXXL         TeeShirtSize = "XXXL"
)

// Profile is a user's profile entity, keyed by the stable user id assigned
// by the identity provider. The registration and wishlist sets are held
// privately: callers read them as copied snapshots and mutate them only
// through the add/remove methods, which enforce at-most-once membership.
type Profile struct {
	UserID       string
	DisplayName  string
	MainEmail    string
	TeeShirtSize TeeShirtSize

	conferenceKeysToAttend []string
	sessionKeysWishlist    []string
}

// NewProfile constructs a profile with empty membership sets.
func NewProfile(userID, displayName, mainEmail string, size TeeShirtSize) *Profile {
	if displayName == "" {
		displayName = DefaultDisplayName(mainEmail)
	}
	if size == "" {
		size = SizeNotSpecified
	}
	return &Profile{
		UserID:       userID,
		DisplayName:  displayName,
		MainEmail:    mainEmail,
		TeeShirtSize: size,
	}
}

// DefaultDisplayName derives a display name from an e-mail address.
func DefaultDisplayName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}

// Update applies a profile form; empty values keep the current ones.
func (p *Profile) Update(displayName string, size TeeShirtSize) {
	if displayName != "" {
		p.DisplayName = displayName
	}
	if size != "" {
		p.TeeShirtSize = size
	}
}

// ConferenceKeysToAttend returns a snapshot of the registration set.
func (p *Profile) ConferenceKeysToAttend() []string {
	return slices.Clone(p.conferenceKeysToAttend)
}

// SessionKeysWishlist returns a snapshot of the wishlist set.
func (p *Profile) SessionKeysWishlist() []string {
	return slices.Clone(p.sessionKeysWishlist)
}

// HasConference reports whether key is in the registration set.
func (p *Profile) HasConference(key string) bool {
	return slices.Contains(p.conferenceKeysToAttend, key)
}

// AddConferenceToAttend adds key to the registration set.
// It reports false, without mutating, when the key is already present.
func (p *Profile) AddConferenceToAttend(key string) bool {
	if p.HasConference(key) {
		return false
	}
	p.conferenceKeysToAttend = append(p.conferenceKeysToAttend, key)
	return true
}

// RemoveConferenceToAttend removes key from the registration set.
// It reports false when the key was not a member.
func (p *Profile) RemoveConferenceToAttend(key string) bool {
	i := slices.Index(p.conferenceKeysToAttend, key)
	if i < 0 {
		return false
	}
	p.conferenceKeysToAttend = slices.Delete(p.conferenceKeysToAttend, i, i+1)
	return true
}

// HasSessionInWishlist reports whether key is in the wishlist set.
func (p *Profile) HasSessionInWishlist(key string) bool {
	return slices.Contains(p.sessionKeysWishlist, key)
}

// AddSessionToWishlist adds key to the wishlist set.
// It reports false, without mutating, when the key is already present.
func (p *Profile) AddSessionToWishlist(key string) bool {
	if p.HasSessionInWishlist(key) {
		return false
	}
	p.sessionKeysWishlist = append(p.sessionKeysWishlist, key)
	return true
}

// RemoveSessionFromWishlist removes key from the wishlist set.
// It reports false when the key was not a member.
func (p *Profile) RemoveSessionFromWishlist(key string) bool {
	i := slices.Index(p.sessionKeysWishlist, key)
	if i < 0 {
		return false
	}
	p.sessionKeysWishlist = slices.Delete(p.sessionKeysWishlist, i, i+1)
	return true
}

// profileJSON is the serialised form of Profile. The membership sets are
// only reachable through it so the store can round-trip the entity.
type profileJSON struct {
	UserID                 string       `json:"userId"`
	DisplayName            string       `json:"displayName"`
	MainEmail              string       `json:"mainEmail"`
	TeeShirtSize           TeeShirtSize `json:"teeShirtSize"`
	ConferenceKeysToAttend []string     `json:"conferenceKeysToAttend"`
	SessionKeysWishlist    []string     `json:"sessionKeysWishlist"`
}

// MarshalJSON implements json.Marshaler.
func (p *Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(profileJSON{
		UserID:                 p.UserID,
		DisplayName:            p.DisplayName,
		MainEmail:              p.MainEmail,
		TeeShirtSize:           p.TeeShirtSize,
		ConferenceKeysToAttend: p.conferenceKeysToAttend,
		SessionKeysWishlist:    p.sessionKeysWishlist,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var j profileJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	p.UserID = j.UserID
	p.DisplayName = j.DisplayName
	p.MainEmail = j.MainEmail
	p.TeeShirtSize = j.TeeShirtSize
	p.conferenceKeysToAttend = j.ConferenceKeysToAttend
	p.sessionKeysWishlist = j.SessionKeysWishlist
	return nil
}
