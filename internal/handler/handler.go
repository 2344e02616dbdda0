// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the registration engine. It owns the
// mapping from the engine's closed reason codes to transport status codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/confcentral/backend/internal/engine"
	"github.com/confcentral/backend/internal/model"
)

// ConferenceHandler holds all HTTP handlers for the conference API.
type ConferenceHandler struct {
	eng *engine.Engine
}

// NewConferenceHandler constructs a ConferenceHandler.
func NewConferenceHandler(eng *engine.Engine) *ConferenceHandler {
	return &ConferenceHandler{eng: eng}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusForReason maps the engine's closed reason set to HTTP statuses.
// State-conflict reasons all map to 409; infrastructure failures map to a
// retryable 503.
func statusForReason(r engine.Reason) int {
	switch r {
	case engine.ReasonSuccess:
		return http.StatusOK
	case engine.ReasonNotFound:
		return http.StatusNotFound
	case engine.ReasonUnauthorized:
		return http.StatusUnauthorized
	case engine.ReasonForbidden:
		return http.StatusForbidden
	case engine.ReasonAlreadyRegistered, engine.ReasonNotRegistered,
		engine.ReasonSoldOut, engine.ReasonAlreadyInWishlist,
		engine.ReasonNotInWishlist:
		return http.StatusConflict
	case engine.ReasonStoreFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// messageForReason gives each reason a stable human-readable message.
func messageForReason(r engine.Reason) string {
	switch r {
	case engine.ReasonNotFound:
		return "resource not found"
	case engine.ReasonUnauthorized:
		return "authorization required"
	case engine.ReasonForbidden:
		return "operation not allowed"
	case engine.ReasonAlreadyRegistered:
		return "you are already registered for this conference"
	case engine.ReasonNotRegistered:
		return "you are not registered for this conference"
	case engine.ReasonSoldOut:
		return "there are no seats left"
	case engine.ReasonAlreadyInWishlist:
		return "session is already in your wishlist"
	case engine.ReasonNotInWishlist:
		return "session is not in your wishlist"
	case engine.ReasonStoreFailure:
		return "temporary failure, please try again"
	default:
		return "request failed"
	}
}

// writeOutcome writes a failed outcome's status and message.
func writeOutcome(w http.ResponseWriter, out engine.Outcome) {
	writeError(w, statusForReason(out.Reason), messageForReason(out.Reason))
}

// ─── Profile ──────────────────────────────────────────────────────────────────

// GetProfile handles GET /profile.
func (h *ConferenceHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	profile, out := h.eng.GetProfile(r.Context(), CallerFrom(r.Context()))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(profile))
}

// SaveProfile handles POST /profile.
func (h *ConferenceHandler) SaveProfile(w http.ResponseWriter, r *http.Request) {
	var form model.ProfileForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	profile, out := h.eng.SaveProfile(r.Context(), CallerFrom(r.Context()), form)
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, profileResponse(profile))
}

// profileView is the transport shape of a profile, with the membership
// snapshots included.
type profileView struct {
	UserID                 string             `json:"userId"`
	DisplayName            string             `json:"displayName"`
	MainEmail              string             `json:"mainEmail"`
	TeeShirtSize           model.TeeShirtSize `json:"teeShirtSize"`
	ConferenceKeysToAttend []string           `json:"conferenceKeysToAttend"`
	SessionKeysWishlist    []string           `json:"sessionKeysWishlist"`
}

func profileResponse(p *model.Profile) profileView {
	return profileView{
		UserID:                 p.UserID,
		DisplayName:            p.DisplayName,
		MainEmail:              p.MainEmail,
		TeeShirtSize:           p.TeeShirtSize,
		ConferenceKeysToAttend: p.ConferenceKeysToAttend(),
		SessionKeysWishlist:    p.SessionKeysWishlist(),
	}
}

// ─── Conferences ──────────────────────────────────────────────────────────────

// CreateConference handles POST /conferences.
func (h *ConferenceHandler) CreateConference(w http.ResponseWriter, r *http.Request) {
	var form model.ConferenceForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := form.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	conf, out := h.eng.CreateConference(r.Context(), CallerFrom(r.Context()), form)
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusCreated, conf)
}

// ListConferences handles GET /conferences.
func (h *ConferenceHandler) ListConferences(w http.ResponseWriter, r *http.Request) {
	confs, out := h.eng.ListConferences(r.Context())
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, confs)
}

// GetConference handles GET /conferences/{websafeConferenceKey}.
func (h *ConferenceHandler) GetConference(w http.ResponseWriter, r *http.Request) {
	conf, out := h.eng.GetConference(r.Context(), chi.URLParam(r, "websafeConferenceKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, conf)
}

// ConferencesCreated handles GET /conferences/created.
func (h *ConferenceHandler) ConferencesCreated(w http.ResponseWriter, r *http.Request) {
	confs, out := h.eng.ConferencesCreated(r.Context(), CallerFrom(r.Context()))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, confs)
}

// ConferencesToAttend handles GET /conferences/attending.
func (h *ConferenceHandler) ConferencesToAttend(w http.ResponseWriter, r *http.Request) {
	confs, out := h.eng.ConferencesToAttend(r.Context(), CallerFrom(r.Context()))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, confs)
}

// ─── Registration ─────────────────────────────────────────────────────────────

// Register handles POST /conferences/{websafeConferenceKey}/registration.
func (h *ConferenceHandler) Register(w http.ResponseWriter, r *http.Request) {
	out := h.eng.Register(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeConferenceKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Unregister handles DELETE /conferences/{websafeConferenceKey}/registration.
func (h *ConferenceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	out := h.eng.Unregister(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeConferenceKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// CreateSession handles POST /conferences/{websafeConferenceKey}/sessions.
func (h *ConferenceHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var form model.SessionForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := form.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, out := h.eng.CreateSession(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeConferenceKey"), form)
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// ListSessions handles GET /conferences/{websafeConferenceKey}/sessions.
func (h *ConferenceHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, out := h.eng.SessionsOfConference(r.Context(), chi.URLParam(r, "websafeConferenceKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// UpdateSession handles PUT /sessions/{websafeSessionKey}.
func (h *ConferenceHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	var form model.SessionForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := form.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, out := h.eng.UpdateSession(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeSessionKey"), form)
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// SessionsBySpeaker handles GET /sessions/speaker/{speaker}.
func (h *ConferenceHandler) SessionsBySpeaker(w http.ResponseWriter, r *http.Request) {
	sessions, out := h.eng.SessionsBySpeaker(r.Context(), chi.URLParam(r, "speaker"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ─── Wishlist ─────────────────────────────────────────────────────────────────

// AddToWishlist handles POST /sessions/{websafeSessionKey}/wishlist.
func (h *ConferenceHandler) AddToWishlist(w http.ResponseWriter, r *http.Request) {
	out := h.eng.AddToWishlist(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeSessionKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// RemoveFromWishlist handles DELETE /sessions/{websafeSessionKey}/wishlist.
func (h *ConferenceHandler) RemoveFromWishlist(w http.ResponseWriter, r *http.Request) {
	out := h.eng.RemoveFromWishlist(r.Context(), CallerFrom(r.Context()), chi.URLParam(r, "websafeSessionKey"))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Wishlist handles GET /wishlist.
func (h *ConferenceHandler) Wishlist(w http.ResponseWriter, r *http.Request) {
	sessions, out := h.eng.WishlistSessions(r.Context(), CallerFrom(r.Context()))
	if !out.OK {
		writeOutcome(w, out)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

// ─── Derived facts ────────────────────────────────────────────────────────────

// GetAnnouncement handles GET /announcement. An empty announcement is a
// valid "nothing to announce yet" response, not an error.
func (h *ConferenceHandler) GetAnnouncement(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"announcement": h.eng.Announcement()})
}

// GetFeaturedSpeaker handles GET /featured-speaker.
func (h *ConferenceHandler) GetFeaturedSpeaker(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"featuredSpeaker": h.eng.FeaturedSpeaker()})
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
