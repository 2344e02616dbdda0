package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/confcentral/backend/internal/model"
	"github.com/confcentral/backend/internal/store"
)

// Read-only listing paths. These bypass the transactional core: they have
// no invariant to protect, and eventually consistent reads are acceptable.

// GetConference returns the conference behind a websafe key.
func (e *Engine) GetConference(ctx context.Context, websafeConferenceKey string) (*model.Conference, Outcome) {
	const op = "get_conference"
	confKey, ok := decodeKeyOfKind(websafeConferenceKey, store.KindConference)
	if !ok {
		return nil, e.done(op, Failed(ReasonNotFound))
	}
	var conf model.Conference
	if err := e.store.Get(ctx, confKey, &conf); err != nil {
		if errors.Is(err, store.ErrNoSuchEntity) {
			return nil, e.done(op, Failed(ReasonNotFound))
		}
		return nil, e.done(op, StoreFailed(err))
	}
	return &conf, e.done(op, Succeeded())
}

// ListConferences returns all conferences ordered by name.
func (e *Engine) ListConferences(ctx context.Context) ([]model.Conference, Outcome) {
	const op = "list_conferences"
	confs, err := e.listConferences(ctx, nil)
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return confs, e.done(op, Succeeded())
}

// ConferencesCreated returns the conferences organized by the caller.
func (e *Engine) ConferencesCreated(ctx context.Context, caller Caller) ([]model.Conference, Outcome) {
	const op = "conferences_created"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	confs, err := e.listConferences(ctx, profileKeyFor(caller))
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return confs, e.done(op, Succeeded())
}

func (e *Engine) listConferences(ctx context.Context, ancestor *store.Key) ([]model.Conference, error) {
	records, err := e.store.List(ctx, store.KindConference, ancestor)
	if err != nil {
		return nil, err
	}
	confs := make([]model.Conference, 0, len(records))
	for _, r := range records {
		var c model.Conference
		if err := r.Decode(&c); err != nil {
			return nil, err
		}
		confs = append(confs, c)
	}
	sort.Slice(confs, func(i, j int) bool { return confs[i].Name < confs[j].Name })
	return confs, nil
}

// ConferencesToAttend returns the conferences the caller is registered for.
func (e *Engine) ConferencesToAttend(ctx context.Context, caller Caller) ([]model.Conference, Outcome) {
	const op = "conferences_to_attend"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	var profile model.Profile
	if err := e.store.Get(ctx, profileKeyFor(caller), &profile); err != nil {
		if errors.Is(err, store.ErrNoSuchEntity) {
			return nil, e.done(op, Failed(ReasonNotFound))
		}
		return nil, e.done(op, StoreFailed(err))
	}
	confs, err := e.resolveConferences(ctx, profile.ConferenceKeysToAttend())
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return confs, e.done(op, Succeeded())
}

func (e *Engine) resolveConferences(ctx context.Context, websafeKeys []string) ([]model.Conference, error) {
	keys := make([]*store.Key, 0, len(websafeKeys))
	for _, wk := range websafeKeys {
		key, err := store.DecodeKey(wk)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	records, err := e.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, err
	}
	confs := make([]model.Conference, 0, len(records))
	for _, r := range records {
		var c model.Conference
		if err := r.Decode(&c); err != nil {
			return nil, err
		}
		confs = append(confs, c)
	}
	return confs, nil
}

// SessionsOfConference returns all sessions of the referenced conference.
func (e *Engine) SessionsOfConference(ctx context.Context, websafeConferenceKey string) ([]model.Session, Outcome) {
	const op = "sessions_of_conference"
	confKey, ok := decodeKeyOfKind(websafeConferenceKey, store.KindConference)
	if !ok {
		return nil, e.done(op, Failed(ReasonNotFound))
	}
	var conf model.Conference
	if err := e.store.Get(ctx, confKey, &conf); err != nil {
		if errors.Is(err, store.ErrNoSuchEntity) {
			return nil, e.done(op, Failed(ReasonNotFound))
		}
		return nil, e.done(op, StoreFailed(err))
	}
	sessions, err := e.listSessions(ctx, confKey, "")
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return sessions, e.done(op, Succeeded())
}

// SessionsBySpeaker returns all sessions held by the given speaker, across
// conferences.
func (e *Engine) SessionsBySpeaker(ctx context.Context, speaker string) ([]model.Session, Outcome) {
	const op = "sessions_by_speaker"
	sessions, err := e.listSessions(ctx, nil, speaker)
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return sessions, e.done(op, Succeeded())
}

func (e *Engine) listSessions(ctx context.Context, ancestor *store.Key, speaker string) ([]model.Session, error) {
	records, err := e.store.List(ctx, store.KindSession, ancestor)
	if err != nil {
		return nil, err
	}
	sessions := make([]model.Session, 0, len(records))
	for _, r := range records {
		var s model.Session
		if err := r.Decode(&s); err != nil {
			return nil, err
		}
		if speaker != "" && s.Speaker != speaker {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// WishlistSessions returns the sessions on the caller's wishlist.
func (e *Engine) WishlistSessions(ctx context.Context, caller Caller) ([]model.Session, Outcome) {
	const op = "wishlist_sessions"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	var profile model.Profile
	if err := e.store.Get(ctx, profileKeyFor(caller), &profile); err != nil {
		if errors.Is(err, store.ErrNoSuchEntity) {
			return nil, e.done(op, Failed(ReasonNotFound))
		}
		return nil, e.done(op, StoreFailed(err))
	}
	keys := make([]*store.Key, 0)
	for _, wk := range profile.SessionKeysWishlist() {
		key, err := store.DecodeKey(wk)
		if err != nil {
			return nil, e.done(op, StoreFailed(err))
		}
		keys = append(keys, key)
	}
	records, err := e.store.GetMulti(ctx, keys)
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	sessions := make([]model.Session, 0, len(records))
	for _, r := range records {
		var s model.Session
		if err := r.Decode(&s); err != nil {
			return nil, e.done(op, StoreFailed(err))
		}
		sessions = append(sessions, s)
	}
	return sessions, e.done(op, Succeeded())
}

// Announcement returns the cached sold-out announcement. An empty result
// means no announcement has been computed yet, which is a valid state.
func (e *Engine) Announcement() string {
	msg, _ := e.cache.Announcement()
	return msg
}

// FeaturedSpeaker returns the cached featured-speaker text, if any.
func (e *Engine) FeaturedSpeaker() string {
	msg, _ := e.cache.FeaturedSpeaker()
	return msg
}
