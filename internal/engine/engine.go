// Package engine implements the transactional registration and wishlist
// core. Every operation that mutates state encloses its entire
// read-check-mutate sequence in one store transaction; the unit of work is
// a pure function of the caller's inputs and stored state, so the store
// may re-execute it any number of times before one execution commits.
// Expected state conflicts (already registered, sold out, ...) are decided
// inside the transaction and surfaced through the closed Reason set, never
// as free-text causes or store-internal errors.
package engine

import (
	"context"
	"errors"

	"github.com/confcentral/backend/internal/cache"
	"github.com/confcentral/backend/internal/model"
	"github.com/confcentral/backend/internal/store"
)

// Engine orchestrates registration, wishlist, and creation operations.
// It holds no mutable state of its own; all shared state lives in the
// store, and the cache is a best-effort side channel.
type Engine struct {
	store store.Store
	cache *cache.Cache
}

// New constructs an Engine with explicit dependencies.
func New(st store.Store, c *cache.Cache) *Engine {
	return &Engine{store: st, cache: c}
}

// done records the operation outcome metric and passes the outcome through.
func (e *Engine) done(op string, out Outcome) Outcome {
	operationsTotal.WithLabelValues(op, string(out.Reason)).Inc()
	return out
}

func profileKeyFor(caller Caller) *store.Key {
	return store.NameKey(store.KindProfile, caller.ID, nil)
}

// decodeKeyOfKind parses a websafe key and checks its kind. A key that
// does not decode, or names the wrong kind, cannot reference an existing
// entity, so callers treat failure as NotFound.
func decodeKeyOfKind(websafe, kind string) (*store.Key, bool) {
	key, err := store.DecodeKey(websafe)
	if err != nil || key.Kind != kind {
		return nil, false
	}
	return key, true
}

// loadOrCreateProfile returns the caller's stored profile, or a fresh
// default one when none exists yet. The fresh profile is not persisted;
// the enclosing unit of work decides whether to put it.
func loadOrCreateProfile(tx store.Tx, caller Caller) (*model.Profile, error) {
	var profile model.Profile
	err := tx.Get(profileKeyFor(caller), &profile)
	if err == nil {
		return &profile, nil
	}
	if errors.Is(err, store.ErrNoSuchEntity) {
		return model.NewProfile(caller.ID, "", caller.Email, model.SizeNotSpecified), nil
	}
	return nil, err
}

// Register books one seat of the referenced conference for the caller.
func (e *Engine) Register(ctx context.Context, caller Caller, websafeConferenceKey string) Outcome {
	const op = "register"
	if !caller.Authenticated() {
		return e.done(op, Failed(ReasonUnauthorized))
	}
	confKey, ok := decodeKeyOfKind(websafeConferenceKey, store.KindConference)
	if !ok {
		return e.done(op, Failed(ReasonNotFound))
	}
	membershipKey := confKey.Encode()

	var out Outcome
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		var conf model.Conference
		if err := tx.Get(confKey, &conf); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		profile, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		switch {
		case profile.HasConference(membershipKey):
			out = Failed(ReasonAlreadyRegistered)
		case conf.SoldOut():
			out = Failed(ReasonSoldOut)
		default:
			if err := conf.BookSeat(); err != nil {
				return err
			}
			profile.AddConferenceToAttend(membershipKey)
			if err := tx.Put(profileKeyFor(caller), profile); err != nil {
				return err
			}
			if err := tx.Put(confKey, &conf); err != nil {
				return err
			}
			out = Succeeded()
		}
		return nil
	})
	if err != nil {
		return e.done(op, StoreFailed(err))
	}
	return e.done(op, out)
}

// Unregister releases the caller's seat at the referenced conference.
func (e *Engine) Unregister(ctx context.Context, caller Caller, websafeConferenceKey string) Outcome {
	const op = "unregister"
	if !caller.Authenticated() {
		return e.done(op, Failed(ReasonUnauthorized))
	}
	confKey, ok := decodeKeyOfKind(websafeConferenceKey, store.KindConference)
	if !ok {
		return e.done(op, Failed(ReasonNotFound))
	}
	membershipKey := confKey.Encode()

	var out Outcome
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		var conf model.Conference
		if err := tx.Get(confKey, &conf); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		profile, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		if !profile.RemoveConferenceToAttend(membershipKey) {
			out = Failed(ReasonNotRegistered)
			return nil
		}
		// A seat is restored at most once per prior booking; overflow
		// means the stored counter is corrupt, so abort rather than
		// commit it.
		if err := conf.ReleaseSeat(); err != nil {
			return err
		}
		if err := tx.Put(profileKeyFor(caller), profile); err != nil {
			return err
		}
		if err := tx.Put(confKey, &conf); err != nil {
			return err
		}
		out = Succeeded()
		return nil
	})
	if err != nil {
		return e.done(op, StoreFailed(err))
	}
	return e.done(op, out)
}

// AddToWishlist puts the referenced session on the caller's wishlist.
func (e *Engine) AddToWishlist(ctx context.Context, caller Caller, websafeSessionKey string) Outcome {
	return e.wishlist(ctx, "wishlist_add", caller, websafeSessionKey, true)
}

// RemoveFromWishlist takes the referenced session off the caller's wishlist.
func (e *Engine) RemoveFromWishlist(ctx context.Context, caller Caller, websafeSessionKey string) Outcome {
	return e.wishlist(ctx, "wishlist_remove", caller, websafeSessionKey, false)
}

func (e *Engine) wishlist(ctx context.Context, op string, caller Caller, websafeSessionKey string, add bool) Outcome {
	if !caller.Authenticated() {
		return e.done(op, Failed(ReasonUnauthorized))
	}
	sessKey, ok := decodeKeyOfKind(websafeSessionKey, store.KindSession)
	if !ok {
		return e.done(op, Failed(ReasonNotFound))
	}
	membershipKey := sessKey.Encode()

	var out Outcome
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		// Existence check inside the transaction: best effort against a
		// session racing into or out of existence.
		var sess model.Session
		if err := tx.Get(sessKey, &sess); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		profile, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		if add {
			if !profile.AddSessionToWishlist(membershipKey) {
				out = Failed(ReasonAlreadyInWishlist)
				return nil
			}
		} else {
			if !profile.RemoveSessionFromWishlist(membershipKey) {
				out = Failed(ReasonNotInWishlist)
				return nil
			}
		}
		if err := tx.Put(profileKeyFor(caller), profile); err != nil {
			return err
		}
		out = Succeeded()
		return nil
	})
	if err != nil {
		return e.done(op, StoreFailed(err))
	}
	return e.done(op, out)
}

// CreateConference allocates a conference under the organizer's profile,
// persists both in one transaction, and enqueues the confirmation e-mail
// job transactionally, so a retried unit of work never duplicates it.
func (e *Engine) CreateConference(ctx context.Context, caller Caller, form model.ConferenceForm) (*model.Conference, Outcome) {
	const op = "create_conference"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	if err := form.Validate(); err != nil {
		return nil, e.done(op, Failed(ReasonForbidden))
	}
	profileKey := profileKeyFor(caller)

	var created *model.Conference
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		profile, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		id, err := tx.AllocateID(store.KindConference, profileKey)
		if err != nil {
			return err
		}
		conf := model.NewConference(id, caller.ID, form)
		confKey := store.IDKey(store.KindConference, id, profileKey)
		conf.WebsafeKey = confKey.Encode()
		if err := tx.Put(confKey, conf); err != nil {
			return err
		}
		if err := tx.Put(profileKey, profile); err != nil {
			return err
		}
		tx.Enqueue(TaskSendConfirmationEmail, map[string]string{
			ParamEmail:          profile.MainEmail,
			ParamConferenceInfo: conf.Summary(),
		})
		created = conf
		return nil
	})
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return created, e.done(op, Succeeded())
}

// CreateSession allocates a session under the conference. Only the
// conference's organizer may create sessions for it.
func (e *Engine) CreateSession(ctx context.Context, caller Caller, websafeConferenceKey string, form model.SessionForm) (*model.Session, Outcome) {
	const op = "create_session"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	if err := form.Validate(); err != nil {
		return nil, e.done(op, Failed(ReasonForbidden))
	}
	confKey, ok := decodeKeyOfKind(websafeConferenceKey, store.KindConference)
	if !ok {
		return nil, e.done(op, Failed(ReasonNotFound))
	}

	var (
		created *model.Session
		out     Outcome
	)
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		var conf model.Conference
		if err := tx.Get(confKey, &conf); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		if conf.OrganizerUserID != caller.ID {
			out = Failed(ReasonForbidden)
			return nil
		}
		id, err := tx.AllocateID(store.KindSession, confKey)
		if err != nil {
			return err
		}
		sess, err := model.NewSession(id, conf.ID, form)
		if err != nil {
			out = Failed(ReasonForbidden)
			return nil
		}
		sessKey := store.IDKey(store.KindSession, id, confKey)
		sess.WebsafeKey = sessKey.Encode()
		if err := tx.Put(sessKey, sess); err != nil {
			return err
		}
		tx.Enqueue(TaskSetFeaturedSpeaker, map[string]string{
			ParamSpeaker: sess.Speaker,
		})
		created = sess
		out = Succeeded()
		return nil
	})
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	if !out.OK {
		return nil, e.done(op, out)
	}
	return created, e.done(op, out)
}

// UpdateSession replaces a session's fields. Organizer only.
func (e *Engine) UpdateSession(ctx context.Context, caller Caller, websafeSessionKey string, form model.SessionForm) (*model.Session, Outcome) {
	const op = "update_session"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}
	if err := form.Validate(); err != nil {
		return nil, e.done(op, Failed(ReasonForbidden))
	}
	sessKey, ok := decodeKeyOfKind(websafeSessionKey, store.KindSession)
	if !ok || sessKey.Parent == nil || sessKey.Parent.Kind != store.KindConference {
		return nil, e.done(op, Failed(ReasonNotFound))
	}
	confKey := sessKey.Parent

	var (
		updated *model.Session
		out     Outcome
	)
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		var sess model.Session
		if err := tx.Get(sessKey, &sess); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		var conf model.Conference
		if err := tx.Get(confKey, &conf); err != nil {
			if errors.Is(err, store.ErrNoSuchEntity) {
				out = Failed(ReasonNotFound)
				return nil
			}
			return err
		}
		if conf.OrganizerUserID != caller.ID {
			out = Failed(ReasonForbidden)
			return nil
		}
		if err := sess.UpdateWithForm(form); err != nil {
			out = Failed(ReasonForbidden)
			return nil
		}
		if err := tx.Put(sessKey, &sess); err != nil {
			return err
		}
		updated = &sess
		out = Succeeded()
		return nil
	})
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	if !out.OK {
		return nil, e.done(op, out)
	}
	return updated, e.done(op, out)
}

// SaveProfile creates or updates the caller's profile from a form.
func (e *Engine) SaveProfile(ctx context.Context, caller Caller, form model.ProfileForm) (*model.Profile, Outcome) {
	const op = "save_profile"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}

	var saved *model.Profile
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		profile, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		profile.Update(form.DisplayName, form.TeeShirtSize)
		if err := tx.Put(profileKeyFor(caller), profile); err != nil {
			return err
		}
		saved = profile
		return nil
	})
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return saved, e.done(op, Succeeded())
}

// GetProfile returns the caller's profile, creating a default one lazily
// on first authenticated access.
func (e *Engine) GetProfile(ctx context.Context, caller Caller) (*model.Profile, Outcome) {
	const op = "get_profile"
	if !caller.Authenticated() {
		return nil, e.done(op, Failed(ReasonUnauthorized))
	}

	var profile *model.Profile
	err := e.store.RunInTransaction(ctx, func(tx store.Tx) error {
		p, err := loadOrCreateProfile(tx, caller)
		if err != nil {
			return err
		}
		if err := tx.Put(profileKeyFor(caller), p); err != nil {
			return err
		}
		profile = p
		return nil
	})
	if err != nil {
		return nil, e.done(op, StoreFailed(err))
	}
	return profile, e.done(op, Succeeded())
}
