package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confcentral/backend/internal/cache"
	"github.com/confcentral/backend/internal/model"
	"github.com/confcentral/backend/internal/store"
	"github.com/confcentral/backend/internal/store/memstore"
)

var (
	alice = Caller{ID: "alice-id", Email: "alice@example.com"}
	bob   = Caller{ID: "bob-id", Email: "bob@example.com"}
)

func newTestEngine(t *testing.T) (*Engine, *memstore.Store) {
	t.Helper()
	st := memstore.New()
	return New(st, cache.New()), st
}

func mustCreateConference(t *testing.T, eng *Engine, organizer Caller, seats int) *model.Conference {
	t.Helper()
	conf, out := eng.CreateConference(context.Background(), organizer, model.ConferenceForm{
		Name:         "GopherCon",
		City:         "Denver",
		MaxAttendees: seats,
	})
	require.True(t, out.OK, "create conference: %v", out.Reason)
	return conf
}

func seatsAvailable(t *testing.T, eng *Engine, websafeKey string) int {
	t.Helper()
	conf, out := eng.GetConference(context.Background(), websafeKey)
	require.True(t, out.OK)
	return conf.SeatsAvailable
}

// fabricatedConferenceKey builds a well-formed key that no entity backs.
func fabricatedConferenceKey() string {
	profile := store.NameKey(store.KindProfile, "nobody", nil)
	return store.IDKey(store.KindConference, 12345, profile).Encode()
}

func TestRegisterRequiresIdentity(t *testing.T) {
	eng, _ := newTestEngine(t)
	out := eng.Register(context.Background(), Caller{}, fabricatedConferenceKey())
	require.False(t, out.OK)
	require.Equal(t, ReasonUnauthorized, out.Reason)
}

func TestRegisterUnknownConference(t *testing.T) {
	eng, _ := newTestEngine(t)
	out := eng.Register(context.Background(), alice, fabricatedConferenceKey())
	require.Equal(t, ReasonNotFound, out.Reason)
}

func TestRegisterGarbageKey(t *testing.T) {
	eng, _ := newTestEngine(t)
	out := eng.Register(context.Background(), alice, "not-a-key")
	require.Equal(t, ReasonNotFound, out.Reason)
}

func TestRegisterTwiceSameProfile(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 10)

	out := eng.Register(ctx, bob, conf.WebsafeKey)
	require.True(t, out.OK)
	require.Equal(t, 9, seatsAvailable(t, eng, conf.WebsafeKey), "first registration books one seat")

	out = eng.Register(ctx, bob, conf.WebsafeKey)
	require.Equal(t, ReasonAlreadyRegistered, out.Reason)
	require.Equal(t, 9, seatsAvailable(t, eng, conf.WebsafeKey), "duplicate registration must not mutate")
}

func TestRegisterSoldOut(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 1)

	require.True(t, eng.Register(ctx, alice, conf.WebsafeKey).OK)

	out := eng.Register(ctx, bob, conf.WebsafeKey)
	require.Equal(t, ReasonSoldOut, out.Reason)
	require.Equal(t, 0, seatsAvailable(t, eng, conf.WebsafeKey))

	// Bob's profile must be untouched by the failed attempt.
	attending, listOut := eng.ConferencesToAttend(ctx, bob)
	if listOut.OK {
		require.Empty(t, attending)
	} else {
		require.Equal(t, ReasonNotFound, listOut.Reason)
	}
}

func TestUnregisterNeverRegistered(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 5)

	out := eng.Unregister(ctx, bob, conf.WebsafeKey)
	require.Equal(t, ReasonNotRegistered, out.Reason)
	require.Equal(t, 5, seatsAvailable(t, eng, conf.WebsafeKey))
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 5)

	require.True(t, eng.Register(ctx, bob, conf.WebsafeKey).OK)
	require.True(t, eng.Unregister(ctx, bob, conf.WebsafeKey).OK)

	require.Equal(t, 5, seatsAvailable(t, eng, conf.WebsafeKey))
	attending, out := eng.ConferencesToAttend(ctx, bob)
	require.True(t, out.OK)
	require.Empty(t, attending)
}

// TestSingleSeatScenario walks the canonical single-seat sequence:
// A registers, B is sold out, A unregisters, B gets the seat.
func TestSingleSeatScenario(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 1)
	organizerKey := conf.WebsafeKey

	require.True(t, eng.Register(ctx, alice, organizerKey).OK)
	require.Equal(t, 0, seatsAvailable(t, eng, organizerKey))

	require.Equal(t, ReasonSoldOut, eng.Register(ctx, bob, organizerKey).Reason)

	require.True(t, eng.Unregister(ctx, alice, organizerKey).OK)
	require.Equal(t, 1, seatsAvailable(t, eng, organizerKey))

	require.True(t, eng.Register(ctx, bob, organizerKey).OK)
	require.Equal(t, 0, seatsAvailable(t, eng, organizerKey))
}

func mustCreateSession(t *testing.T, eng *Engine, organizer Caller, confKey, speaker string) *model.Session {
	t.Helper()
	sess, out := eng.CreateSession(context.Background(), organizer, confKey, model.SessionForm{
		Speaker: speaker,
		Type:    model.SessionLecture,
	})
	require.True(t, out.OK, "create session: %v", out.Reason)
	return sess
}

func TestWishlistAddRemoveRules(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 1)
	sess := mustCreateSession(t, eng, alice, conf.WebsafeKey, "Rob")

	// Wishlist is independent of conference capacity: the conference has a
	// single seat and no registration happens here.
	require.True(t, eng.AddToWishlist(ctx, bob, sess.WebsafeKey).OK)
	require.Equal(t, ReasonAlreadyInWishlist, eng.AddToWishlist(ctx, bob, sess.WebsafeKey).Reason)

	wishlist, out := eng.WishlistSessions(ctx, bob)
	require.True(t, out.OK)
	require.Len(t, wishlist, 1)
	require.Equal(t, "Rob", wishlist[0].Speaker)

	require.True(t, eng.RemoveFromWishlist(ctx, bob, sess.WebsafeKey).OK)
	require.Equal(t, ReasonNotInWishlist, eng.RemoveFromWishlist(ctx, bob, sess.WebsafeKey).Reason)
}

func TestWishlistUnknownSession(t *testing.T) {
	eng, _ := newTestEngine(t)
	profile := store.NameKey(store.KindProfile, "nobody", nil)
	conf := store.IDKey(store.KindConference, 1, profile)
	ghost := store.IDKey(store.KindSession, 99, conf).Encode()

	out := eng.AddToWishlist(context.Background(), bob, ghost)
	require.Equal(t, ReasonNotFound, out.Reason)
}

func TestCreateSessionForbiddenForNonOrganizer(t *testing.T) {
	eng, _ := newTestEngine(t)
	conf := mustCreateConference(t, eng, alice, 10)

	_, out := eng.CreateSession(context.Background(), bob, conf.WebsafeKey, model.SessionForm{
		Speaker: "Rob",
	})
	require.Equal(t, ReasonForbidden, out.Reason)

	sessions, listOut := eng.SessionsOfConference(context.Background(), conf.WebsafeKey)
	require.True(t, listOut.OK)
	require.Empty(t, sessions, "forbidden creation must not persist a session")
}

func TestCreateSessionWithoutSpeaker(t *testing.T) {
	eng, _ := newTestEngine(t)
	conf := mustCreateConference(t, eng, alice, 10)

	_, out := eng.CreateSession(context.Background(), alice, conf.WebsafeKey, model.SessionForm{
		Duration: "1h",
	})
	require.False(t, out.OK)

	sessions, listOut := eng.SessionsOfConference(context.Background(), conf.WebsafeKey)
	require.True(t, listOut.OK)
	require.Empty(t, sessions, "speakerless creation must not persist a session")
}

func TestCreateConferenceEnqueuesConfirmationOnce(t *testing.T) {
	eng, st := newTestEngine(t)
	mustCreateConference(t, eng, alice, 10)

	tasks, err := st.LeaseTasks(context.Background(), 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskSendConfirmationEmail, tasks[0].Name)
	require.Equal(t, alice.Email, tasks[0].Params[ParamEmail])
	require.Contains(t, tasks[0].Params[ParamConferenceInfo], "GopherCon")
}

func TestCreateSessionEnqueuesFeaturedSpeakerJob(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 10)

	// Drop the conference-creation task so only the session job remains.
	tasks, err := st.LeaseTasks(ctx, 10, time.Minute)
	require.NoError(t, err)
	for _, task := range tasks {
		require.NoError(t, st.CompleteTask(ctx, task.ID))
	}

	mustCreateSession(t, eng, alice, conf.WebsafeKey, "Rob")

	tasks, err = st.LeaseTasks(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, TaskSetFeaturedSpeaker, tasks[0].Name)
	require.Equal(t, "Rob", tasks[0].Params[ParamSpeaker])
}

func TestGetProfileCreatesLazily(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()

	profile, out := eng.GetProfile(ctx, alice)
	require.True(t, out.OK)
	require.Equal(t, alice.ID, profile.UserID)
	require.Equal(t, "alice", profile.DisplayName)
	require.Equal(t, model.SizeNotSpecified, profile.TeeShirtSize)

	// The lazily created profile is persisted.
	saved, out := eng.SaveProfile(ctx, alice, model.ProfileForm{DisplayName: "Alice"})
	require.True(t, out.OK)
	require.Equal(t, "Alice", saved.DisplayName)

	again, out := eng.GetProfile(ctx, alice)
	require.True(t, out.OK)
	require.Equal(t, "Alice", again.DisplayName)
}

func TestSaveProfileUnauthenticated(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, out := eng.SaveProfile(context.Background(), Caller{}, model.ProfileForm{})
	require.Equal(t, ReasonUnauthorized, out.Reason)
}

func TestConferenceListings(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	confA := mustCreateConference(t, eng, alice, 5)
	confB := mustCreateConference(t, eng, bob, 5)

	all, out := eng.ListConferences(ctx)
	require.True(t, out.OK)
	require.Len(t, all, 2)

	created, out := eng.ConferencesCreated(ctx, alice)
	require.True(t, out.OK)
	require.Len(t, created, 1)
	require.Equal(t, confA.WebsafeKey, created[0].WebsafeKey)

	require.True(t, eng.Register(ctx, alice, confB.WebsafeKey).OK)
	attending, out := eng.ConferencesToAttend(ctx, alice)
	require.True(t, out.OK)
	require.Len(t, attending, 1)
	require.Equal(t, confB.WebsafeKey, attending[0].WebsafeKey)
}

func TestSessionsBySpeaker(t *testing.T) {
	eng, _ := newTestEngine(t)
	confA := mustCreateConference(t, eng, alice, 5)
	confB := mustCreateConference(t, eng, bob, 5)
	mustCreateSession(t, eng, alice, confA.WebsafeKey, "Rob")
	mustCreateSession(t, eng, bob, confB.WebsafeKey, "Rob")
	mustCreateSession(t, eng, bob, confB.WebsafeKey, "Anna")

	sessions, out := eng.SessionsBySpeaker(context.Background(), "Rob")
	require.True(t, out.OK)
	require.Len(t, sessions, 2, "speaker listing crosses conferences")
}

func TestUpdateSession(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, 5)
	sess := mustCreateSession(t, eng, alice, conf.WebsafeKey, "Rob")

	_, out := eng.UpdateSession(ctx, bob, sess.WebsafeKey, model.SessionForm{Speaker: "Eve"})
	require.Equal(t, ReasonForbidden, out.Reason)

	updated, out := eng.UpdateSession(ctx, alice, sess.WebsafeKey, model.SessionForm{
		Speaker:  "Rob",
		Location: "Main Hall",
	})
	require.True(t, out.OK)
	require.Equal(t, "Main Hall", updated.Location)
}
