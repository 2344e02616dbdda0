package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confcentral/backend/internal/cache"
	"github.com/confcentral/backend/internal/engine"
	"github.com/confcentral/backend/internal/model"
	"github.com/confcentral/backend/internal/store"
	"github.com/confcentral/backend/internal/store/memstore"
)

func newFixture(t *testing.T) (*Notifier, *memstore.Store, *cache.Cache, *engine.Engine) {
	t.Helper()
	st := memstore.New()
	c := cache.New()
	return New(st, c, Options{}), st, c, engine.New(st, c)
}

func putConference(t *testing.T, st *memstore.Store, id int64, name string, seats, capacity int) {
	t.Helper()
	organizer := store.NameKey(store.KindProfile, "organizer", nil)
	conf := model.NewConference(id, "organizer", model.ConferenceForm{
		Name:         name,
		MaxAttendees: capacity,
	})
	conf.SeatsAvailable = seats
	key := store.IDKey(store.KindConference, conf.ID, organizer)
	conf.WebsafeKey = key.Encode()
	require.NoError(t, st.Put(context.Background(), key, conf))
}

func TestDrainCompletesConfirmationTask(t *testing.T) {
	n, st, _, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, st.RunInTransaction(ctx, func(tx store.Tx) error {
		tx.Enqueue(engine.TaskSendConfirmationEmail, map[string]string{
			engine.ParamEmail:          "alice@example.com",
			engine.ParamConferenceInfo: "GopherCon in Denver",
		})
		return nil
	}))

	require.NoError(t, n.Drain(ctx))

	tasks, err := st.LeaseTasks(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, tasks, "handled task must be completed, not released")
}

func TestConfirmationTaskWithoutEmailKeepsLease(t *testing.T) {
	n, st, _, _ := newFixture(t)
	ctx := context.Background()

	require.NoError(t, st.RunInTransaction(ctx, func(tx store.Tx) error {
		tx.Enqueue(engine.TaskSendConfirmationEmail, nil)
		return nil
	}))

	require.NoError(t, n.Drain(ctx))

	// The failed task stays leased and becomes claimable again later.
	tasks, err := st.LeaseTasks(ctx, 10, time.Minute)
	require.NoError(t, err)
	require.Empty(t, tasks)
}

func TestFeaturedSpeakerBelowThreshold(t *testing.T) {
	n, _, c, eng := newFixture(t)
	ctx := context.Background()
	organizer := engine.Caller{ID: "organizer", Email: "org@example.com"}

	conf, out := eng.CreateConference(ctx, organizer, model.ConferenceForm{
		Name: "GopherCon", MaxAttendees: 10,
	})
	require.True(t, out.OK)
	_, out = eng.CreateSession(ctx, organizer, conf.WebsafeKey, model.SessionForm{
		Speaker: "Rob", Type: model.SessionLecture,
	})
	require.True(t, out.OK)

	require.NoError(t, n.setFeaturedSpeaker(ctx, "Rob"))
	_, found := c.FeaturedSpeaker()
	require.False(t, found, "one session must not feature the speaker")
}

func TestFeaturedSpeakerAtThreshold(t *testing.T) {
	n, _, c, eng := newFixture(t)
	ctx := context.Background()
	organizer := engine.Caller{ID: "organizer", Email: "org@example.com"}

	conf, out := eng.CreateConference(ctx, organizer, model.ConferenceForm{
		Name: "GopherCon", MaxAttendees: 10,
	})
	require.True(t, out.OK)
	for _, st := range []model.SessionType{model.SessionLecture, model.SessionKeynote} {
		_, out = eng.CreateSession(ctx, organizer, conf.WebsafeKey, model.SessionForm{
			Speaker: "Rob", Type: st,
		})
		require.True(t, out.OK)
	}

	require.NoError(t, n.setFeaturedSpeaker(ctx, "Rob"))
	msg, found := c.FeaturedSpeaker()
	require.True(t, found)
	require.Contains(t, msg, "Featured speaker Rob")
	require.Contains(t, msg, "LECTURE")
	require.Contains(t, msg, "KEYNOTE")
}

func TestDrainRunsFeaturedSpeakerTask(t *testing.T) {
	n, _, c, eng := newFixture(t)
	ctx := context.Background()
	organizer := engine.Caller{ID: "organizer", Email: "org@example.com"}

	conf, out := eng.CreateConference(ctx, organizer, model.ConferenceForm{
		Name: "GopherCon", MaxAttendees: 10,
	})
	require.True(t, out.OK)
	for i := 0; i < 2; i++ {
		_, out = eng.CreateSession(ctx, organizer, conf.WebsafeKey, model.SessionForm{
			Speaker: "Rob", Type: model.SessionWorkshop,
		})
		require.True(t, out.OK)
	}

	require.NoError(t, n.Drain(ctx))
	_, found := c.FeaturedSpeaker()
	require.True(t, found, "the second session's task must feature the speaker")
}

func TestRecomputeAnnouncementWindow(t *testing.T) {
	n, st, c, _ := newFixture(t)
	ctx := context.Background()

	putConference(t, st, 1, "Roomy", 50, 100)
	putConference(t, st, 2, "SoldOut", 0, 10)

	require.NoError(t, n.RecomputeAnnouncement(ctx))
	_, found := c.Announcement()
	require.False(t, found, "neither roomy nor sold-out conferences are announced")

	putConference(t, st, 3, "Tight", 2, 10)
	putConference(t, st, 4, "Tighter", 1, 10)

	require.NoError(t, n.RecomputeAnnouncement(ctx))
	msg, found := c.Announcement()
	require.True(t, found)
	require.Equal(t, "The following conferences are nearly sold out: Tighter Tight", msg)
}

func TestAnnouncementSurvivesEmptyRecompute(t *testing.T) {
	n, st, c, _ := newFixture(t)
	ctx := context.Background()

	putConference(t, st, 1, "Tight", 3, 10)
	require.NoError(t, n.RecomputeAnnouncement(ctx))
	_, found := c.Announcement()
	require.True(t, found)

	// The window closing does not clear the last announcement.
	putConference(t, st, 1, "Tight", 10, 10)
	require.NoError(t, n.RecomputeAnnouncement(ctx))
	msg, found := c.Announcement()
	require.True(t, found)
	require.Contains(t, msg, "Tight")
}
