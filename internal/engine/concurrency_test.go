package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// TestConcurrentRegistrationsNeverOversell races many distinct attendees
// at a small conference and checks that exactly capacity-many succeed,
// everyone else is told the conference is sold out, and the seat counter
// lands on zero.
func TestConcurrentRegistrationsNeverOversell(t *testing.T) {
	const attendees = 50
	const seats = 10

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, seats)

	var mu sync.Mutex
	counts := make(map[Reason]int)

	var g errgroup.Group
	for i := 0; i < attendees; i++ {
		caller := Caller{
			ID:    fmt.Sprintf("attendee-%d", i),
			Email: fmt.Sprintf("attendee-%d@example.com", i),
		}
		g.Go(func() error {
			out := eng.Register(ctx, caller, conf.WebsafeKey)
			mu.Lock()
			counts[out.Reason]++
			mu.Unlock()
			if out.Reason == ReasonStoreFailure {
				return out.Cause()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, seats, counts[ReasonSuccess])
	require.Equal(t, attendees-seats, counts[ReasonSoldOut])
	require.Equal(t, 0, seatsAvailable(t, eng, conf.WebsafeKey))
}

// TestConcurrentRegisterAndUnregisterKeepsCounterConsistent interleaves
// registrations and cancellations by the same population; afterwards the
// booked-seat count must equal the number of profiles still registered.
func TestConcurrentRegisterAndUnregisterKeepsCounterConsistent(t *testing.T) {
	const attendees = 20

	eng, _ := newTestEngine(t)
	ctx := context.Background()
	conf := mustCreateConference(t, eng, alice, attendees)

	var g errgroup.Group
	for i := 0; i < attendees; i++ {
		caller := Caller{
			ID:    fmt.Sprintf("attendee-%d", i),
			Email: fmt.Sprintf("attendee-%d@example.com", i),
		}
		unregister := i%2 == 0
		g.Go(func() error {
			if out := eng.Register(ctx, caller, conf.WebsafeKey); out.Reason == ReasonStoreFailure {
				return out.Cause()
			}
			if unregister {
				if out := eng.Unregister(ctx, caller, conf.WebsafeKey); out.Reason == ReasonStoreFailure {
					return out.Cause()
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	stillRegistered := 0
	for i := 0; i < attendees; i++ {
		caller := Caller{ID: fmt.Sprintf("attendee-%d", i)}
		confs, out := eng.ConferencesToAttend(ctx, caller)
		require.True(t, out.OK)
		stillRegistered += len(confs)
	}
	booked := conf.MaxAttendees - seatsAvailable(t, eng, conf.WebsafeKey)
	require.Equal(t, stillRegistered, booked)
}
