// Package notifier consumes the task outbox published by committed engine
// transactions and recomputes the derived cache facts. Delivery is
// at-least-once: a task whose lease expires before completion is handled
// again. Handlers are therefore idempotent.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/confcentral/backend/internal/cache"
	"github.com/confcentral/backend/internal/engine"
	"github.com/confcentral/backend/internal/model"
	"github.com/confcentral/backend/internal/store"
)

// FeaturedSessionsThreshold is the number of sessions a speaker needs
// before being featured.
const FeaturedSessionsThreshold = 2

// nearlySoldOutLimit bounds the announcement window: conferences with
// 0 < seatsAvailable < nearlySoldOutLimit are announced.
const nearlySoldOutLimit = 5

const (
	taskBatchSize = 10
	taskLease     = time.Minute
)

// Options configure the notifier's loops.
type Options struct {
	// PollInterval is the delay between outbox polls.
	PollInterval time.Duration
	// AnnounceInterval is the delay between announcement recomputations.
	AnnounceInterval time.Duration
	// MailPerSecond rate limits confirmation e-mail sends.
	MailPerSecond float64
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = time.Second
	}
	if o.AnnounceInterval <= 0 {
		o.AnnounceInterval = time.Minute
	}
	if o.MailPerSecond <= 0 {
		o.MailPerSecond = 10
	}
}

// Notifier runs the background task and announcement loops.
type Notifier struct {
	store   store.Store
	cache   *cache.Cache
	opts    Options
	limiter *rate.Limiter
}

// New constructs a Notifier with explicit dependencies.
func New(st store.Store, c *cache.Cache, opts Options) *Notifier {
	opts.applyDefaults()
	return &Notifier{
		store:   st,
		cache:   c,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.MailPerSecond), 1),
	}
}

// Run blocks until ctx is done, driving the task loop and the periodic
// announcement sweep.
func (n *Notifier) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return n.taskLoop(ctx) })
	g.Go(func() error { return n.announceLoop(ctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (n *Notifier) taskLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.Drain(ctx); err != nil {
				log.Printf("notifier: drain tasks: %v", err)
			}
		}
	}
}

// Drain leases due tasks, handles them, and completes the ones that
// succeeded. Failed tasks keep their lease and come back later.
func (n *Notifier) Drain(ctx context.Context) error {
	for {
		tasks, err := n.store.LeaseTasks(ctx, taskBatchSize, taskLease)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		for _, t := range tasks {
			if err := n.handle(ctx, t); err != nil {
				log.Printf("notifier: task %s (%s) failed: %v", t.ID, t.Name, err)
				continue
			}
			if err := n.store.CompleteTask(ctx, t.ID); err != nil {
				return err
			}
			tasksProcessed.WithLabelValues(t.Name).Inc()
		}
	}
}

func (n *Notifier) handle(ctx context.Context, t store.Task) error {
	switch t.Name {
	case engine.TaskSendConfirmationEmail:
		return n.sendConfirmationEmail(ctx, t.Params[engine.ParamEmail], t.Params[engine.ParamConferenceInfo])
	case engine.TaskSetFeaturedSpeaker:
		return n.setFeaturedSpeaker(ctx, t.Params[engine.ParamSpeaker])
	default:
		// Unknown jobs are dropped, not retried forever.
		log.Printf("notifier: dropping unknown task %q", t.Name)
		return nil
	}
}

// sendConfirmationEmail delivers the conference-created confirmation.
// Actual SMTP delivery is environment wiring; the service logs the send.
func (n *Notifier) sendConfirmationEmail(ctx context.Context, email, conferenceInfo string) error {
	if email == "" {
		return fmt.Errorf("confirmation task without email")
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}
	body := "You have created the following conference:\n" + conferenceInfo
	log.Printf("mail to %s: %s", email, body)
	return nil
}

// setFeaturedSpeaker recomputes the featured-speaker cache entry for one
// speaker. A speaker with at least FeaturedSessionsThreshold sessions is
// featured together with their session types.
func (n *Notifier) setFeaturedSpeaker(ctx context.Context, speaker string) error {
	if speaker == "" {
		return fmt.Errorf("featured-speaker task without speaker")
	}
	records, err := n.store.List(ctx, store.KindSession, nil)
	if err != nil {
		return err
	}
	var types []string
	for _, r := range records {
		var s model.Session
		if err := r.Decode(&s); err != nil {
			return err
		}
		if s.Speaker == speaker {
			types = append(types, string(s.Type))
		}
	}
	if len(types) < FeaturedSessionsThreshold {
		return nil
	}
	n.cache.SetFeaturedSpeaker(fmt.Sprintf(
		"Featured speaker %s has the following sessions: %s",
		speaker, strings.Join(types, " ")))
	return nil
}

func (n *Notifier) announceLoop(ctx context.Context) error {
	ticker := time.NewTicker(n.opts.AnnounceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := n.RecomputeAnnouncement(ctx); err != nil {
				log.Printf("notifier: recompute announcement: %v", err)
			}
		}
	}
}

// RecomputeAnnouncement refreshes the nearly-sold-out announcement. The
// cache entry is only replaced when there is something to announce.
func (n *Notifier) RecomputeAnnouncement(ctx context.Context) error {
	records, err := n.store.List(ctx, store.KindConference, nil)
	if err != nil {
		return err
	}
	var nearly []model.Conference
	for _, r := range records {
		var c model.Conference
		if err := r.Decode(&c); err != nil {
			return err
		}
		if c.SeatsAvailable > 0 && c.SeatsAvailable < nearlySoldOutLimit {
			nearly = append(nearly, c)
		}
	}
	if len(nearly) == 0 {
		return nil
	}
	sort.Slice(nearly, func(i, j int) bool {
		return nearly[i].SeatsAvailable < nearly[j].SeatsAvailable
	})
	names := make([]string, len(nearly))
	for i, c := range nearly {
		names[i] = c.Name
	}
	n.cache.SetAnnouncement(
		"The following conferences are nearly sold out: " + strings.Join(names, " "))
	return nil
}
