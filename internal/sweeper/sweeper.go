// Package sweeper runs eager garbage collection of expired state on a
// cron schedule. Lazy expiry checks on read remain the correctness
// mechanism everywhere; sweeping just reclaims memory and rows early.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/herald/internal/audit"
	"github.com/nextlevelbuilder/herald/internal/dedup"
	"github.com/nextlevelbuilder/herald/internal/pending"
	"github.com/nextlevelbuilder/herald/internal/tracker"
)

// DefaultSchedule sweeps every ten minutes.
const DefaultSchedule = "*/10 * * * *"

// Sweeper periodically purges expired pending items, dedup records,
// tracker state, and processed-mention keys.
type Sweeper struct {
	schedule string
	gron     *gronx.Gronx
	store    *pending.Store
	dedup    *dedup.Engine
	tracker  *tracker.Tracker
	mentions audit.MentionLog
}

// New creates a Sweeper. An empty or invalid schedule falls back to
// DefaultSchedule.
func New(schedule string, store *pending.Store, de *dedup.Engine, tr *tracker.Tracker, mentions audit.MentionLog) *Sweeper {
	g := gronx.New()
	if schedule == "" || !g.IsValid(schedule) {
		if schedule != "" {
			slog.Warn("sweeper: invalid schedule, using default", "schedule", schedule)
		}
		schedule = DefaultSchedule
	}
	return &Sweeper{
		schedule: schedule,
		gron:     g,
		store:    store,
		dedup:    de,
		tracker:  tr,
		mentions: mentions,
	}
}

// Run ticks once a minute and sweeps when the schedule is due. Blocks
// until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			due, err := s.gron.IsDue(s.schedule, time.Now())
			if err != nil || !due {
				continue
			}
			s.Sweep(ctx)
		}
	}
}

// Sweep purges all expired state once.
func (s *Sweeper) Sweep(ctx context.Context) {
	dropped := s.store.SweepExpired(ctx)
	purgedDedup := s.dedup.Purge()
	purgedTracker := s.tracker.PurgeExpired()

	var purgedMentions int64
	if s.mentions != nil {
		n, err := s.mentions.PurgeOlderThan(ctx, audit.MentionTTL)
		if err != nil {
			slog.Warn("sweeper: mention purge failed", "error", err)
		} else {
			purgedMentions = n
		}
	}

	slog.Debug("sweeper: pass complete",
		"pending", dropped, "dedup", purgedDedup,
		"tracker", purgedTracker, "mentions", purgedMentions)
}
