package manifest

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// nextCronDuration returns the duration from now until the next fire time
// of expr. Returns 0 on parse error.
func nextCronDuration(expr string, now time.Time) time.Duration {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return 0
	}
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Reconciler periodically runs Rebuild on a cron schedule.
type Reconciler struct {
	Index         *Index
	Runs          RunLister
	StoreLocation string
	Schedule      string
	Logger        zerolog.Logger
}

// Run blocks until ctx is cancelled, rebuilding the index at each fire
// time. It returns immediately when Schedule is empty or invalid.
func (r *Reconciler) Run(ctx context.Context) {
	if r.Schedule == "" {
		return
	}
	d := nextCronDuration(r.Schedule, time.Now())
	if d <= 0 {
		r.Logger.Warn().Str("schedule", r.Schedule).Msg("reconcile schedule is not valid, disabled")
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.fire(ctx)
			if d := nextCronDuration(r.Schedule, time.Now()); d > 0 {
				timer.Reset(d)
			}
		}
	}
}

func (r *Reconciler) fire(ctx context.Context) {
	rep, err := r.Index.Rebuild(ctx, r.Runs, r.StoreLocation)
	if err != nil {
		r.Logger.Error().Err(err).Msg("index reconcile failed")
		return
	}
	r.Logger.Info().
		Int("scanned", rep.Scanned).
		Int("written", rep.Written).
		Str("latest", rep.Latest).
		Msg("index reconciled")
}
