package debugsvc

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// IdleTTL is how long a debug session may sit untouched before the reaper
// evicts it. spec.md §3 leaves session TTL unspecified ("No TTL is
// mandated"); this is a resource-hygiene policy, not something any
// debugger command depends on.
const IdleTTL = 30 * time.Minute

// reaperSchedule runs the eviction sweep every 5 minutes.
const reaperSchedule = "@every 5m"

// Reaper periodically evicts idle debug sessions from a Store, grounded on
// the notification-service's robfig/cron-based CronScheduler.
type Reaper struct {
	cron   *cron.Cron
	store  *Store
	logger *zap.Logger
}

// NewReaper builds a Reaper over store. Call Start to begin sweeping.
func NewReaper(store *Store, logger *zap.Logger) *Reaper {
	return &Reaper{
		cron:   cron.New(),
		store:  store,
		logger: logger,
	}
}

// Start registers the sweep job and starts the scheduler.
func (r *Reaper) Start() error {
	if _, err := r.cron.AddFunc(reaperSchedule, r.sweep); err != nil {
		return err
	}
	r.cron.Start()
	r.logger.Info("debug session reaper started",
		zap.String("schedule", reaperSchedule),
		zap.Duration("idle_ttl", IdleTTL),
	)
	return nil
}

// Stop gracefully stops the reaper, waiting for any in-flight sweep.
func (r *Reaper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("debug session reaper stopped")
}

func (r *Reaper) sweep() {
	evicted := r.store.EvictIdleSince(time.Now().Add(-IdleTTL))
	if evicted > 0 {
		r.logger.Info("evicted idle debug sessions",
			zap.Int("evicted", evicted),
			zap.Int("remaining", r.store.Len()),
		)
	}
}
