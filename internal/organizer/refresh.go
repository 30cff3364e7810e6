package organizer

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	appLog "pawplan/internal/log"
	"pawplan/internal/session"
)

// refresher periodically re-enters the open transition for sessions that
// are not live, recovering ones left stuck in Opening by a failed fetch or
// feed handshake. Open consumes the previous feed handle, so a scheduled
// refresh can never stack a second feed on a healthy session.
type refresher struct {
	cron *cron.Cron
	stop context.CancelFunc
}

// StartAutoRefresh schedules session recovery on a cron spec
// (e.g. "*/5 * * * *"). Only sessions not currently Open are reopened.
func (o *Organizer) StartAutoRefresh(spec string) error {
	if o.refresher != nil {
		return fmt.Errorf("auto refresh already started")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := cron.New()

	var mu sync.Mutex
	_, err := c.AddFunc(spec, func() {
		// Skip if a previous run is still in flight.
		if !mu.TryLock() {
			return
		}
		defer mu.Unlock()
		o.refreshStalled(ctx)
	})
	if err != nil {
		cancel()
		return fmt.Errorf("auto refresh: bad cron spec %q: %w", spec, err)
	}

	c.Start()
	o.refresher = &refresher{cron: c, stop: cancel}
	appLog.Info("auto refresh scheduled", "spec", spec, "owner", o.owner)
	return nil
}

// StopAutoRefresh stops the schedule. Safe to call when never started.
func (o *Organizer) StopAutoRefresh() {
	if o.refresher == nil {
		return
	}
	o.refresher.stop()
	stopCtx := o.refresher.cron.Stop()
	<-stopCtx.Done()
	o.refresher = nil
}

func (o *Organizer) refreshStalled(ctx context.Context) {
	type named struct {
		name string
		open func(context.Context) error
		is   func() session.State
	}
	all := []named{
		{"events", o.events.Open, o.events.State},
		{"pets", o.pets.Open, o.pets.State},
		{"shopping", o.shopping.Open, o.shopping.State},
		{"expenses", o.expenses.Open, o.expenses.State},
	}

	for _, s := range all {
		if ctx.Err() != nil {
			return
		}
		if s.is() != session.StateOpening {
			continue
		}
		appLog.Info("auto refresh reopening stalled session", "collection", s.name)
		if err := s.open(ctx); err != nil {
			appLog.Warn("auto refresh reopen failed", "collection", s.name, "err", err)
		}
	}
}
