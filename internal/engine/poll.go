package engine

import (
	"context"
	"errors"

	"github.com/example/archboard/internal/remote"
)

// pollLoop is the redundancy path behind the push feed: a fixed-interval
// fetch running the same echo-filter and merge sequence, in case the feed
// silently disconnects. It stops with the session context, so suspending
// synchronization cancels it cleanly.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := e.clock.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			e.pollOnce(ctx)
		}
	}
}

func (e *Engine) pollOnce(ctx context.Context) {
	e.mu.Lock()
	saving := e.savesInFlight > 0
	e.mu.Unlock()
	if saving {
		// Applying a poll result mid-save could interleave with the save's
		// own reconcile; the next tick catches up.
		return
	}

	row, err := e.store.Fetch(ctx)
	if errors.Is(err, remote.ErrNotFound) {
		// Seeding is the job of the initial sync, never the poller.
		return
	}
	if err != nil {
		e.logger.Debug().Err(err).Msg("poll fetch failed")
		return
	}

	e.handleIncoming(row)
}
