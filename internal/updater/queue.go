package updater

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"beatline/internal/beatmap"
	"beatline/internal/library"
	"beatline/internal/logging"
)

// keyState tracks one set with a run in flight. Callers that arrive during
// the run wait in followers and are served by a single follow-up run.
type keyState struct {
	followers []chan error
}

// Queue schedules a background update of the set behind live and returns
// immediately. The returned channel receives the run's result and is then
// closed. Ignoring it is fine.
func (u *Updater) Queue(live library.Live) <-chan error {
	done := make(chan error, 1)
	id := live.ID()

	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		done <- ErrClosed
		close(done)
		return done
	}
	if state, running := u.keys[id]; running {
		if len(state.followers) > 0 {
			coalescedTotal.Inc()
		}
		state.followers = append(state.followers, done)
		u.mu.Unlock()
		return done
	}
	u.keys[id] = &keyState{}
	inFlightRuns.Inc()
	u.mu.Unlock()

	go u.runKey(live, []chan error{done})
	return done
}

// Wait blocks until no set has a running or pending update.
func (u *Updater) Wait() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for len(u.keys) > 0 {
		u.idle.Wait()
	}
}

// Close stops accepting work, cancels running updates and waits for them to
// finish.
func (u *Updater) Close() {
	u.mu.Lock()
	u.closed = true
	u.mu.Unlock()

	u.cancel()
	u.Wait()
}

func (u *Updater) runKey(live library.Live, waiters []chan error) {
	id := live.ID()
	for {
		err := u.runOnce(live)
		for _, ch := range waiters {
			ch <- err
			close(ch)
		}

		u.mu.Lock()
		state := u.keys[id]
		if len(state.followers) == 0 {
			delete(u.keys, id)
			inFlightRuns.Dec()
			u.idle.Broadcast()
			u.mu.Unlock()
			return
		}
		waiters = state.followers
		state.followers = nil
		u.mu.Unlock()
	}
}

func (u *Updater) runOnce(live library.Live) (err error) {
	ctx := logging.WithSetID(u.runCtx, live.ID().String())
	ctx = logging.WithRunID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, u.logger)

	select {
	case u.slots <- struct{}{}:
	case <-ctx.Done():
		runsTotal.WithLabelValues("cancelled").Inc()
		return ctx.Err()
	}
	defer func() { <-u.slots }()

	start := time.Now()
	var beatmaps int
	err = live.PerformWrite(ctx, func(tx *library.Tx, set *beatmap.SetInfo) error {
		beatmaps = len(set.Beatmaps)
		return u.ProcessInTx(ctx, set, tx)
	})
	elapsed := time.Since(start)
	runDuration.Observe(elapsed.Seconds())

	switch {
	case err == nil:
		runsTotal.WithLabelValues("success").Inc()
		logger.Info("set updated",
			logging.Int("beatmaps", beatmaps),
			logging.Duration("duration", elapsed))
	case errors.Is(err, library.ErrSetNotFound):
		runsTotal.WithLabelValues("missing").Inc()
		logger.Debug("set removed before update ran", logging.Error(err))
	case errors.Is(err, context.Canceled):
		runsTotal.WithLabelValues("cancelled").Inc()
	default:
		runsTotal.WithLabelValues("failure").Inc()
		logging.ErrorWithContext(logger, "set update failed", "update_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "derived metadata keeps its previous values"))
	}
	return err
}
