package queue

import (
	"context"
	"math/rand"
	"time"

	"github.com/cockroachdb/pebble"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// Sweep reclaims expired leases across every queue. Correctness never
// depends on it, since reclaim runs lazily at the next pop/peek/length; a
// periodic sweep shortens the window in which a stalled job sits invisible.
func (e *Engine) Sweep(ctx context.Context, nowMs int64) (int, error) {
	now := nowOr(nowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	lo, hi := keyRange(prefixQueues)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	var names []string
	for ok := iter.First(); ok; ok = iter.Next() {
		names = append(names, nameFromMarkerKey(iter.Key(), len(prefixQueues)))
	}
	_ = iter.Close()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	var events []Event
	for _, name := range names {
		evs, err := e.reclaimExpired(b, name, now)
		if err != nil {
			return 0, err
		}
		events = append(events, evs...)
	}
	if err := e.commit(ctx, b, events); err != nil {
		return 0, err
	}
	return len(events), nil
}

// StartSweeper runs Sweep on a jittered interval until StopSweeper.
func (e *Engine) StartSweeper(interval time.Duration) {
	if e.sweepStop != nil {
		return
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	e.sweepStop = make(chan struct{})
	stop := e.sweepStop
	go func() {
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		for {
			select {
			case <-stop:
				return
			case <-time.After(interval + time.Duration(rng.Int63n(int64(interval/10+1)))):
				if n, err := e.Sweep(context.Background(), 0); err != nil {
					e.logger.Warn("sweep failed", logpkg.Err(err))
				} else if n > 0 {
					e.logger.Debug("sweep reclaimed leases", logpkg.Int("count", n))
				}
			}
		}
	}()
}

// StopSweeper stops the background sweeper if running.
func (e *Engine) StopSweeper() {
	if e.sweepStop != nil {
		close(e.sweepStop)
		e.sweepStop = nil
	}
}
