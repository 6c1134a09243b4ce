package queue

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/quarry/internal/storage/pebble"
	"github.com/rzbill/quarry/pkg/id"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// ErrNotFound is returned when an operation references an unknown job id.
var ErrNotFound = errors.New("queue: job not found")

// Options tunes engine behavior. Zero values select the defaults.
type Options struct {
	// DefaultRetries is the retry budget applied when a put does not specify
	// one. Defaults to 5.
	DefaultRetries int64
	// DefaultLeaseMs is the lease duration applied when pop/heartbeat callers
	// do not supply an expiry. Defaults to 60s.
	DefaultLeaseMs int64
	// PreserveRetriesOnRequeue keeps the remaining retry counter when a
	// complete re-queues a job into a next queue. The default resets it to
	// the budget: a requeue starts a new processing stage.
	PreserveRetriesOnRequeue bool
	// CompletedLimit bounds the completed-log ring. Defaults to 1000.
	CompletedLimit int
	// Logger receives engine logs. Defaults to a component logger.
	Logger logpkg.Logger
	// Emitter receives lifecycle events; may be nil.
	Emitter Emitter
}

const (
	defaultRetries        = 5
	defaultLeaseMs        = 60_000
	defaultCompletedLimit = 1000
)

// Engine owns every queue structure: job records, the per-queue waiting,
// scheduled, and locks indexes, the failure ledger, and the statistics
// buckets. One mutex serializes all operations and each operation applies its
// multi-key effects through a single indexed Pebble batch, so concurrent
// producers and workers never observe a job in two sets, popped twice, or
// double-decremented.
type Engine struct {
	db      *pebblestore.DB
	opts    Options
	logger  logpkg.Logger
	emitter Emitter
	stamps  *id.Generator

	mu sync.Mutex

	sweepStop chan struct{}
}

// Open builds an Engine over the given store.
func Open(db *pebblestore.DB, opts Options) *Engine {
	if opts.DefaultRetries <= 0 {
		opts.DefaultRetries = defaultRetries
	}
	if opts.DefaultLeaseMs <= 0 {
		opts.DefaultLeaseMs = defaultLeaseMs
	}
	if opts.CompletedLimit <= 0 {
		opts.CompletedLimit = defaultCompletedLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel)).WithComponent("queue")
	}
	return &Engine{
		db:      db,
		opts:    opts,
		logger:  logger,
		emitter: opts.Emitter,
		stamps:  id.NewGenerator(),
	}
}

// Close stops the sweeper if running. The underlying store is owned by the
// caller.
func (e *Engine) Close() {
	e.StopSweeper()
}

// nowOr returns nowMs, or wall-clock milliseconds when nowMs <= 0. Tests
// drive simulated time by passing explicit values.
func nowOr(nowMs int64) int64 {
	if nowMs > 0 {
		return nowMs
	}
	return time.Now().UnixMilli()
}

// batchGet reads a key through the indexed batch (batch writes layered over
// the database). The bool reports presence.
func batchGet(b *pebble.Batch, key []byte) ([]byte, bool, error) {
	v, closer, err := b.Get(key)
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	return out, true, nil
}

func (e *Engine) loadJob(b *pebble.Batch, jobID string) (*Job, bool, error) {
	v, ok, err := batchGet(b, jobKey(jobID))
	if err != nil || !ok {
		return nil, false, err
	}
	j, err := decodeJob(v)
	if err != nil {
		return nil, false, err
	}
	return j, true, nil
}

func (e *Engine) storeJob(b *pebble.Batch, j *Job) error {
	v, err := encodeJob(j)
	if err != nil {
		return err
	}
	return b.Set(jobKey(j.ID), v, nil)
}

// bumpCounters adjusts the per-queue waiting/scheduled/leased counters kept
// under q/meta/{queue}. Because they are written in the same batch as every
// transition, Length is a single-point-read atomic snapshot.
func (e *Engine) bumpCounters(b *pebble.Batch, queue string, dWait, dSched, dLease int64) error {
	key := metaKey(queue)
	var w, s, l int64
	if v, ok, err := batchGet(b, key); err != nil {
		return err
	} else if ok && len(v) >= 24 {
		w = int64(binary.BigEndian.Uint64(v[0:8]))
		s = int64(binary.BigEndian.Uint64(v[8:16]))
		l = int64(binary.BigEndian.Uint64(v[16:24]))
	}
	w += dWait
	s += dSched
	l += dLease
	if w < 0 {
		w = 0
	}
	if s < 0 {
		s = 0
	}
	if l < 0 {
		l = 0
	}
	var buf [24]byte
	binary.BigEndian.PutUint64(buf[0:8], uint64(w))
	binary.BigEndian.PutUint64(buf[8:16], uint64(s))
	binary.BigEndian.PutUint64(buf[16:24], uint64(l))
	return b.Set(key, buf[:], nil)
}

func (e *Engine) readCounters(b *pebble.Batch, queue string) (waiting, scheduled, leased int64, err error) {
	v, ok, err := batchGet(b, metaKey(queue))
	if err != nil || !ok || len(v) < 24 {
		return 0, 0, 0, err
	}
	waiting = int64(binary.BigEndian.Uint64(v[0:8]))
	scheduled = int64(binary.BigEndian.Uint64(v[8:16]))
	leased = int64(binary.BigEndian.Uint64(v[16:24]))
	return waiting, scheduled, leased, nil
}

// ensureQueue writes the queue marker on first reference. Queues are
// ephemeral: the marker only makes names enumerable.
func (e *Engine) ensureQueue(b *pebble.Batch, queue string, nowMs int64) error {
	key := queueMarkerKey(queue)
	if _, ok, err := batchGet(b, key); err != nil {
		return err
	} else if ok {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(nowMs))
	return b.Set(key, buf[:], nil)
}

// indexWaiting inserts j into its queue's waiting set.
func (e *Engine) indexWaiting(b *pebble.Batch, j *Job) error {
	if err := b.Set(waitKey(j.Queue, j.Priority, j.EnqueuedMs, j.ID), nil, nil); err != nil {
		return err
	}
	return e.bumpCounters(b, j.Queue, 1, 0, 0)
}

// indexScheduled inserts j into its queue's scheduled set.
func (e *Engine) indexScheduled(b *pebble.Batch, j *Job) error {
	if err := b.Set(schedKey(j.Queue, j.ReadyMs, j.ID), nil, nil); err != nil {
		return err
	}
	return e.bumpCounters(b, j.Queue, 0, 1, 0)
}

// indexLeased inserts j into its queue's locks set and the worker index.
func (e *Engine) indexLeased(b *pebble.Batch, j *Job) error {
	if err := b.Set(lockKey(j.Queue, j.ExpiresMs, j.ID), nil, nil); err != nil {
		return err
	}
	if err := b.Set(workerKey(j.Worker, j.ID), nil, nil); err != nil {
		return err
	}
	return e.bumpCounters(b, j.Queue, 0, 0, 1)
}

// deindex removes j from whichever structure its current state places it in.
// The record itself is left untouched.
func (e *Engine) deindex(b *pebble.Batch, j *Job) error {
	switch j.State {
	case StateWaiting:
		if err := b.Delete(waitKey(j.Queue, j.Priority, j.EnqueuedMs, j.ID), nil); err != nil {
			return err
		}
		return e.bumpCounters(b, j.Queue, -1, 0, 0)
	case StateScheduled:
		if err := b.Delete(schedKey(j.Queue, j.ReadyMs, j.ID), nil); err != nil {
			return err
		}
		return e.bumpCounters(b, j.Queue, 0, -1, 0)
	case StateLeased:
		if err := b.Delete(lockKey(j.Queue, j.ExpiresMs, j.ID), nil); err != nil {
			return err
		}
		if err := b.Delete(workerKey(j.Worker, j.ID), nil); err != nil {
			return err
		}
		return e.bumpCounters(b, j.Queue, 0, 0, -1)
	case StateFailed:
		if j.Failure != nil {
			return b.Delete(failedKey(j.Failure.Category, j.ID), nil)
		}
		return nil
	default:
		return nil
	}
}

func (e *Engine) setTags(b *pebble.Batch, jobID string, old, next []string) error {
	for _, t := range old {
		if err := b.Delete(tagKey(t, jobID), nil); err != nil {
			return err
		}
	}
	for _, t := range next {
		if err := b.Set(tagKey(t, jobID), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) deleteTags(b *pebble.Batch, jobID string, tags []string) error {
	for _, t := range tags {
		if err := b.Delete(tagKey(t, jobID), nil); err != nil {
			return err
		}
	}
	return nil
}

// schedEntry and lockEntry are collected during an index scan; mutations are
// applied after the iterator closes.
type indexEntry struct {
	key   []byte
	jobID string
	sort  int64
}

// scanIndex collects up to max entries under prefix whose sort field is
// below bound (bound <= 0 disables the cutoff). fixedLen is the number of
// fixed bytes between the prefix and the job id; sortOff is the offset of
// the 8-byte sort field within those fixed bytes.
func scanIndex(b *pebble.Batch, prefix string, fixedLen, sortOff, max int, bound int64) ([]indexEntry, error) {
	lo, hi := keyRange(prefix)
	iter, err := b.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []indexEntry
	for ok := iter.First(); ok; ok = iter.Next() {
		k := iter.Key()
		sortVal, valid := sortFieldFromIndexKey(k, len(prefix), sortOff)
		if !valid {
			continue
		}
		if bound > 0 && int64(sortVal) >= bound {
			break
		}
		out = append(out, indexEntry{
			key:   append([]byte(nil), k...),
			jobID: idFromIndexKey(k, len(prefix), fixedLen),
			sort:  int64(sortVal),
		})
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out, nil
}

// promoteDue moves every scheduled job with ready time <= now into waiting,
// preserving priority ordering. Runs at the top of pop/peek/length so delayed
// jobs become visible exactly when due.
func (e *Engine) promoteDue(b *pebble.Batch, queue string, nowMs int64) (int, error) {
	entries, err := scanIndex(b, schedPrefix(queue), 8, 0, 0, nowMs+1)
	if err != nil {
		return 0, err
	}
	for _, ent := range entries {
		j, ok, err := e.loadJob(b, ent.jobID)
		if err != nil {
			return 0, err
		}
		if err := b.Delete(ent.key, nil); err != nil {
			return 0, err
		}
		if !ok || j.State != StateScheduled {
			// Orphaned index entry; drop it.
			continue
		}
		j.State = StateWaiting
		j.ReadyMs = 0
		if err := e.storeJob(b, j); err != nil {
			return 0, err
		}
		if err := b.Set(waitKey(j.Queue, j.Priority, j.EnqueuedMs, j.ID), nil, nil); err != nil {
			return 0, err
		}
		if err := e.bumpCounters(b, queue, 1, -1, 0); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// commit finalizes the operation's batch unless it is empty, then emits the
// collected lifecycle events.
func (e *Engine) commit(ctx context.Context, b *pebble.Batch, events []Event) error {
	if b.Count() > 0 {
		if err := e.db.CommitBatch(ctx, b); err != nil {
			return err
		}
	}
	for _, ev := range events {
		e.emit(ev)
	}
	return nil
}
