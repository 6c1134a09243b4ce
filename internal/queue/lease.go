package queue

import (
	"context"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// reclaimExpired recovers every lease in the queue's locks set whose expiry
// passed. Each job either returns to waiting with one retry consumed or, when
// the budget is spent, moves to the failure ledger under "retries exceeded".
// Invoked lazily at the top of pop/peek/length; an expired lease is never
// honored, but nothing reclaims it until someone next looks.
func (e *Engine) reclaimExpired(b *pebble.Batch, queue string, nowMs int64) ([]Event, error) {
	entries, err := scanIndex(b, lockPrefix(queue), 8, 0, 0, nowMs)
	if err != nil {
		return nil, err
	}
	var events []Event
	for _, ent := range entries {
		j, ok, err := e.loadJob(b, ent.jobID)
		if err != nil {
			return nil, err
		}
		if err := b.Delete(ent.key, nil); err != nil {
			return nil, err
		}
		if !ok || j.State != StateLeased {
			// Orphaned index entry; drop it.
			continue
		}
		worker := j.Worker
		if err := b.Delete(workerKey(worker, j.ID), nil); err != nil {
			return nil, err
		}

		j.Remaining--
		if j.Remaining >= 0 {
			j.State = StateWaiting
			j.Worker = ""
			j.ExpiresMs = 0
			j.PoppedMs = 0
			if err := e.storeJob(b, j); err != nil {
				return nil, err
			}
			if err := b.Set(waitKey(j.Queue, j.Priority, j.EnqueuedMs, j.ID), nil, nil); err != nil {
				return nil, err
			}
			if err := e.bumpCounters(b, queue, 1, 0, -1); err != nil {
				return nil, err
			}
			if err := e.recordStats(b, queue, nowMs, -1, -1, false, true); err != nil {
				return nil, err
			}
			events = append(events, Event{Type: EventReclaimed, JobID: j.ID, Queue: queue, Worker: worker, AtMs: nowMs})
		} else {
			waitSec := float64(j.PoppedMs-j.EnqueuedMs) / 1000
			runSec := float64(nowMs-j.PoppedMs) / 1000
			j.Remaining = 0
			j.State = StateFailed
			j.Failure = &Failure{
				Category: FailureCategoryRetries,
				Message:  fmt.Sprintf("job exhausted its retry budget in queue %q", queue),
				Worker:   worker,
				FailedMs: nowMs,
				Data:     append([]byte(nil), j.Data...),
			}
			j.Worker = ""
			j.ExpiresMs = 0
			j.PoppedMs = 0
			if err := e.storeJob(b, j); err != nil {
				return nil, err
			}
			if err := b.Set(failedKey(FailureCategoryRetries, j.ID), nil, nil); err != nil {
				return nil, err
			}
			if err := e.bumpCounters(b, queue, 0, 0, -1); err != nil {
				return nil, err
			}
			if err := e.recordStats(b, queue, nowMs, waitSec, runSec, true, false); err != nil {
				return nil, err
			}
			events = append(events, Event{Type: EventFailed, JobID: j.ID, Queue: queue, Worker: worker, AtMs: nowMs})
		}
	}
	return events, nil
}

// Heartbeat extends a lease. It returns (0, nil) unless the job is currently
// leased by worker and the lease has not yet expired: a worker that lost its
// lease must not be able to silently resume ownership. On success the lease
// moves to newExpiryMs (now + default lease duration when <= 0) and the
// payload is optionally updated.
func (e *Engine) Heartbeat(ctx context.Context, jobID, worker string, newExpiryMs int64, data []byte, nowMs int64) (int64, error) {
	now := nowOr(nowMs)
	if newExpiryMs <= 0 {
		newExpiryMs = now + e.opts.DefaultLeaseMs
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, jobID)
	if err != nil {
		return 0, err
	}
	if !ok || j.State != StateLeased || j.Worker != worker || j.ExpiresMs < now {
		return 0, nil
	}

	if err := b.Delete(lockKey(j.Queue, j.ExpiresMs, j.ID), nil); err != nil {
		return 0, err
	}
	j.ExpiresMs = newExpiryMs
	if data != nil {
		j.Data = data
	}
	if err := e.storeJob(b, j); err != nil {
		return 0, err
	}
	if err := b.Set(lockKey(j.Queue, j.ExpiresMs, j.ID), nil, nil); err != nil {
		return 0, err
	}
	events := []Event{{Type: EventHeartbeat, JobID: jobID, Queue: j.Queue, Worker: worker, AtMs: now}}
	if err := e.commit(ctx, b, events); err != nil {
		return 0, err
	}
	return newExpiryMs, nil
}

// CompleteRequest retires a leased job, or re-queues it when NextQueue is
// set.
type CompleteRequest struct {
	JobID  string
	Worker string
	Queue  string
	NowMs  int64
	Data   []byte // optional payload update carried into stats/requeue

	// NextQueue re-enqueues the job there instead of retiring it, after
	// DelayMs if positive.
	NextQueue string
	DelayMs   int64
}

// Complete finishes a job. It returns (false, nil) unless the job is
// currently leased by (worker, queue): a job whose lease expired and was
// reclaimed by another worker cannot be falsely completed by the original
// one. Wait and run durations are recorded into the day's statistics.
func (e *Engine) Complete(ctx context.Context, req CompleteRequest) (bool, error) {
	if req.NextQueue != "" {
		if err := validateName("next queue", req.NextQueue); err != nil {
			return false, err
		}
	}
	now := nowOr(req.NowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, req.JobID)
	if err != nil {
		return false, err
	}
	if !ok || j.State != StateLeased || j.Worker != req.Worker || j.Queue != req.Queue {
		return false, nil
	}

	waitSec := float64(j.PoppedMs-j.EnqueuedMs) / 1000
	runSec := float64(now-j.PoppedMs) / 1000
	if err := e.recordStats(b, req.Queue, now, waitSec, runSec, false, false); err != nil {
		return false, err
	}

	if err := b.Delete(lockKey(j.Queue, j.ExpiresMs, j.ID), nil); err != nil {
		return false, err
	}
	if err := b.Delete(workerKey(j.Worker, j.ID), nil); err != nil {
		return false, err
	}
	if err := e.bumpCounters(b, req.Queue, 0, 0, -1); err != nil {
		return false, err
	}

	events := []Event{{Type: EventCompleted, JobID: j.ID, Queue: req.Queue, Worker: req.Worker, AtMs: now}}
	if req.NextQueue != "" {
		if req.Data != nil {
			j.Data = req.Data
		}
		j.Queue = req.NextQueue
		j.Worker = ""
		j.ExpiresMs = 0
		j.PoppedMs = 0
		j.EnqueuedMs = now
		if !e.opts.PreserveRetriesOnRequeue {
			j.Remaining = j.Retries
		}
		if req.DelayMs > 0 {
			j.State = StateScheduled
			j.ReadyMs = now + req.DelayMs
		} else {
			j.State = StateWaiting
			j.ReadyMs = 0
		}
		if err := e.storeJob(b, j); err != nil {
			return false, err
		}
		if err := e.ensureQueue(b, req.NextQueue, now); err != nil {
			return false, err
		}
		if j.State == StateScheduled {
			if err := e.indexScheduled(b, j); err != nil {
				return false, err
			}
		} else {
			if err := e.indexWaiting(b, j); err != nil {
				return false, err
			}
		}
		events = append(events, Event{Type: EventPut, JobID: j.ID, Queue: req.NextQueue, AtMs: now})
	} else {
		// Retire permanently: drop the record and leave only a bounded
		// completed-log summary.
		if err := e.deleteTags(b, j.ID, j.Tags); err != nil {
			return false, err
		}
		if err := b.Delete(jobKey(j.ID), nil); err != nil {
			return false, err
		}
		if err := e.appendCompleted(b, j, now); err != nil {
			return false, err
		}
	}

	if err := e.commit(ctx, b, events); err != nil {
		return false, err
	}
	return true, nil
}

// FailRequest marks a job as permanently problematic.
type FailRequest struct {
	JobID    string
	Worker   string
	Category string
	Message  string
	NowMs    int64
	Data     []byte // optional payload update snapshotted into the failure
}

// Fail moves a job into the failure ledger. Unlike heartbeat/complete this is
// allowed from any state, so a race on lease expiry cannot block failure
// reporting; an unknown id is the only false result. Any further
// heartbeat/complete from the previous lease holder fails because lease state
// is cleared here.
func (e *Engine) Fail(ctx context.Context, req FailRequest) (string, error) {
	if err := validateName("category", req.Category); err != nil {
		return "", err
	}
	now := nowOr(req.NowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, req.JobID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	wasLeased := j.State == StateLeased
	if err := e.deindex(b, j); err != nil {
		return "", err
	}

	var waitSec, runSec float64 = -1, -1
	if wasLeased && j.PoppedMs > 0 {
		waitSec = float64(j.PoppedMs-j.EnqueuedMs) / 1000
		runSec = float64(now-j.PoppedMs) / 1000
	}
	if j.Queue != "" {
		if err := e.recordStats(b, j.Queue, now, waitSec, runSec, true, false); err != nil {
			return "", err
		}
	}

	data := req.Data
	if data == nil {
		data = j.Data
	}
	if req.Data != nil {
		j.Data = req.Data
	}
	j.State = StateFailed
	j.Failure = &Failure{
		Category: req.Category,
		Message:  req.Message,
		Worker:   req.Worker,
		FailedMs: now,
		Data:     append([]byte(nil), data...),
	}
	j.Worker = ""
	j.ExpiresMs = 0
	j.PoppedMs = 0
	j.ReadyMs = 0
	if err := e.storeJob(b, j); err != nil {
		return "", err
	}
	if err := b.Set(failedKey(req.Category, j.ID), nil, nil); err != nil {
		return "", err
	}

	events := []Event{{Type: EventFailed, JobID: j.ID, Queue: j.Queue, Worker: req.Worker, AtMs: now}}
	if err := e.commit(ctx, b, events); err != nil {
		return "", err
	}
	return j.ID, nil
}
