package queue

import (
	"context"
)

// Pop leases up to count waiting jobs to worker. Expired leases are reclaimed
// and due scheduled jobs promoted first, so a job freed by either becomes
// poppable in the same call. Selection takes the smallest (priority,
// enqueue time, id); fewer than count available returns as many as exist.
func (e *Engine) Pop(ctx context.Context, queue, worker string, count int, nowMs, leaseExpiryMs int64) ([]*Job, error) {
	if err := validateName("queue", queue); err != nil {
		return nil, err
	}
	if err := validateName("worker", worker); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	now := nowOr(nowMs)
	if leaseExpiryMs <= 0 {
		leaseExpiryMs = now + e.opts.DefaultLeaseMs
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	events, err := e.reclaimExpired(b, queue, now)
	if err != nil {
		return nil, err
	}
	if _, err := e.promoteDue(b, queue, now); err != nil {
		return nil, err
	}

	entries, err := scanIndex(b, waitPrefix(queue), 16, 0, count, 0)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(entries))
	for _, ent := range entries {
		j, ok, err := e.loadJob(b, ent.jobID)
		if err != nil {
			return nil, err
		}
		if err := b.Delete(ent.key, nil); err != nil {
			return nil, err
		}
		if !ok || j.State != StateWaiting {
			// Orphaned index entry; drop it.
			continue
		}
		j.State = StateLeased
		j.Worker = worker
		j.ExpiresMs = leaseExpiryMs
		j.PoppedMs = now
		if err := e.storeJob(b, j); err != nil {
			return nil, err
		}
		if err := b.Set(lockKey(j.Queue, j.ExpiresMs, j.ID), nil, nil); err != nil {
			return nil, err
		}
		if err := b.Set(workerKey(worker, j.ID), nil, nil); err != nil {
			return nil, err
		}
		if err := e.bumpCounters(b, queue, -1, 0, 1); err != nil {
			return nil, err
		}
		jobs = append(jobs, j.Clone())
		events = append(events, Event{Type: EventPopped, JobID: j.ID, Queue: queue, Worker: worker, AtMs: now})
	}

	if err := e.commit(ctx, b, events); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Peek returns the jobs the next Pop would select, without leasing or
// removing anything. The reclaim and promotion side effects still apply (and
// commit), so a peek never shows a job as available-but-actually-stale.
func (e *Engine) Peek(ctx context.Context, queue string, count int, nowMs int64) ([]*Job, error) {
	if err := validateName("queue", queue); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = 1
	}
	now := nowOr(nowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	events, err := e.reclaimExpired(b, queue, now)
	if err != nil {
		return nil, err
	}
	if _, err := e.promoteDue(b, queue, now); err != nil {
		return nil, err
	}

	entries, err := scanIndex(b, waitPrefix(queue), 16, 0, count, 0)
	if err != nil {
		return nil, err
	}
	jobs := make([]*Job, 0, len(entries))
	for _, ent := range entries {
		j, ok, err := e.loadJob(b, ent.jobID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		jobs = append(jobs, j.Clone())
	}

	if err := e.commit(ctx, b, events); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Length returns size(waiting) + size(scheduled) + size(locks) as one atomic
// counter snapshot. Reclaim and promotion run first so the answer reflects
// lease expiry, matching what the next pop would see.
func (e *Engine) Length(ctx context.Context, queue string, nowMs int64) (int64, error) {
	if err := validateName("queue", queue); err != nil {
		return 0, err
	}
	now := nowOr(nowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	events, err := e.reclaimExpired(b, queue, now)
	if err != nil {
		return 0, err
	}
	if _, err := e.promoteDue(b, queue, now); err != nil {
		return 0, err
	}
	waiting, scheduled, leased, err := e.readCounters(b, queue)
	if err != nil {
		return 0, err
	}
	if err := e.commit(ctx, b, events); err != nil {
		return 0, err
	}
	return waiting + scheduled + leased, nil
}
