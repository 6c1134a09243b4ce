package queue

import (
	"context"
	"encoding/binary"
	"strings"

	"github.com/cockroachdb/pebble"
)

// QueueCounts is an introspection snapshot of one queue's sets. Stalled
// counts locks entries whose lease already expired but has not yet been
// reclaimed by a pop/peek/length.
type QueueCounts struct {
	Name      string `json:"name"`
	Waiting   int64  `json:"waiting"`
	Scheduled int64  `json:"scheduled"`
	Running   int64  `json:"running"`
	Stalled   int64  `json:"stalled"`
}

// Queues lists every queue ever referenced with its current counts.
func (e *Engine) Queues(ctx context.Context, nowMs int64) ([]QueueCounts, error) {
	now := nowOr(nowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	lo, hi := keyRange(prefixQueues)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var names []string
	for ok := iter.First(); ok; ok = iter.Next() {
		names = append(names, nameFromMarkerKey(iter.Key(), len(prefixQueues)))
	}

	b := e.db.NewIndexedBatch()
	defer b.Close()

	out := make([]QueueCounts, 0, len(names))
	for _, name := range names {
		waiting, scheduled, leased, err := e.readCounters(b, name)
		if err != nil {
			return nil, err
		}
		stalled, err := e.countStalled(name, now)
		if err != nil {
			return nil, err
		}
		out = append(out, QueueCounts{
			Name:      name,
			Waiting:   waiting,
			Scheduled: scheduled,
			Running:   leased,
			Stalled:   stalled,
		})
	}
	return out, nil
}

func (e *Engine) countStalled(queue string, nowMs int64) (int64, error) {
	prefix := lockPrefix(queue)
	lo, hi := keyRange(prefix)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	var stalled int64
	for ok := iter.First(); ok; ok = iter.Next() {
		exp, valid := sortFieldFromIndexKey(iter.Key(), len(prefix), 0)
		if !valid {
			continue
		}
		if int64(exp) >= nowMs {
			break
		}
		stalled++
	}
	return stalled, nil
}

// Tagged returns one page of jobs carrying the tag plus the tag total.
func (e *Engine) Tagged(ctx context.Context, tag string, start, limit int) ([]*Job, int64, error) {
	if err := validateName("tag", tag); err != nil {
		return nil, 0, err
	}
	if limit <= 0 {
		limit = 25
	}
	if start < 0 {
		start = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prefix := prefixTag + tag + "/"
	lo, hi := keyRange(prefix)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	var total int64
	jobs := make([]*Job, 0, limit)
	for ok := iter.First(); ok; ok = iter.Next() {
		idx := total
		total++
		if idx < int64(start) || len(jobs) >= limit {
			continue
		}
		jobID := nameFromMarkerKey(iter.Key(), len(prefix))
		j, found, err := e.loadJob(b, jobID)
		if err != nil {
			return nil, 0, err
		}
		if !found {
			continue
		}
		jobs = append(jobs, j.Clone())
	}
	return jobs, total, nil
}

// WorkerCounts reports how many jobs a worker currently holds leases on.
type WorkerCounts struct {
	Name string `json:"name"`
	Jobs int64  `json:"jobs"`
}

// Workers lists every worker currently holding at least one lease.
func (e *Engine) Workers(ctx context.Context) ([]WorkerCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	lo, hi := keyRange(prefixWorker)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	counts := make(map[string]int64)
	var order []string
	for ok := iter.First(); ok; ok = iter.Next() {
		rest := string(iter.Key()[len(prefixWorker):])
		i := strings.IndexByte(rest, '/')
		if i <= 0 {
			continue
		}
		name := rest[:i]
		if _, seen := counts[name]; !seen {
			order = append(order, name)
		}
		counts[name]++
	}

	out := make([]WorkerCounts, 0, len(order))
	for _, name := range order {
		out = append(out, WorkerCounts{Name: name, Jobs: counts[name]})
	}
	return out, nil
}

// WorkerJobs returns the jobs currently leased to a worker.
func (e *Engine) WorkerJobs(ctx context.Context, worker string) ([]*Job, error) {
	if err := validateName("worker", worker); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	prefix := workerPrefix(worker)
	lo, hi := keyRange(prefix)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	var jobs []*Job
	for ok := iter.First(); ok; ok = iter.Next() {
		jobID := nameFromMarkerKey(iter.Key(), len(prefix))
		j, found, err := e.loadJob(b, jobID)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		jobs = append(jobs, j.Clone())
	}
	return jobs, nil
}

// QueueFirstSeenMs returns when the queue marker was written, for
// introspection. Zero when the queue was never referenced.
func (e *Engine) QueueFirstSeenMs(ctx context.Context, queue string) (int64, error) {
	if err := validateName("queue", queue); err != nil {
		return 0, err
	}
	v, err := e.db.Get(queueMarkerKey(queue))
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(v) < 8 {
		return 0, nil
	}
	return int64(binary.BigEndian.Uint64(v[:8])), nil
}
