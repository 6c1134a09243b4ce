package queue

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// CompletedEntry is the bounded summary kept after a job retires. It is
// introspection data, not engine state: the job record itself is gone.
type CompletedEntry struct {
	JobID       string `json:"job_id"`
	Queue       string `json:"queue"`
	Worker      string `json:"worker"`
	CreatedMs   int64  `json:"created_ms"`
	EnqueuedMs  int64  `json:"enqueued_ms"`
	PoppedMs    int64  `json:"popped_ms"`
	CompletedMs int64  `json:"completed_ms"`
	WaitMs      int64  `json:"wait_ms"`
	RunMs       int64  `json:"run_ms"`
	DataBytes   int    `json:"data_bytes"`
}

// appendCompleted writes the retired job's summary and trims the log back to
// the configured bound, all inside the operation's batch.
func (e *Engine) appendCompleted(b *pebble.Batch, j *Job, nowMs int64) error {
	entry := CompletedEntry{
		JobID:       j.ID,
		Queue:       j.Queue,
		Worker:      j.Worker,
		CreatedMs:   j.CreatedMs,
		EnqueuedMs:  j.EnqueuedMs,
		PoppedMs:    j.PoppedMs,
		CompletedMs: nowMs,
		WaitMs:      j.PoppedMs - j.EnqueuedMs,
		RunMs:       nowMs - j.PoppedMs,
		DataBytes:   len(j.Data),
	}
	v, err := json.Marshal(&entry)
	if err != nil {
		return err
	}
	if err := b.Set(doneKey(e.stamps.Next().Bytes()), v, nil); err != nil {
		return err
	}

	count := int64(0)
	if mv, ok, err := batchGet(b, doneMetaKey()); err != nil {
		return err
	} else if ok && len(mv) >= 8 {
		count = int64(binary.BigEndian.Uint64(mv[:8]))
	}
	count++

	if over := count - int64(e.opts.CompletedLimit); over > 0 {
		lo, hi := keyRange(prefixDone)
		iter, err := b.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
		if err != nil {
			return err
		}
		var stale [][]byte
		for ok := iter.First(); ok && int64(len(stale)) < over; ok = iter.Next() {
			stale = append(stale, append([]byte(nil), iter.Key()...))
		}
		_ = iter.Close()
		for _, k := range stale {
			if err := b.Delete(k, nil); err != nil {
				return err
			}
		}
		count -= int64(len(stale))
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(count))
	return b.Set(doneMetaKey(), buf[:], nil)
}

// Completed returns the most recently retired jobs, newest first.
func (e *Engine) Completed(ctx context.Context, limit int) ([]*CompletedEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	lo, hi := keyRange(prefixDone)
	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lo, UpperBound: hi})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	entries := make([]*CompletedEntry, 0, limit)
	for ok := iter.Last(); ok && len(entries) < limit; ok = iter.Prev() {
		var entry CompletedEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			continue
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}
