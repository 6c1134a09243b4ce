package queue

import (
	"context"
)

// PutRequest creates a job or moves an existing one (put acts as both create
// and move).
type PutRequest struct {
	Queue    string
	ID       string // empty generates a fresh id
	Data     []byte
	Priority int64
	Tags     []string
	DelayMs  int64
	Retries  int64 // < 0 selects the default budget
	NowMs    int64 // <= 0 uses wall clock
}

// Put creates or moves a job. A put on an existing id updates
// payload/priority/tags/queue, resets scheduling and the retry counter, and
// clears any failure record; if the job was leased, the holding worker's
// subsequent heartbeat/complete returns the no-op result.
func (e *Engine) Put(ctx context.Context, req PutRequest) (string, error) {
	if err := validateName("queue", req.Queue); err != nil {
		return "", err
	}
	for _, t := range req.Tags {
		if err := validateName("tag", t); err != nil {
			return "", err
		}
	}
	now := nowOr(req.NowMs)
	retries := req.Retries
	if retries < 0 {
		retries = e.opts.DefaultRetries
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	jobID := req.ID
	createdMs := now
	var oldTags []string
	if jobID == "" {
		jobID = newJobID()
	} else if existing, ok, err := e.loadJob(b, jobID); err != nil {
		return "", err
	} else if ok {
		// Move: pull the job out of wherever it currently is.
		if err := e.deindex(b, existing); err != nil {
			return "", err
		}
		createdMs = existing.CreatedMs
		oldTags = existing.Tags
	}

	j := &Job{
		ID:         jobID,
		Data:       req.Data,
		Priority:   req.Priority,
		Tags:       req.Tags,
		Queue:      req.Queue,
		Retries:    retries,
		Remaining:  retries,
		CreatedMs:  createdMs,
		EnqueuedMs: now,
	}
	if req.DelayMs > 0 {
		j.State = StateScheduled
		j.ReadyMs = now + req.DelayMs
	} else {
		j.State = StateWaiting
	}

	if err := e.storeJob(b, j); err != nil {
		return "", err
	}
	if err := e.ensureQueue(b, req.Queue, now); err != nil {
		return "", err
	}
	if j.State == StateScheduled {
		if err := e.indexScheduled(b, j); err != nil {
			return "", err
		}
	} else {
		if err := e.indexWaiting(b, j); err != nil {
			return "", err
		}
	}
	if err := e.setTags(b, jobID, oldTags, req.Tags); err != nil {
		return "", err
	}

	events := []Event{{Type: EventPut, JobID: jobID, Queue: req.Queue, AtMs: now}}
	if err := e.commit(ctx, b, events); err != nil {
		return "", err
	}
	return jobID, nil
}

// Update replaces a job's payload only.
func (e *Engine) Update(ctx context.Context, jobID string, data []byte, nowMs int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	j.Data = data
	if err := e.storeJob(b, j); err != nil {
		return err
	}
	return e.commit(ctx, b, nil)
}

// Get returns a snapshot of the job record.
func (e *Engine) Get(ctx context.Context, jobID string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, jobID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return j.Clone(), nil
}

// Cancel removes a job from every structure in any state. Failed jobs are
// kept until canceled (or re-put); this is the removal path.
func (e *Engine) Cancel(ctx context.Context, jobID string, nowMs int64) error {
	now := nowOr(nowMs)

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.db.NewIndexedBatch()
	defer b.Close()

	j, ok, err := e.loadJob(b, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	if err := e.deindex(b, j); err != nil {
		return err
	}
	if err := e.deleteTags(b, jobID, j.Tags); err != nil {
		return err
	}
	if err := b.Delete(jobKey(jobID), nil); err != nil {
		return err
	}
	events := []Event{{Type: EventCanceled, JobID: jobID, Queue: j.Queue, AtMs: now}}
	return e.commit(ctx, b, events)
}
