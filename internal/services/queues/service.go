package queuesvc

import (
	"context"
	"fmt"
	"time"

	"github.com/rzbill/quarry/internal/queue"
	"github.com/rzbill/quarry/internal/runtime"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

// Service exposes queue operations to the HTTP layer and the CLI. It owns
// request validation and defaults; the engine owns semantics.
type Service struct {
	rt     *runtime.Runtime
	logger logpkg.Logger

	maxPopCount int
}

// New creates a queues service with default settings.
func New(rt *runtime.Runtime) *Service {
	logger := logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
	logger = logger.With(logpkg.F("component", "queues"))
	return NewWithLogger(rt, logger)
}

// NewWithLogger creates a queues service with a custom logger.
func NewWithLogger(rt *runtime.Runtime, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithLevel(logpkg.InfoLevel))
		logger = logger.With(logpkg.F("component", "queues"))
	}
	return &Service{
		rt:          rt,
		logger:      logger,
		maxPopCount: 100,
	}
}

func (s *Service) observeOp(op string, start time.Time) {
	if m := s.rt.Metrics(); m != nil {
		m.ObserveOp(op, time.Since(start))
	}
}

// Put creates a job or moves an existing one.
func (s *Service) Put(ctx context.Context, req PutRequest) (*PutResponse, error) {
	if req.Queue == "" {
		return nil, fmt.Errorf("queue required")
	}
	defer s.observeOp("put", time.Now())

	id, err := s.rt.Engine().Put(ctx, queue.PutRequest{
		Queue:    req.Queue,
		ID:       req.ID,
		Data:     req.Data,
		Priority: req.Priority,
		Tags:     req.Tags,
		DelayMs:  req.DelayMs,
		Retries:  req.Retries,
		NowMs:    req.NowMs,
	})
	if err != nil {
		return nil, fmt.Errorf("put: %w", err)
	}
	if m := s.rt.Metrics(); m != nil {
		m.IncPut()
	}
	s.logger.Debug("put job",
		logpkg.F("queue", req.Queue),
		logpkg.F("job_id", id),
		logpkg.F("priority", req.Priority),
		logpkg.F("delay_ms", req.DelayMs),
	)
	return &PutResponse{ID: id}, nil
}

// Pop leases jobs to a worker.
func (s *Service) Pop(ctx context.Context, req PopRequest) ([]*queue.Job, error) {
	if req.Queue == "" {
		return nil, fmt.Errorf("queue required")
	}
	if req.Worker == "" {
		return nil, fmt.Errorf("worker required")
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}
	if count > s.maxPopCount {
		count = s.maxPopCount
	}
	defer s.observeOp("pop", time.Now())

	jobs, err := s.rt.Engine().Pop(ctx, req.Queue, req.Worker, count, req.NowMs, req.LeaseExpiryMs)
	if err != nil {
		return nil, fmt.Errorf("pop: %w", err)
	}
	if m := s.rt.Metrics(); m != nil && len(jobs) > 0 {
		m.AddPopped(len(jobs))
	}
	if len(jobs) > 0 {
		s.logger.Debug("popped jobs",
			logpkg.F("queue", req.Queue),
			logpkg.F("worker", req.Worker),
			logpkg.F("count", len(jobs)),
		)
	}
	return jobs, nil
}

// Peek returns what the next pop would select without leasing anything.
func (s *Service) Peek(ctx context.Context, queueName string, count int, nowMs int64) ([]*queue.Job, error) {
	if queueName == "" {
		return nil, fmt.Errorf("queue required")
	}
	if count <= 0 {
		count = 1
	}
	if count > s.maxPopCount {
		count = s.maxPopCount
	}
	defer s.observeOp("peek", time.Now())

	jobs, err := s.rt.Engine().Peek(ctx, queueName, count, nowMs)
	if err != nil {
		return nil, fmt.Errorf("peek: %w", err)
	}
	return jobs, nil
}

// Heartbeat extends a worker's lease on a job.
func (s *Service) Heartbeat(ctx context.Context, req HeartbeatRequest) (*HeartbeatResponse, error) {
	if req.JobID == "" {
		return nil, fmt.Errorf("job_id required")
	}
	if req.Worker == "" {
		return nil, fmt.Errorf("worker required")
	}
	defer s.observeOp("heartbeat", time.Now())

	exp, err := s.rt.Engine().Heartbeat(ctx, req.JobID, req.Worker, req.NewExpiryMs, req.Data, req.NowMs)
	if err != nil {
		return nil, fmt.Errorf("heartbeat: %w", err)
	}
	if exp == 0 {
		s.logger.Debug("heartbeat rejected",
			logpkg.F("job_id", req.JobID),
			logpkg.F("worker", req.Worker),
		)
	}
	return &HeartbeatResponse{ExpiresMs: exp}, nil
}

// Complete finishes a job, optionally moving it into a next queue.
func (s *Service) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	if req.JobID == "" {
		return nil, fmt.Errorf("job_id required")
	}
	if req.Worker == "" {
		return nil, fmt.Errorf("worker required")
	}
	if req.Queue == "" {
		return nil, fmt.Errorf("queue required")
	}
	defer s.observeOp("complete", time.Now())

	// Snapshot timings before the record is retired.
	waitSec, runSec := -1.0, -1.0
	if s.rt.Metrics() != nil {
		if j, err := s.rt.Engine().Get(ctx, req.JobID); err == nil && j.PoppedMs > 0 {
			now := req.NowMs
			if now <= 0 {
				now = time.Now().UnixMilli()
			}
			if j.EnqueuedMs > 0 {
				waitSec = float64(j.PoppedMs-j.EnqueuedMs) / 1000
			}
			runSec = float64(now-j.PoppedMs) / 1000
		}
	}

	done, err := s.rt.Engine().Complete(ctx, queue.CompleteRequest{
		JobID:     req.JobID,
		Worker:    req.Worker,
		Queue:     req.Queue,
		Data:      req.Data,
		NextQueue: req.NextQueue,
		DelayMs:   req.DelayMs,
		NowMs:     req.NowMs,
	})
	if err != nil {
		return nil, fmt.Errorf("complete: %w", err)
	}
	if done {
		if m := s.rt.Metrics(); m != nil {
			m.IncCompleted()
			m.ObserveJob(waitSec, runSec)
		}
		s.logger.Debug("completed job",
			logpkg.F("job_id", req.JobID),
			logpkg.F("queue", req.Queue),
			logpkg.F("worker", req.Worker),
			logpkg.F("next_queue", req.NextQueue),
		)
	}
	return &CompleteResponse{Completed: done}, nil
}

// Fail moves a job into the failure ledger.
func (s *Service) Fail(ctx context.Context, req FailRequest) (*FailResponse, error) {
	if req.JobID == "" {
		return nil, fmt.Errorf("job_id required")
	}
	if req.Category == "" {
		return nil, fmt.Errorf("category required")
	}
	defer s.observeOp("fail", time.Now())

	id, err := s.rt.Engine().Fail(ctx, queue.FailRequest{
		JobID:    req.JobID,
		Worker:   req.Worker,
		Category: req.Category,
		Message:  req.Message,
		Data:     req.Data,
		NowMs:    req.NowMs,
	})
	if err != nil {
		return nil, fmt.Errorf("fail: %w", err)
	}
	if id != "" {
		if m := s.rt.Metrics(); m != nil {
			m.IncFailed()
		}
		s.logger.Info("failed job",
			logpkg.F("job_id", id),
			logpkg.F("category", req.Category),
			logpkg.F("worker", req.Worker),
		)
	}
	return &FailResponse{ID: id}, nil
}

// Cancel removes a job in any state.
func (s *Service) Cancel(ctx context.Context, jobID string, nowMs int64) error {
	if jobID == "" {
		return fmt.Errorf("job_id required")
	}
	defer s.observeOp("cancel", time.Now())

	if err := s.rt.Engine().Cancel(ctx, jobID, nowMs); err != nil {
		return err
	}
	if m := s.rt.Metrics(); m != nil {
		m.IncCanceled()
	}
	s.logger.Debug("canceled job", logpkg.F("job_id", jobID))
	return nil
}

// Update replaces a job's payload.
func (s *Service) Update(ctx context.Context, jobID string, data []byte, nowMs int64) error {
	if jobID == "" {
		return fmt.Errorf("job_id required")
	}
	defer s.observeOp("update", time.Now())
	return s.rt.Engine().Update(ctx, jobID, data, nowMs)
}

// Get returns one job record.
func (s *Service) Get(ctx context.Context, jobID string) (*queue.Job, error) {
	if jobID == "" {
		return nil, fmt.Errorf("job_id required")
	}
	return s.rt.Engine().Get(ctx, jobID)
}

// Stats returns the per-day statistics bucket for a queue.
func (s *Service) Stats(ctx context.Context, queueName string, dayMs int64) (*queue.QueueStats, error) {
	if queueName == "" {
		return nil, fmt.Errorf("queue required")
	}
	defer s.observeOp("stats", time.Now())
	return s.rt.Engine().Stats(ctx, queueName, dayMs)
}

// Length returns waiting + scheduled + leased for a queue.
func (s *Service) Length(ctx context.Context, queueName string, nowMs int64) (int64, error) {
	if queueName == "" {
		return 0, fmt.Errorf("queue required")
	}
	defer s.observeOp("length", time.Now())
	return s.rt.Engine().Length(ctx, queueName, nowMs)
}

// Queues lists every known queue with its current counts.
func (s *Service) Queues(ctx context.Context, nowMs int64) ([]queue.QueueCounts, error) {
	return s.rt.Engine().Queues(ctx, nowMs)
}

// FailedGroups returns failure categories and their sizes.
func (s *Service) FailedGroups(ctx context.Context) (map[string]int64, error) {
	return s.rt.Engine().FailedGroups(ctx)
}

// Failed returns one page of failed jobs in a category, optionally filtered
// by a CEL expression over job attributes.
func (s *Service) Failed(ctx context.Context, category string, start, limit int, filterExpr string) (*JobPage, error) {
	if category == "" {
		return nil, fmt.Errorf("category required")
	}
	jobs, total, err := s.rt.Engine().Failed(ctx, category, start, limit)
	if err != nil {
		return nil, fmt.Errorf("failed jobs: %w", err)
	}
	jobs, err = applyFilter(jobs, filterExpr)
	if err != nil {
		return nil, err
	}
	return &JobPage{Jobs: jobs, Total: total}, nil
}

// Tagged returns one page of jobs carrying a tag, optionally filtered by a
// CEL expression over job attributes.
func (s *Service) Tagged(ctx context.Context, tag string, start, limit int, filterExpr string) (*JobPage, error) {
	if tag == "" {
		return nil, fmt.Errorf("tag required")
	}
	jobs, total, err := s.rt.Engine().Tagged(ctx, tag, start, limit)
	if err != nil {
		return nil, fmt.Errorf("tagged jobs: %w", err)
	}
	jobs, err = applyFilter(jobs, filterExpr)
	if err != nil {
		return nil, err
	}
	return &JobPage{Jobs: jobs, Total: total}, nil
}

// Completed returns the most recently retired jobs, newest first.
func (s *Service) Completed(ctx context.Context, limit int) ([]*queue.CompletedEntry, error) {
	return s.rt.Engine().Completed(ctx, limit)
}

// Workers lists workers currently holding leases.
func (s *Service) Workers(ctx context.Context) ([]queue.WorkerCounts, error) {
	return s.rt.Engine().Workers(ctx)
}

// WorkerJobs returns the jobs currently leased to a worker.
func (s *Service) WorkerJobs(ctx context.Context, worker string) ([]*queue.Job, error) {
	if worker == "" {
		return nil, fmt.Errorf("worker required")
	}
	return s.rt.Engine().WorkerJobs(ctx, worker)
}

func applyFilter(jobs []*queue.Job, expr string) ([]*queue.Job, error) {
	f, err := newJobFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("filter: %w", err)
	}
	if !f.enabled {
		return jobs, nil
	}
	out := jobs[:0]
	for _, j := range jobs {
		if f.Eval(j) {
			out = append(out, j)
		}
	}
	return out, nil
}
