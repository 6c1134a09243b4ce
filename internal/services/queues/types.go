package queuesvc

import "github.com/rzbill/quarry/internal/queue"

// PutRequest creates or moves a job.
type PutRequest struct {
	Queue    string   `json:"queue"`
	ID       string   `json:"id,omitempty"`
	Data     []byte   `json:"data,omitempty"`
	Priority int64    `json:"priority,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	DelayMs  int64    `json:"delay_ms,omitempty"`
	// Retries < 0 selects the configured default budget.
	Retries int64 `json:"retries,omitempty"`
	NowMs   int64 `json:"now_ms,omitempty"`
}

// PutResponse carries the job id (generated when the request omitted one).
type PutResponse struct {
	ID string `json:"id"`
}

// PopRequest leases up to Count jobs to Worker.
type PopRequest struct {
	Queue         string `json:"queue"`
	Worker        string `json:"worker"`
	Count         int    `json:"count,omitempty"`
	NowMs         int64  `json:"now_ms,omitempty"`
	LeaseExpiryMs int64  `json:"lease_expiry_ms,omitempty"`
}

// HeartbeatRequest extends a lease.
type HeartbeatRequest struct {
	JobID       string `json:"job_id"`
	Worker      string `json:"worker"`
	NewExpiryMs int64  `json:"new_expiry_ms,omitempty"`
	Data        []byte `json:"data,omitempty"`
	NowMs       int64  `json:"now_ms,omitempty"`
}

// HeartbeatResponse reports the new lease expiry; zero means the caller no
// longer holds the lease.
type HeartbeatResponse struct {
	ExpiresMs int64 `json:"expires_ms"`
}

// CompleteRequest finishes a job, optionally re-queueing it.
type CompleteRequest struct {
	JobID     string `json:"job_id"`
	Worker    string `json:"worker"`
	Queue     string `json:"queue"`
	Data      []byte `json:"data,omitempty"`
	NextQueue string `json:"next_queue,omitempty"`
	DelayMs   int64  `json:"delay_ms,omitempty"`
	NowMs     int64  `json:"now_ms,omitempty"`
}

// CompleteResponse reports whether the completion was honored.
type CompleteResponse struct {
	Completed bool `json:"completed"`
}

// FailRequest moves a job into the failure ledger.
type FailRequest struct {
	JobID    string `json:"job_id"`
	Worker   string `json:"worker,omitempty"`
	Category string `json:"category"`
	Message  string `json:"message,omitempty"`
	Data     []byte `json:"data,omitempty"`
	NowMs    int64  `json:"now_ms,omitempty"`
}

// FailResponse carries the failed job id; empty means the id was unknown.
type FailResponse struct {
	ID string `json:"id"`
}

// JobPage is one page of jobs plus the unpaged total.
type JobPage struct {
	Jobs  []*queue.Job `json:"jobs"`
	Total int64        `json:"total"`
}
