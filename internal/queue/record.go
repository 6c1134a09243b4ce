package queue

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// State is the lifecycle state of a job. A job is in exactly one state; a
// completed job is retired (record deleted) rather than kept in a state.
type State string

const (
	StateWaiting   State = "waiting"
	StateScheduled State = "scheduled"
	StateLeased    State = "leased"
	StateFailed    State = "failed"
)

// FailureCategoryRetries is the category assigned when a reclaim exhausts a
// job's retry budget.
const FailureCategoryRetries = "retries exceeded"

// Failure records why a job failed, with the payload snapshot taken at
// failure time so later mutation elsewhere cannot corrupt forensics.
type Failure struct {
	Category string `json:"category"`
	Message  string `json:"message,omitempty"`
	Worker   string `json:"worker,omitempty"`
	FailedMs int64  `json:"failed_ms"`
	Data     []byte `json:"data,omitempty"`
}

// Job is the canonical record. The record under q/job/{id} is the single copy
// of job content; every index holds only the id plus its sort key.
type Job struct {
	ID       string   `json:"id"`
	Data     []byte   `json:"data,omitempty"`
	Priority int64    `json:"priority"`
	Tags     []string `json:"tags,omitempty"`
	Queue    string   `json:"queue,omitempty"`
	State    State    `json:"state"`

	// Worker and ExpiresMs are set iff State == StateLeased.
	Worker    string `json:"worker,omitempty"`
	ExpiresMs int64  `json:"expires,omitempty"`

	// Retries is the configured budget; Remaining counts down on reclaim.
	Retries   int64 `json:"retries"`
	Remaining int64 `json:"remaining"`

	CreatedMs  int64 `json:"created_ms"`
	EnqueuedMs int64 `json:"enqueued_ms,omitempty"`
	// ReadyMs is set iff State == StateScheduled.
	ReadyMs int64 `json:"ready_ms,omitempty"`
	// PoppedMs is set iff State == StateLeased.
	PoppedMs int64 `json:"popped_ms,omitempty"`

	Failure *Failure `json:"failure,omitempty"`
}

// Clone returns a deep copy safe to hand to callers.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Data = append([]byte(nil), j.Data...)
	out.Tags = append([]string(nil), j.Tags...)
	if j.Failure != nil {
		f := *j.Failure
		f.Data = append([]byte(nil), j.Failure.Data...)
		out.Failure = &f
	}
	return &out
}

func encodeJob(j *Job) ([]byte, error) {
	return json.Marshal(j)
}

func decodeJob(b []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(b, &j); err != nil {
		return nil, err
	}
	return &j, nil
}

// newJobID generates a fresh 32-hex-char id from a random UUID.
func newJobID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
