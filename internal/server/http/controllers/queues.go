package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cast"

	"github.com/rzbill/quarry/internal/queue"
	"github.com/rzbill/quarry/internal/runtime"
	queuesvc "github.com/rzbill/quarry/internal/services/queues"
)

// QueuesController handles all queue-related HTTP endpoints.
//
// It provides a RESTful interface to the queues service: job lifecycle
// operations (put/pop/peek/heartbeat/complete/fail/cancel/update) and
// introspection (stats, length, queue/worker/failed/tagged/completed
// listings).
type QueuesController struct {
	rt  *runtime.Runtime
	svc *queuesvc.Service
}

// NewQueuesController creates a new queues controller.
func NewQueuesController(rt *runtime.Runtime, svc *queuesvc.Service) *QueuesController {
	return &QueuesController{rt: rt, svc: svc}
}

// RegisterRoutes registers all queue-related routes with the given mux.
func (c *QueuesController) RegisterRoutes(mux *http.ServeMux) {
	// Job lifecycle
	mux.HandleFunc("/v1/queues/put", c.handlePut)
	mux.HandleFunc("/v1/queues/pop", c.handlePop)
	mux.HandleFunc("/v1/queues/peek", c.handlePeek)
	mux.HandleFunc("/v1/queues/heartbeat", c.handleHeartbeat)
	mux.HandleFunc("/v1/queues/complete", c.handleComplete)
	mux.HandleFunc("/v1/queues/fail", c.handleFail)
	mux.HandleFunc("/v1/queues/cancel", c.handleCancel)
	mux.HandleFunc("/v1/queues/update", c.handleUpdate)

	// Introspection
	mux.HandleFunc("/v1/queues", c.handleListQueues)
	mux.HandleFunc("/v1/queues/stats", c.handleStats)
	mux.HandleFunc("/v1/queues/length", c.handleLength)
	mux.HandleFunc("/v1/queues/failed", c.handleFailed)
	mux.HandleFunc("/v1/queues/tagged", c.handleTagged)
	mux.HandleFunc("/v1/queues/completed", c.handleCompleted)
	mux.HandleFunc("/v1/queues/workers", c.handleWorkers)
	mux.HandleFunc("/v1/jobs", c.handleGetJob)
}

func writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// handlePut creates a job or moves an existing one.
// POST /v1/queues/put
func (c *QueuesController) handlePut(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queuesvc.PutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.svc.Put(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, resp)
}

// handlePop leases jobs to a worker.
// POST /v1/queues/pop
func (c *QueuesController) handlePop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queuesvc.PopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	jobs, err := c.svc.Pop(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"jobs": jobs})
}

// handlePeek returns what the next pop would select.
// GET /v1/queues/peek?queue=<q>&count=<n>&now_ms=<ms>
func (c *QueuesController) handlePeek(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	jobs, err := c.svc.Peek(r.Context(), q.Get("queue"), cast.ToInt(q.Get("count")), cast.ToInt64(q.Get("now_ms")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"jobs": jobs})
}

// handleHeartbeat extends a lease.
// POST /v1/queues/heartbeat
func (c *QueuesController) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queuesvc.HeartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.svc.Heartbeat(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, resp)
}

// handleComplete finishes a job.
// POST /v1/queues/complete
func (c *QueuesController) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queuesvc.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.svc.Complete(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, resp)
}

// handleFail moves a job into the failure ledger.
// POST /v1/queues/fail
func (c *QueuesController) handleFail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req queuesvc.FailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	resp, err := c.svc.Fail(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, resp)
}

type cancelReq struct {
	JobID string `json:"job_id"`
	NowMs int64  `json:"now_ms,omitempty"`
}

// handleCancel removes a job in any state.
// POST /v1/queues/cancel
func (c *QueuesController) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.svc.Cancel(r.Context(), req.JobID, req.NowMs); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

type updateReq struct {
	JobID string `json:"job_id"`
	Data  []byte `json:"data"`
	NowMs int64  `json:"now_ms,omitempty"`
}

// handleUpdate replaces a job's payload.
// POST /v1/queues/update
func (c *QueuesController) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req updateReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := c.svc.Update(r.Context(), req.JobID, req.Data, req.NowMs); err != nil {
		writeServiceError(w, err)
		return
	}
	writeNoContent(w)
}

// handleListQueues lists every known queue with counts.
// GET /v1/queues?now_ms=<ms>
func (c *QueuesController) handleListQueues(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	queues, err := c.svc.Queues(r.Context(), cast.ToInt64(r.URL.Query().Get("now_ms")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"queues": queues})
}

// handleStats returns the per-day statistics bucket for a queue.
// GET /v1/queues/stats?queue=<q>&day_ms=<ms>
func (c *QueuesController) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	stats, err := c.svc.Stats(r.Context(), q.Get("queue"), cast.ToInt64(q.Get("day_ms")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, stats)
}

// handleLength returns waiting + scheduled + leased for a queue.
// GET /v1/queues/length?queue=<q>&now_ms=<ms>
func (c *QueuesController) handleLength(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	n, err := c.svc.Length(r.Context(), q.Get("queue"), cast.ToInt64(q.Get("now_ms")))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"queue": q.Get("queue"), "length": n})
}

// handleFailed browses the failure ledger. Without a category it returns the
// category groups; with one it returns a page of failed jobs.
// GET /v1/queues/failed[?category=<c>&start=<n>&limit=<n>&filter=<cel>]
func (c *QueuesController) handleFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	category := q.Get("category")
	if category == "" {
		groups, err := c.svc.FailedGroups(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"groups": groups})
		return
	}
	page, err := c.svc.Failed(r.Context(), category, cast.ToInt(q.Get("start")), cast.ToInt(q.Get("limit")), q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, page)
}

// handleTagged returns a page of jobs carrying a tag.
// GET /v1/queues/tagged?tag=<t>&start=<n>&limit=<n>&filter=<cel>
func (c *QueuesController) handleTagged(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	q := r.URL.Query()
	page, err := c.svc.Tagged(r.Context(), q.Get("tag"), cast.ToInt(q.Get("start")), cast.ToInt(q.Get("limit")), q.Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, page)
}

// handleCompleted returns the most recently retired jobs.
// GET /v1/queues/completed?limit=<n>
func (c *QueuesController) handleCompleted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	entries, err := c.svc.Completed(r.Context(), cast.ToInt(r.URL.Query().Get("limit")))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{"completed": entries})
}

// handleWorkers lists lease-holding workers, or one worker's jobs.
// GET /v1/queues/workers[?worker=<w>]
func (c *QueuesController) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	worker := r.URL.Query().Get("worker")
	if worker == "" {
		workers, err := c.svc.Workers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"workers": workers})
		return
	}
	jobs, err := c.svc.WorkerJobs(r.Context(), worker)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, map[string]any{"worker": worker, "jobs": jobs})
}

// handleGetJob returns one job record.
// GET /v1/jobs?id=<job id>
func (c *QueuesController) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	id := r.URL.Query().Get("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id parameter required")
		return
	}
	job, err := c.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, job)
}
