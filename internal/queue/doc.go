// Package queue implements a priority-ordered work queue with lease-based
// delivery, retry accounting, and per-day statistics.
//
// Producers put jobs with a priority (lower = more urgent), optional tags, an
// optional delay, and a retry budget. Workers pop jobs, which grants a
// time-bounded lease; they renew it with heartbeats and finish with complete
// or fail. A lease that expires without either is reclaimed lazily at the
// next pop/peek/length: the job returns to the waiting set with one retry
// consumed, or moves to the failure ledger under "retries exceeded" when the
// budget is spent.
//
// # Keyspace
//
// All keys live under q/. Queue, worker, tag, and failure-category names must
// not contain '/' or NUL; job ids only ever appear as the trailing segment of
// a key, so their content is unconstrained.
//
//	job/{id}                        - Job record (JSON), single copy of job content
//	queues/{queue}                  - Queue marker (first-seen ms)
//	meta/{queue}                    - Waiting/scheduled/leased counters (3x8 bytes BE)
//	wait/{queue}/{prio}{enq_ms}{id} - Waiting index; prio is sign-flipped int64 BE
//	sched/{queue}/{ready_ms}{id}    - Scheduled index, ordered by ready time
//	locks/{queue}/{expires_ms}{id}  - Lease index, ordered by expiry
//	worker/{worker}/{id}            - Jobs currently leased to a worker
//	failed/{category}/{id}          - Failure ledger index
//	tag/{tag}/{id}                  - Tag index
//	stats/{queue}/{day_sec}         - Per-day statistics bucket (JSON)
//	done/{stamp}                    - Completed-log entry (JSON), bounded, trimmed
//	done_meta                       - Completed-log entry count
//
// # Job Lifecycle
//
//  1. Put: record written, indexed into wait/ or sched/ (delay); put on an
//     existing id moves the job and resets its schedule and retry counter
//  2. Pop: due scheduled jobs promoted, expired leases reclaimed, then the
//     lowest (priority, enqueue time) entries are leased
//  3. Processing: heartbeat extends the lease (lease holder only);
//     complete retires the job or re-queues it to a next queue;
//     fail moves it to the failure ledger (allowed from any state)
//  4. Expiry: reclaim retries the job or fails it with "retries exceeded"
//
// # Atomicity
//
// Every operation locks the engine mutex and applies all of its key changes
// through one indexed Pebble batch, so concurrent producers and workers never
// observe a job in two sets, popped twice, or double-decremented. The
// counters in meta/ are written in the same batch as every transition, which
// makes Length a single-point-read atomic snapshot.
//
// Reclamation is lazy: nothing runs in the background unless the optional
// sweeper is started, and then only as a latency optimization.
package queue
