// Package queuesvc provides the service layer for queue operations.
//
// # Overview
//
// The queues service implements one-of-N job distribution: each job is
// leased to exactly one worker at a time. It is a thin validation and
// defaults layer over the queue engine, shared by the HTTP controllers and
// the CLI.
//
// # Core Concepts
//
//   - Lease: temporary exclusive ownership of a job (default 60s)
//   - Retry budget: reclaims consume it; exhaustion moves the job to the
//     failure ledger under "retries exceeded"
//   - Failure ledger: failed jobs grouped by category, kept until canceled
//     or re-put
//   - Statistics: per (queue, UTC day) wait/run aggregates with a
//     multi-resolution histogram
//
// # Job Flow
//
//  1. Producer → Put → waiting (or scheduled when delayed)
//  2. Worker → Pop → leased, heartbeat to keep the lease
//  3. Worker → Complete → retired (or re-queued into a next queue)
//  4. [OR] Worker → Fail → failure ledger
//  5. [OR] Lease expires → reclaimed on next queue access → retry or ledger
//
// # Introspection
//
//   - Queues: per-queue waiting/scheduled/running/stalled counts
//   - Failed/FailedGroups: browse the failure ledger
//   - Tagged: jobs by tag, with optional CEL attribute filters
//   - Workers: active lease holders and their jobs
//   - Completed: bounded log of recently retired jobs
package queuesvc
