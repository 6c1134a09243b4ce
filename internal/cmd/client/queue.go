package client

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:     "queue",
		Aliases: []string{"q"},
		Short:   "Queue operations (priority jobs with leases and retry)",
		Long: `Queue operations for one-of-N job processing.

Job Lifecycle:
  Waiting → [Pop] → Running → [Complete] → Completed
     ↑                 ↓ (fail / retries exhausted)
  Scheduled          Failed

Core Operations:
  put         Enqueue a job (or move an existing one)
  pop         Lease the next jobs for a worker
  peek        Show what the next pop would return
  heartbeat   Extend a lease on a running job
  complete    Mark a job as successfully processed
  fail        Move a job into the failure ledger
  cancel      Remove a job in any state
  update      Replace a job's payload

Introspection:
  get         Fetch one job record
  list        List queues with per-state counts
  len         Count waiting + scheduled + running jobs
  stats       Per-day wait/run statistics for a queue
  failed      Browse failure categories or one category's jobs
  tagged      List jobs carrying a tag
  completed   List recently retired jobs
  workers     List lease-holding workers or one worker's jobs`,
	}

	queueCmd.AddCommand(
		newQueuePutCommand(baseURL),
		newQueuePopCommand(baseURL),
		newQueuePeekCommand(baseURL),
		newQueueHeartbeatCommand(baseURL),
		newQueueCompleteCommand(baseURL),
		newQueueFailCommand(baseURL),
		newQueueCancelCommand(baseURL),
		newQueueUpdateCommand(baseURL),
		newQueueGetCommand(baseURL),
		newQueueListCommand(baseURL),
		newQueueLenCommand(baseURL),
		newQueueStatsCommand(baseURL),
		newQueueFailedCommand(baseURL),
		newQueueTaggedCommand(baseURL),
		newQueueCompletedCommand(baseURL),
		newQueueWorkersCommand(baseURL),
	)

	return queueCmd
}

// newQueuePutCommand constructs the `queue put` subcommand.
func newQueuePutCommand(baseURL BaseURLFunc) *cobra.Command {
	putCmd := &cobra.Command{
		Use:   "put",
		Short: "Enqueue a job (or move an existing one)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			id, _ := cmd.Flags().GetString("id")
			data, _ := cmd.Flags().GetString("data")
			priority, _ := cmd.Flags().GetInt64("priority")
			tags, _ := cmd.Flags().GetStringArray("tag")
			delayMs, _ := cmd.Flags().GetInt64("delay-ms")
			retries, _ := cmd.Flags().GetInt64("retries")

			body := map[string]any{
				"queue":    queue,
				"id":       id,
				"data":     []byte(data),
				"priority": priority,
				"tags":     tags,
				"delay_ms": delayMs,
				"retries":  retries,
			}
			var out map[string]any
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/put", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	putCmd.Flags().StringP("queue", "q", "", "Queue name")
	putCmd.Flags().String("id", "", "Job ID (generated if empty; reuse to move a job)")
	putCmd.Flags().String("data", "", "Job payload")
	putCmd.Flags().Int64P("priority", "p", 0, "Job priority (lower = popped first)")
	putCmd.Flags().StringArray("tag", []string{}, "Job tag (repeat)")
	putCmd.Flags().Int64("delay-ms", 0, "Delay in milliseconds before the job becomes available")
	putCmd.Flags().Int64("retries", -1, "Retry budget (-1 = server default)")
	return putCmd
}

// newQueuePopCommand constructs the `queue pop` subcommand.
func newQueuePopCommand(baseURL BaseURLFunc) *cobra.Command {
	popCmd := &cobra.Command{
		Use:   "pop",
		Short: "Lease the next jobs for a worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			worker, _ := cmd.Flags().GetString("worker")
			count, _ := cmd.Flags().GetInt("count")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")

			if worker == "" {
				worker = fmt.Sprintf("cli-%d", time.Now().Unix())
			}
			body := map[string]any{
				"queue":  queue,
				"worker": worker,
				"count":  count,
			}
			if leaseMs > 0 {
				body["lease_expiry_ms"] = time.Now().UnixMilli() + leaseMs
			}
			var out struct {
				Jobs []map[string]any `json:"jobs"`
			}
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/pop", body, &out); err != nil {
				return err
			}
			for i, j := range out.Jobs {
				out.Jobs[i] = decodedJob(j)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"worker": worker, "jobs": out.Jobs})
		},
	}
	popCmd.Flags().StringP("queue", "q", "", "Queue name")
	popCmd.Flags().StringP("worker", "w", "", "Worker ID (auto-generated if empty)")
	popCmd.Flags().Int("count", 1, "Number of jobs to lease at once")
	popCmd.Flags().Int64("lease-ms", 0, "Lease duration in milliseconds (0 = server default)")
	return popCmd
}

// newQueuePeekCommand constructs the `queue peek` subcommand.
func newQueuePeekCommand(baseURL BaseURLFunc) *cobra.Command {
	peekCmd := &cobra.Command{
		Use:   "peek",
		Short: "Show what the next pop would return (without leasing)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			count, _ := cmd.Flags().GetInt("count")

			path := "/v1/queues/peek?queue=" + url.QueryEscape(queue) + "&count=" + strconv.Itoa(count)
			var out struct {
				Jobs []map[string]any `json:"jobs"`
			}
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), path, &out); err != nil {
				return err
			}
			for i, j := range out.Jobs {
				out.Jobs[i] = decodedJob(j)
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"jobs": out.Jobs})
		},
	}
	peekCmd.Flags().StringP("queue", "q", "", "Queue name")
	peekCmd.Flags().Int("count", 1, "Number of jobs to preview")
	return peekCmd
}

// newQueueHeartbeatCommand constructs the `queue heartbeat` subcommand.
func newQueueHeartbeatCommand(baseURL BaseURLFunc) *cobra.Command {
	heartbeatCmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Extend the lease on a running job",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			worker, _ := cmd.Flags().GetString("worker")
			leaseMs, _ := cmd.Flags().GetInt64("lease-ms")

			body := map[string]any{
				"job_id": id,
				"worker": worker,
			}
			if leaseMs > 0 {
				body["new_expiry_ms"] = time.Now().UnixMilli() + leaseMs
			}
			var out map[string]any
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/heartbeat", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	heartbeatCmd.Flags().String("id", "", "Job ID")
	heartbeatCmd.Flags().StringP("worker", "w", "", "Worker ID holding the lease")
	heartbeatCmd.Flags().Int64("lease-ms", 60000, "Additional lease time in milliseconds")
	return heartbeatCmd
}

// newQueueCompleteCommand constructs the `queue complete` subcommand.
func newQueueCompleteCommand(baseURL BaseURLFunc) *cobra.Command {
	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Mark a job as successfully processed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			worker, _ := cmd.Flags().GetString("worker")
			queue, _ := cmd.Flags().GetString("queue")
			nextQueue, _ := cmd.Flags().GetString("next-queue")
			delayMs, _ := cmd.Flags().GetInt64("delay-ms")
			data, _ := cmd.Flags().GetString("data")

			body := map[string]any{
				"job_id":     id,
				"worker":     worker,
				"queue":      queue,
				"next_queue": nextQueue,
				"delay_ms":   delayMs,
			}
			if data != "" {
				body["data"] = []byte(data)
			}
			var out map[string]any
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/complete", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	completeCmd.Flags().String("id", "", "Job ID")
	completeCmd.Flags().StringP("worker", "w", "", "Worker ID holding the lease")
	completeCmd.Flags().StringP("queue", "q", "", "Queue the job was popped from")
	completeCmd.Flags().String("next-queue", "", "Queue to move the job into after completion")
	completeCmd.Flags().Int64("delay-ms", 0, "Delay before the job is available in the next queue")
	completeCmd.Flags().String("data", "", "Replacement payload (optional)")
	return completeCmd
}

// newQueueFailCommand constructs the `queue fail` subcommand.
func newQueueFailCommand(baseURL BaseURLFunc) *cobra.Command {
	failCmd := &cobra.Command{
		Use:   "fail",
		Short: "Move a job into the failure ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			worker, _ := cmd.Flags().GetString("worker")
			category, _ := cmd.Flags().GetString("category")
			message, _ := cmd.Flags().GetString("message")

			body := map[string]any{
				"job_id":   id,
				"worker":   worker,
				"category": category,
				"message":  message,
			}
			var out map[string]any
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/fail", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	failCmd.Flags().String("id", "", "Job ID")
	failCmd.Flags().StringP("worker", "w", "", "Worker ID (optional)")
	failCmd.Flags().String("category", "", "Failure category (groups failures in the ledger)")
	failCmd.Flags().String("message", "", "Failure message")
	return failCmd
}

// newQueueCancelCommand constructs the `queue cancel` subcommand.
func newQueueCancelCommand(baseURL BaseURLFunc) *cobra.Command {
	cancelCmd := &cobra.Command{
		Use:   "cancel",
		Short: "Remove a job in any state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			body := map[string]any{"job_id": id}
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/cancel", body, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	cancelCmd.Flags().String("id", "", "Job ID")
	return cancelCmd
}

// newQueueUpdateCommand constructs the `queue update` subcommand.
func newQueueUpdateCommand(baseURL BaseURLFunc) *cobra.Command {
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Replace a job's payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			data, _ := cmd.Flags().GetString("data")
			body := map[string]any{"job_id": id, "data": []byte(data)}
			if err := postJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/update", body, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", "OK")
			return nil
		},
	}
	updateCmd.Flags().String("id", "", "Job ID")
	updateCmd.Flags().String("data", "", "New payload")
	return updateCmd
}

// newQueueGetCommand constructs the `queue get` subcommand.
func newQueueGetCommand(baseURL BaseURLFunc) *cobra.Command {
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Fetch one job record",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			var job map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/jobs?id="+url.QueryEscape(id), &job); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), decodedJob(job))
		},
	}
	getCmd.Flags().String("id", "", "Job ID")
	return getCmd
}

// newQueueListCommand constructs the `queue list` subcommand.
func newQueueListCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List queues with per-state counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues", &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

// newQueueLenCommand constructs the `queue len` subcommand.
func newQueueLenCommand(baseURL BaseURLFunc) *cobra.Command {
	lenCmd := &cobra.Command{
		Use:   "len",
		Short: "Count waiting + scheduled + running jobs in a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/length?queue="+url.QueryEscape(queue), &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	lenCmd.Flags().StringP("queue", "q", "", "Queue name")
	return lenCmd
}

// newQueueStatsCommand constructs the `queue stats` subcommand.
func newQueueStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Per-day wait/run statistics for a queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, _ := cmd.Flags().GetString("queue")
			dayMs, _ := cmd.Flags().GetInt64("day-ms")
			path := "/v1/queues/stats?queue=" + url.QueryEscape(queue)
			if dayMs > 0 {
				path += "&day_ms=" + strconv.FormatInt(dayMs, 10)
			}
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), path, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	statsCmd.Flags().StringP("queue", "q", "", "Queue name")
	statsCmd.Flags().Int64("day-ms", 0, "Any ms timestamp inside the UTC day to report (0 = today)")
	return statsCmd
}

// newQueueFailedCommand constructs the `queue failed` subcommand.
func newQueueFailedCommand(baseURL BaseURLFunc) *cobra.Command {
	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "Browse failure categories, or one category's jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			category, _ := cmd.Flags().GetString("category")
			start, _ := cmd.Flags().GetInt("start")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")

			path := "/v1/queues/failed"
			if category != "" {
				q := url.Values{}
				q.Set("category", category)
				q.Set("start", strconv.Itoa(start))
				q.Set("limit", strconv.Itoa(limit))
				if filter != "" {
					q.Set("filter", filter)
				}
				path += "?" + q.Encode()
			}
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), path, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	failedCmd.Flags().String("category", "", "Failure category (empty lists category counts)")
	failedCmd.Flags().Int("start", 0, "Page offset")
	failedCmd.Flags().Int("limit", 25, "Max jobs to return")
	failedCmd.Flags().String("filter", "", "CEL filter expression (e.g. 'json.kind == \"refund\"')")
	return failedCmd
}

// newQueueTaggedCommand constructs the `queue tagged` subcommand.
func newQueueTaggedCommand(baseURL BaseURLFunc) *cobra.Command {
	taggedCmd := &cobra.Command{
		Use:   "tagged",
		Short: "List jobs carrying a tag",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tag, _ := cmd.Flags().GetString("tag")
			start, _ := cmd.Flags().GetInt("start")
			limit, _ := cmd.Flags().GetInt("limit")
			filter, _ := cmd.Flags().GetString("filter")

			q := url.Values{}
			q.Set("tag", tag)
			q.Set("start", strconv.Itoa(start))
			q.Set("limit", strconv.Itoa(limit))
			if filter != "" {
				q.Set("filter", filter)
			}
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/tagged?"+q.Encode(), &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	taggedCmd.Flags().String("tag", "", "Tag to look up")
	taggedCmd.Flags().Int("start", 0, "Page offset")
	taggedCmd.Flags().Int("limit", 25, "Max jobs to return")
	taggedCmd.Flags().String("filter", "", "CEL filter expression")
	return taggedCmd
}

// newQueueCompletedCommand constructs the `queue completed` subcommand.
func newQueueCompletedCommand(baseURL BaseURLFunc) *cobra.Command {
	completedCmd := &cobra.Command{
		Use:   "completed",
		Short: "List recently retired jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), "/v1/queues/completed?limit="+strconv.Itoa(limit), &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	completedCmd.Flags().Int("limit", 25, "Max entries to return")
	return completedCmd
}

// newQueueWorkersCommand constructs the `queue workers` subcommand.
func newQueueWorkersCommand(baseURL BaseURLFunc) *cobra.Command {
	workersCmd := &cobra.Command{
		Use:   "workers",
		Short: "List lease-holding workers, or one worker's jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			worker, _ := cmd.Flags().GetString("worker")
			path := "/v1/queues/workers"
			if worker != "" {
				path += "?worker=" + url.QueryEscape(worker)
			}
			var out map[string]any
			if err := getJSON(cmd.Context(), resolveBaseURL(baseURL), path, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	workersCmd.Flags().StringP("worker", "w", "", "Worker ID (empty lists all workers)")
	return workersCmd
}
