package queuesvc

import (
	"context"
	"testing"

	cfgpkg "github.com/rzbill/quarry/internal/config"
	"github.com/rzbill/quarry/internal/queue"
	"github.com/rzbill/quarry/internal/runtime"
	pebblestore "github.com/rzbill/quarry/internal/storage/pebble"
)

func newServiceForTest(t *testing.T) *Service {
	t.Helper()
	dir := t.TempDir()
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfgpkg.Default()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return New(rt)
}

func TestPutPopCompleteRoundTrip(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	put, err := svc.Put(ctx, PutRequest{Queue: "jobs", Data: []byte(`{"n":1}`), Retries: -1, NowMs: 1000})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if put.ID == "" {
		t.Fatalf("expected generated id")
	}

	jobs, err := svc.Pop(ctx, PopRequest{Queue: "jobs", Worker: "w1", NowMs: 2000})
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != put.ID {
		t.Fatalf("pop got %v", jobs)
	}

	res, err := svc.Complete(ctx, CompleteRequest{JobID: put.ID, Worker: "w1", Queue: "jobs", NowMs: 3000})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !res.Completed {
		t.Fatalf("complete rejected")
	}

	n, err := svc.Length(ctx, "jobs", 4000)
	if err != nil {
		t.Fatalf("length: %v", err)
	}
	if n != 0 {
		t.Fatalf("length = %d after complete", n)
	}
}

func TestValidationErrors(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	if _, err := svc.Put(ctx, PutRequest{}); err == nil {
		t.Errorf("put without queue accepted")
	}
	if _, err := svc.Pop(ctx, PopRequest{Queue: "jobs"}); err == nil {
		t.Errorf("pop without worker accepted")
	}
	if _, err := svc.Heartbeat(ctx, HeartbeatRequest{Worker: "w1"}); err == nil {
		t.Errorf("heartbeat without job_id accepted")
	}
	if _, err := svc.Fail(ctx, FailRequest{JobID: "x"}); err == nil {
		t.Errorf("fail without category accepted")
	}
	if err := svc.Cancel(ctx, "", 0); err == nil {
		t.Errorf("cancel without job_id accepted")
	}
}

func TestPopCountClamped(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Put(ctx, PutRequest{Queue: "jobs", Retries: -1, NowMs: int64(1000 + i)}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	jobs, err := svc.Pop(ctx, PopRequest{Queue: "jobs", Worker: "w1", Count: 100000, NowMs: 2000})
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("popped %d, want 3", len(jobs))
	}
}

func TestFailedPageWithFilter(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	for i, payload := range []string{`{"kind":"a"}`, `{"kind":"b"}`} {
		put, err := svc.Put(ctx, PutRequest{Queue: "jobs", Data: []byte(payload), Retries: -1, NowMs: int64(1000 + i)})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		if _, err := svc.Fail(ctx, FailRequest{JobID: put.ID, Category: "boom", Message: "x", NowMs: 2000}); err != nil {
			t.Fatalf("fail: %v", err)
		}
	}

	groups, err := svc.FailedGroups(ctx)
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if groups["boom"] != 2 {
		t.Fatalf("boom group = %d", groups["boom"])
	}

	page, err := svc.Failed(ctx, "boom", 0, 25, `json.kind == "a"`)
	if err != nil {
		t.Fatalf("failed page: %v", err)
	}
	if len(page.Jobs) != 1 {
		t.Fatalf("filtered page = %d jobs", len(page.Jobs))
	}
	if page.Total != 2 {
		t.Fatalf("total = %d, want unfiltered category total", page.Total)
	}
}

func TestTaggedListing(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	put, err := svc.Put(ctx, PutRequest{Queue: "jobs", Tags: []string{"red"}, Retries: -1, NowMs: 1000})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	page, err := svc.Tagged(ctx, "red", 0, 25, "")
	if err != nil {
		t.Fatalf("tagged: %v", err)
	}
	if len(page.Jobs) != 1 || page.Jobs[0].ID != put.ID {
		t.Fatalf("tagged page = %v", page.Jobs)
	}
}

func TestWorkersAndCompleted(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	put, err := svc.Put(ctx, PutRequest{Queue: "jobs", Retries: -1, NowMs: 1000})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := svc.Pop(ctx, PopRequest{Queue: "jobs", Worker: "w1", NowMs: 2000}); err != nil {
		t.Fatalf("pop: %v", err)
	}

	workers, err := svc.Workers(ctx)
	if err != nil {
		t.Fatalf("workers: %v", err)
	}
	if len(workers) != 1 || workers[0].Name != "w1" || workers[0].Jobs != 1 {
		t.Fatalf("workers = %v", workers)
	}
	held, err := svc.WorkerJobs(ctx, "w1")
	if err != nil {
		t.Fatalf("worker jobs: %v", err)
	}
	if len(held) != 1 || held[0].State != queue.StateLeased {
		t.Fatalf("worker jobs = %v", held)
	}

	if _, err := svc.Complete(ctx, CompleteRequest{JobID: put.ID, Worker: "w1", Queue: "jobs", NowMs: 3000}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	entries, err := svc.Completed(ctx, 10)
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if len(entries) != 1 || entries[0].JobID != put.ID {
		t.Fatalf("completed log = %v", entries)
	}
}

func TestStatsExposed(t *testing.T) {
	svc := newServiceForTest(t)
	ctx := context.Background()

	put, err := svc.Put(ctx, PutRequest{Queue: "jobs", Retries: -1, NowMs: 1_000_000})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := svc.Pop(ctx, PopRequest{Queue: "jobs", Worker: "w1", NowMs: 1_005_000}); err != nil {
		t.Fatalf("pop: %v", err)
	}
	if _, err := svc.Complete(ctx, CompleteRequest{JobID: put.ID, Worker: "w1", Queue: "jobs", NowMs: 1_011_000}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	stats, err := svc.Stats(ctx, "jobs", 1_011_000)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Wait.Count != 1 || stats.Run.Count != 1 {
		t.Fatalf("stats counts = %d/%d", stats.Wait.Count, stats.Run.Count)
	}
	if stats.Wait.Mean != 5 || stats.Run.Mean != 6 {
		t.Fatalf("stats means = %v/%v", stats.Wait.Mean, stats.Run.Mean)
	}
}
