package client

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// startHTTPStub serves canned queue API responses and records requests.
type queuesStub struct {
	lastPut    map[string]any
	lastPop    map[string]any
	cancels    int32
	lastFailed string
}

func startHTTPStub(t *testing.T, stub *queuesStub) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/queues/put", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.lastPut = body
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "job-1"})
	})
	mux.HandleFunc("/v1/queues/pop", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		stub.lastPop = body
		_ = json.NewEncoder(w).Encode(map[string]any{
			"jobs": []map[string]any{{
				"id":    "job-1",
				"queue": "orders",
				"state": "running",
				"data":  "eyJvcmRlciI6NDJ9", // {"order":42}
			}},
		})
	})
	mux.HandleFunc("/v1/queues/cancel", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&stub.cancels, 1)
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("/v1/queues/failed", func(w http.ResponseWriter, r *http.Request) {
		stub.lastFailed = r.URL.RawQuery
		if r.URL.Query().Get("category") == "" {
			_ = json.NewEncoder(w).Encode(map[string]any{"groups": map[string]int64{"timeout": 2}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jobs": []map[string]any{}, "total": 2})
	})
	mux.HandleFunc("/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") != "job-1" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "job-1", "state": "waiting"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCommand(t *testing.T, srvURL string, args ...string) string {
	t.Helper()
	t.Setenv("QUARRY_API", srvURL)
	root := NewRoot(nil)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return buf.String()
}

func TestQueuePut_SendsFields(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)

	out := runCommand(t, srv.URL, "queue", "put",
		"--queue", "orders", "--data", `{"order":42}`,
		"--priority", "5", "--tag", "billing", "--tag", "eu")

	if !strings.Contains(out, "job-1") {
		t.Fatalf("expected job id in output, got: %s", out)
	}
	if stub.lastPut["queue"] != "orders" {
		t.Fatalf("queue not forwarded: %v", stub.lastPut)
	}
	if stub.lastPut["priority"] != float64(5) {
		t.Fatalf("priority not forwarded: %v", stub.lastPut)
	}
	tags, _ := stub.lastPut["tags"].([]any)
	if len(tags) != 2 || tags[0] != "billing" {
		t.Fatalf("tags not forwarded: %v", stub.lastPut)
	}
	// default retry budget is the server-side sentinel
	if stub.lastPut["retries"] != float64(-1) {
		t.Fatalf("retries not defaulted: %v", stub.lastPut)
	}
}

func TestQueuePop_DecodesPayload(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)

	out := runCommand(t, srv.URL, "queue", "pop", "--queue", "orders", "--worker", "w1", "--count", "2")

	if stub.lastPop["worker"] != "w1" || stub.lastPop["count"] != float64(2) {
		t.Fatalf("pop request not forwarded: %v", stub.lastPop)
	}
	if !strings.Contains(out, "data_json") || !strings.Contains(out, `"order": 42`) {
		t.Fatalf("expected decoded payload in output, got: %s", out)
	}
}

func TestQueuePop_AutoWorkerID(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)

	runCommand(t, srv.URL, "queue", "pop", "--queue", "orders")

	worker, _ := stub.lastPop["worker"].(string)
	if !strings.HasPrefix(worker, "cli-") {
		t.Fatalf("expected generated worker id, got: %v", stub.lastPop)
	}
}

func TestQueueCancel_PrintsStatus(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)

	out := runCommand(t, srv.URL, "queue", "cancel", "--id", "job-1")
	if !strings.Contains(out, "status: OK") {
		t.Fatalf("expected status in output, got: %s", out)
	}
	if stub.cancels != 1 {
		t.Fatalf("expected one cancel call, got %d", stub.cancels)
	}
}

func TestQueueFailed_FilterForwarded(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)

	out := runCommand(t, srv.URL, "queue", "failed")
	if !strings.Contains(out, "timeout") {
		t.Fatalf("expected groups in output, got: %s", out)
	}

	runCommand(t, srv.URL, "queue", "failed", "--category", "timeout", "--filter", `json.kind == "a"`)
	if !strings.Contains(stub.lastFailed, "category=timeout") || !strings.Contains(stub.lastFailed, "filter=") {
		t.Fatalf("expected category and filter in query, got: %s", stub.lastFailed)
	}
}

func TestQueueGet_ErrorSurfaced(t *testing.T) {
	stub := &queuesStub{}
	srv := startHTTPStub(t, stub)
	t.Setenv("QUARRY_API", srv.URL)

	root := NewRoot(nil)
	buf := &bytes.Buffer{}
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs([]string{"queue", "get", "--id", "nope"})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
