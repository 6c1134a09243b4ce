package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/rzbill/quarry/internal/config"
	"github.com/rzbill/quarry/internal/runtime"
	pebblestore "github.com/rzbill/quarry/internal/storage/pebble"
	logpkg "github.com/rzbill/quarry/pkg/log"
)

func newServerForTest(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger)
}

func doJSON(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s := newServerForTest(t)
	w := doJSON(t, s, http.MethodGet, "/v1/healthz", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestPutPopCompleteHandlers(t *testing.T) {
	s := newServerForTest(t)

	w := doJSON(t, s, http.MethodPost, "/v1/queues/put",
		`{"queue":"jobs","data":"eyJuIjoxfQ==","retries":-1,"now_ms":1000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("put status: %d body: %s", w.Code, w.Body.String())
	}
	var put struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &put); err != nil || put.ID == "" {
		t.Fatalf("put response: %s (%v)", w.Body.String(), err)
	}

	w = doJSON(t, s, http.MethodPost, "/v1/queues/pop",
		`{"queue":"jobs","worker":"w1","now_ms":2000}`)
	if w.Code != http.StatusOK {
		t.Fatalf("pop status: %d body: %s", w.Code, w.Body.String())
	}
	var popped struct {
		Jobs []struct {
			ID string `json:"id"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &popped); err != nil {
		t.Fatalf("pop decode: %v", err)
	}
	if len(popped.Jobs) != 1 || popped.Jobs[0].ID != put.ID {
		t.Fatalf("pop response: %s", w.Body.String())
	}

	body := fmt.Sprintf(`{"job_id":%q,"worker":"w1","queue":"jobs","now_ms":3000}`, put.ID)
	w = doJSON(t, s, http.MethodPost, "/v1/queues/complete", body)
	if w.Code != http.StatusOK {
		t.Fatalf("complete status: %d body: %s", w.Code, w.Body.String())
	}
	var comp struct {
		Completed bool `json:"completed"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &comp); err != nil || !comp.Completed {
		t.Fatalf("complete response: %s (%v)", w.Body.String(), err)
	}
}

func TestLengthAndStatsHandlers(t *testing.T) {
	s := newServerForTest(t)

	doJSON(t, s, http.MethodPost, "/v1/queues/put", `{"queue":"jobs","retries":-1,"now_ms":1000}`)

	w := doJSON(t, s, http.MethodGet, "/v1/queues/length?queue=jobs&now_ms=2000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("length status: %d", w.Code)
	}
	var l struct {
		Length int64 `json:"length"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &l); err != nil || l.Length != 1 {
		t.Fatalf("length response: %s", w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/v1/queues/stats?queue=jobs&day_ms=2000", "")
	if w.Code != http.StatusOK {
		t.Fatalf("stats status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"histogram"`) {
		t.Fatalf("stats response missing histogram: %s", w.Body.String())
	}
}

func TestFailedAndCancelHandlers(t *testing.T) {
	s := newServerForTest(t)

	w := doJSON(t, s, http.MethodPost, "/v1/queues/put", `{"queue":"jobs","retries":-1,"now_ms":1000}`)
	var put struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &put)

	body := fmt.Sprintf(`{"job_id":%q,"category":"boom","message":"exploded","now_ms":2000}`, put.ID)
	w = doJSON(t, s, http.MethodPost, "/v1/queues/fail", body)
	if w.Code != http.StatusOK {
		t.Fatalf("fail status: %d body: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/v1/queues/failed", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "boom") {
		t.Fatalf("failed groups: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/v1/queues/failed?category=boom", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), put.ID) {
		t.Fatalf("failed page: %d %s", w.Code, w.Body.String())
	}

	body = fmt.Sprintf(`{"job_id":%q}`, put.ID)
	w = doJSON(t, s, http.MethodPost, "/v1/queues/cancel", body)
	if w.Code != http.StatusNoContent {
		t.Fatalf("cancel status: %d", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/v1/queues/cancel", body)
	if w.Code != http.StatusNotFound {
		t.Fatalf("cancel of unknown job: %d", w.Code)
	}
}

func TestGetJobHandler(t *testing.T) {
	s := newServerForTest(t)

	w := doJSON(t, s, http.MethodPost, "/v1/queues/put", `{"queue":"jobs","retries":-1,"now_ms":1000}`)
	var put struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &put)

	w = doJSON(t, s, http.MethodGet, "/v1/jobs?id="+put.ID, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"waiting"`) {
		t.Fatalf("get job: %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/v1/jobs?id=nope", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("get missing job: %d", w.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newServerForTest(t)
	w := doJSON(t, s, http.MethodGet, "/v1/queues/put", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	dir := t.TempDir()
	cfg := cfgpkg.Default()
	cfg.HTTP.RateLimitRPS = 1
	cfg.HTTP.RateLimitBurst = 2
	rt, err := runtime.Open(runtime.Options{DataDir: dir, Fsync: pebblestore.FsyncModeAlways, Config: cfg})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	defer rt.Close()
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	s := New(rt, logger)

	var last int
	for i := 0; i < 5; i++ {
		w := doJSON(t, s, http.MethodGet, "/v1/healthz", "")
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}
