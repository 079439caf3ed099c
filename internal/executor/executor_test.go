package executor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/af-corp/intentd/internal/config"
	"github.com/af-corp/intentd/internal/types"
)

func newTestExecutor(baseURL string, mutate func(*config.ExecutorConfig)) *Executor {
	cfg := config.ExecutorConfig{
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxRPS:         1000,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	return New(func() config.ExecutorConfig { return cfg }, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func takeOwnership() Request {
	return Request{
		RequestID: "req-1",
		TenantID:  "t1",
		UserID:    "u1",
		Command: types.ActionCommand{
			ID:          "cmd-1",
			Type:        types.IntentTakeOwnership,
			EntityID:    "task-1",
			EntityType:  types.EntityTask,
			Description: "Assign \"login bug\" to you",
		},
	}
}

func TestExecute_TakeOwnership(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/items/task-1/assignee" {
			t.Errorf("unexpected call %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Tenant-ID") != "t1" || r.Header.Get("X-User-ID") != "u1" {
			t.Errorf("identity headers missing: %v", r.Header)
		}
		if r.Header.Get("Idempotency-Key") != "cmd-1" {
			t.Errorf("expected idempotency key cmd-1, got %q", r.Header.Get("Idempotency-Key"))
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["assigneeId"] != "u1" {
			t.Errorf("expected assigneeId u1, got %v", body)
		}
		w.Write([]byte(`{"id":"task-1","assigneeId":"u1"}`))
	}))
	defer srv.Close()

	res := newTestExecutor(srv.URL, nil).Execute(context.Background(), takeOwnership())
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Data["assigneeId"] != "u1" {
		t.Errorf("expected downstream data, got %v", res.Data)
	}
}

func TestExecute_RetriesIdempotentOn5xx(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	res := newTestExecutor(srv.URL, nil).Execute(context.Background(), takeOwnership())
	if !res.Success {
		t.Fatalf("expected success after retries, got %+v", res)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestExecute_RetriesBounded(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	res := newTestExecutor(srv.URL, func(c *config.ExecutorConfig) { c.MaxRetries = 2 }).
		Execute(context.Background(), takeOwnership())
	if res.Success {
		t.Fatal("expected failure")
	}
	if calls.Load() != 3 {
		t.Errorf("expected 1 call plus 2 retries, got %d", calls.Load())
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "502") {
		t.Errorf("expected downstream detail, got %v", res.Errors)
	}
}

func TestExecute_NonIdempotentRunsOnce(t *testing.T) {
	for _, typ := range []types.Intent{types.IntentCreateItem, types.IntentCloseSprint, types.IntentDeleteItem} {
		t.Run(string(typ), func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(http.StatusInternalServerError)
			}))
			defer srv.Close()

			req := takeOwnership()
			req.Command.Type = typ
			req.Command.Parameters = map[string]any{"type": "task", "title": "x"}
			res := newTestExecutor(srv.URL, nil).Execute(context.Background(), req)
			if res.Success {
				t.Fatal("expected failure")
			}
			if calls.Load() != 1 {
				t.Errorf("expected exactly one call, got %d", calls.Load())
			}
		})
	}
}

func TestExecute_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"item is closed"}`))
	}))
	defer srv.Close()

	res := newTestExecutor(srv.URL, nil).Execute(context.Background(), takeOwnership())
	if res.Success || calls.Load() != 1 {
		t.Fatalf("expected a single failed call, got %+v after %d calls", res, calls.Load())
	}
	if !strings.Contains(res.Errors[0], "item is closed") {
		t.Errorf("expected downstream message, got %v", res.Errors)
	}
}

func TestExecute_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	res := newTestExecutor(srv.URL, func(c *config.ExecutorConfig) { c.Timeout = 50 * time.Millisecond }).
		Execute(context.Background(), takeOwnership())
	if res.Success {
		t.Fatal("expected timeout failure")
	}
	if res.Errors[0] != "work-item service timed out" {
		t.Errorf("unexpected detail %v", res.Errors)
	}
}

type panicTransport struct{}

func (panicTransport) RoundTrip(*http.Request) (*http.Response, error) {
	panic("boom")
}

func TestExecute_PanicBecomesFailure(t *testing.T) {
	cfg := config.ExecutorConfig{BaseURL: "http://workitems", Timeout: time.Second}
	e := New(func() config.ExecutorConfig { return cfg }, &http.Client{Transport: panicTransport{}}, nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	res := e.Execute(context.Background(), takeOwnership())
	if res.Success || len(res.Errors) != 1 || res.Errors[0] != "internal executor error" {
		t.Fatalf("expected tagged failure, got %+v", res)
	}
}

func TestExecute_UnknownAction(t *testing.T) {
	req := takeOwnership()
	req.Command.Type = types.Intent("rename")
	res := newTestExecutor("http://unused", nil).Execute(context.Background(), req)
	if res.Success {
		t.Fatal("expected failure for unknown action")
	}
}

func TestRoute(t *testing.T) {
	req := takeOwnership()
	req.Command.Type = types.IntentUpdateStatus
	req.Command.Parameters = map[string]any{"status": "blocked"}
	ep, err := route(req)
	if err != nil {
		t.Fatal(err)
	}
	if ep.method != http.MethodPut || ep.path != "/v1/items/task-1/status" || ep.body["status"] != "blocked" {
		t.Errorf("unexpected endpoint %+v", ep)
	}

	req.Command.Type = types.IntentCloseSprint
	req.Command.EntityID = "sprint/12"
	ep, _ = route(req)
	if ep.path != "/v1/sprints/sprint%2F12/close" {
		t.Errorf("entity id must be path-escaped, got %s", ep.path)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("expected untouched string, got %q", got)
	}
	// "é" is two bytes; cutting at 4 would split the second one.
	got := truncate("abcééé", 4)
	if !utf8.ValidString(got) {
		t.Fatalf("truncate split a rune: %q", got)
	}
	if got != "abc..." {
		t.Errorf("expected %q, got %q", "abc...", got)
	}
	if got := truncate("abcééé", 5); got != "abcé..." {
		t.Errorf("expected %q, got %q", "abcé...", got)
	}
}
