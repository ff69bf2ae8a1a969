package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/franz/xeenaps-tracer/internal/util"
)

func fastRetry() *util.RetryConfig {
	return &util.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestDoPostsEnvelope(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode body: %v", err)
		}
		w.Write([]byte(`{"status":"success","data":"hello"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry()})
	resp, err := c.Do(context.Background(), Request{Action: "aiProxy", SubAction: "call", Payload: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if got.Action != "aiProxy" || got.SubAction != "call" {
		t.Errorf("unexpected envelope: %+v", got)
	}
	var data string
	if err := json.Unmarshal(resp.Data, &data); err != nil || data != "hello" {
		t.Errorf("unexpected data %s (%v)", resp.Data, err)
	}
}

func TestDoErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"error","message":"quota"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry()})
	resp, err := c.Do(context.Background(), Request{Action: "x"})
	if !errors.Is(err, ErrGatewayStatus) {
		t.Fatalf("expected ErrGatewayStatus, got %v", err)
	}
	if resp == nil || resp.Message != "quota" {
		t.Errorf("expected envelope to be returned with the error, got %+v", resp)
	}
}

func TestDoRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry()})
	if _, err := c.Do(context.Background(), Request{Action: "x"}); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(Options{BaseURL: srv.URL, Rate: 1000, Retry: fastRetry()})
	_, err := c.Do(context.Background(), Request{Action: "x"})

	var statusErr *util.HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 status error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}

func TestDoAtOverridesEndpoint(t *testing.T) {
	var hit int32
	node := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hit, 1)
		w.Write([]byte(`{"status":"success"}`))
	}))
	defer node.Close()

	c := NewClient(Options{Rate: 1000, Retry: fastRetry()})
	if c.Configured() {
		t.Error("client without base url should not report configured")
	}
	if _, err := c.Do(context.Background(), Request{Action: "x"}); !errors.Is(err, util.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := c.DoAt(context.Background(), node.URL, Request{Action: "x"}); err != nil {
		t.Fatalf("DoAt failed: %v", err)
	}
	if hit != 1 {
		t.Errorf("expected storage node to be hit once, got %d", hit)
	}
}
