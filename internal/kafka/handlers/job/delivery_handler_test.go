package job

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/wb-go/wbf/retry"
)

func testStrategy(attempts int) retry.Strategy {
	return retry.Strategy{Attempts: attempts, Delay: time.Millisecond, Backoff: 1}
}

func TestHandleDeliversWithSecret(t *testing.T) {
	var gotSecret atomic.Value

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret.Store(r.Header.Get(SecretHeader))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewDeliveryHandler(srv.URL, "s3cret", testStrategy(1))

	err := h.Handle(context.Background(), kafka.Message{Value: []byte(`{"job_id":"x"}`)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := gotSecret.Load(); got != "s3cret" {
		t.Errorf("secret header = %v, want s3cret", got)
	}
}

func TestHandleDropsRejectedDelivery(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	h := NewDeliveryHandler(srv.URL, "wrong", testStrategy(3))

	// A 4xx rejection is final: no error (so the message commits) and
	// no retries.
	if err := h.Handle(context.Background(), kafka.Message{Value: []byte(`{}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("delivery attempts = %d, want 1", calls.Load())
	}
}

func TestHandleRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	h := NewDeliveryHandler(srv.URL, "s3cret", testStrategy(3))

	if err := h.Handle(context.Background(), kafka.Message{Value: []byte(`{}`)}); err == nil {
		t.Fatal("expected an error after exhausting the retry budget")
	}
	if calls.Load() != 3 {
		t.Errorf("delivery attempts = %d, want 3", calls.Load())
	}
}

func TestHandleRecoversMidBudget(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	h := NewDeliveryHandler(srv.URL, "s3cret", testStrategy(3))

	if err := h.Handle(context.Background(), kafka.Message{Value: []byte(`{}`)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("delivery attempts = %d, want 2", calls.Load())
	}
}
