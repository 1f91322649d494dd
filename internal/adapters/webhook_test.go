package adapters

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotConfiguredIsSkipped(t *testing.T) {
	w := NewWebhook("webhook", "", time.Second)
	assert.False(t, w.IsEnabled(context.Background()))
	r := w.Execute(ExecutionContext{Context: context.Background(), ActionID: "a1"})
	assert.Equal(t, ReceiptSkipped, r.Kind)
	assert.Equal(t, "not_configured", r.Reason)
}

func TestWebhookSuccessReturnsOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhook("webhook", srv.URL, time.Second)
	r := w.Execute(ExecutionContext{Context: context.Background(), ActionID: "a1", Content: "hi"})

	assert.Equal(t, ReceiptOK, r.Kind)
	require.NotEmpty(t, r.DeliveryID)
}

func TestWebhookRateLimitedMapsTo429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	w := NewWebhook("webhook", srv.URL, time.Second)
	r := w.Execute(ExecutionContext{Context: context.Background(), ActionID: "a1"})

	assert.Equal(t, ReceiptFailed, r.Kind)
	assert.Equal(t, "rate_limited", r.Reason)
}

func TestWebhookServerErrorMapsToTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	w := NewWebhook("webhook", srv.URL, time.Second)
	r := w.Execute(ExecutionContext{Context: context.Background(), ActionID: "a1"})

	assert.Equal(t, ReceiptFailed, r.Kind)
	assert.Equal(t, "transient_error", r.Reason)
}

func TestWebhookClientErrorMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := NewWebhook("webhook", srv.URL, time.Second)
	r := w.Execute(ExecutionContext{Context: context.Background(), ActionID: "a1"})

	assert.Equal(t, ReceiptFailed, r.Kind)
	assert.Equal(t, "upstream_error", r.Reason)
}
