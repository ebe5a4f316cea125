package ingest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fusionlabs-tech/chronos-synapse-sub001/pkg/models"
)

// noSleep records requested backoff delays instead of waiting.
func noSleep(delays *[]time.Duration) func(ctx context.Context, d time.Duration) error {
	return func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRegisterJobsSendsCredentialAndPayload(t *testing.T) {
	var gotKey string
	var gotBody map[string][]models.JobSignature

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, RegisterPath, r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	err := client.RegisterJobs(context.Background(), []models.JobSignature{
		{ID: "daily", Name: "Daily", RunMode: models.RunModeRecurring, Schedule: "0 0 * * *"},
	})

	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	require.Len(t, gotBody["jobs"], 1)
	assert.Equal(t, "daily", gotBody["jobs"][0].ID)
}

func TestSubmitExecutionsRetriesTransientStatuses(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts <= 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(server.URL, "secret", WithSleeper(noSleep(&delays)))

	event := models.NewExecutionEvent("daily", "trg_1", time.Now())
	err := client.SubmitExecutions(context.Background(), []*models.ExecutionEvent{event})

	require.NoError(t, err)
	assert.Equal(t, 5, attempts)
	// 1000ms, 2000ms, 4000ms, then capped at 8000ms
	assert.Equal(t, []time.Duration{
		1000 * time.Millisecond,
		2000 * time.Millisecond,
		4000 * time.Millisecond,
		8000 * time.Millisecond,
	}, delays)
}

func TestSubmitExecutionsExhaustsAttempts(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(server.URL, "secret", WithSleeper(noSleep(&delays)))

	event := models.NewExecutionEvent("daily", "trg_1", time.Now())
	err := client.SubmitExecutions(context.Background(), []*models.ExecutionEvent{event})

	require.Error(t, err)
	assert.Equal(t, 5, attempts)
	assert.Len(t, delays, 4)

	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, 5, apiErr.Attempts)
}

func TestSubmitExecutionsFailsFastOnClientError(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad payload", http.StatusBadRequest)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(server.URL, "secret", WithSleeper(noSleep(&delays)))

	event := models.NewExecutionEvent("daily", "trg_1", time.Now())
	err := client.SubmitExecutions(context.Background(), []*models.ExecutionEvent{event})

	require.Error(t, err)
	assert.Equal(t, 1, attempts, "client errors must not be retried")
	assert.Empty(t, delays)

	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

func TestTooManyRequestsIsRetryable(t *testing.T) {
	var attempts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	var delays []time.Duration
	client := NewClient(server.URL, "secret", WithSleeper(noSleep(&delays)))

	err := client.RegisterJobs(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []time.Duration{1000 * time.Millisecond}, delays)
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1000 * time.Millisecond},
		{2, 2000 * time.Millisecond},
		{3, 4000 * time.Millisecond},
		{4, 8000 * time.Millisecond},
		{5, 8000 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := backoffDelay(tt.attempt); got != tt.want {
			t.Errorf("backoffDelay(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}
