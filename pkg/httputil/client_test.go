package httputil

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-t0/pkg/logger"
)

func TestNew(t *testing.T) {
	client := New(logger.NewNop())
	require.NotNil(t, client.httpClient)
	assert.Equal(t, 3, client.retryConfig.MaxRetries)
	assert.True(t, client.retryConfig.Enabled)
	assert.Equal(t, 5*time.Minute, client.httpClient.Timeout)
}

func TestDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("instrument_id,timestamp\n"))
	}))
	defer server.Close()

	var buf bytes.Buffer
	n, err := New(logger.NewNop()).Download(context.Background(), server.URL, &buf)
	require.NoError(t, err)
	assert.EqualValues(t, buf.Len(), n)
	assert.Equal(t, "instrument_id,timestamp\n", buf.String())
}

func TestDownload_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := New(logger.NewNop()).WithRetry(3, time.Millisecond)

	var buf bytes.Buffer
	_, err := client.Download(context.Background(), server.URL, &buf)
	require.NoError(t, err)
	assert.Equal(t, "ok", buf.String())
	assert.EqualValues(t, 3, calls.Load())
}

func TestDownload_StatusError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		retry  bool
		calls  int32
	}{
		{"not found is final", http.StatusNotFound, true, 1},
		{"server error exhausts retries", http.StatusInternalServerError, true, 3},
		{"no retry", http.StatusInternalServerError, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			client := New(logger.NewNop()).WithRetry(2, time.Millisecond)
			if !tt.retry {
				client.DisableRetry()
			}

			_, err := client.Download(context.Background(), server.URL, &bytes.Buffer{})
			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.status, se.StatusCode)
			assert.Equal(t, tt.calls, calls.Load())
		})
	}
}

func TestDownload_ContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := New(logger.NewNop()).WithRetry(5, time.Hour)
	_, err := client.Download(ctx, server.URL, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(http.StatusTooManyRequests))
	assert.True(t, IsRetryableError(http.StatusBadGateway))
	assert.False(t, IsRetryableError(http.StatusNotFound))
	assert.False(t, IsRetryableError(http.StatusOK))
}
