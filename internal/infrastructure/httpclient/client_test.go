package httpclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/resilience"
)

func testOptions() Options {
	opts := DefaultOptions()
	opts.Retries = 0
	opts.Timeout = 5 * time.Second
	opts.Breaker = resilience.Settings{Threshold: 2, Cooldown: time.Minute}
	return opts
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "jsbench/1.0", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	resp, err := New(testOptions()).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.String())
}

func TestGetStatusError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := New(testOptions())
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		var statusErr *StatusError
		require.True(t, errors.As(err, &statusErr))
		assert.Equal(t, http.StatusNotFound, statusErr.Status)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(testOptions())
	for i := 0; i < 2; i++ {
		_, err := c.Get(context.Background(), srv.URL)
		require.Error(t, err)
	}

	_, err := c.Get(context.Background(), srv.URL)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	opts := testOptions()
	opts.Retries = 2
	opts.MinWait = time.Millisecond
	opts.MaxWait = 5 * time.Millisecond

	resp, err := New(opts).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}
