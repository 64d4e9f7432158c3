package publish

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/jsbench/internal/infrastructure/httpclient"
)

func newClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts := httpclient.DefaultOptions()
	opts.Retries = 0
	return New(httpclient.New(opts), server.URL+"/")
}

func TestPublish(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/shortcode", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, err := uuid.Parse(r.Header.Get("Idempotency-Key"))
		assert.NoError(t, err)

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"config":"abc"}`, string(body))

		w.Write([]byte(`{"code":"x7Yz"}`))
	})

	resp, err := client.Publish(context.Background(), []byte(`{"config":"abc"}`))
	require.NoError(t, err)
	assert.Equal(t, "x7Yz", resp.Code)
}

func TestPublishErrors(t *testing.T) {
	client := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	_, err := client.Publish(context.Background(), []byte(`{}`))
	var statusErr *httpclient.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadRequest, statusErr.Status)
	assert.Equal(t, http.MethodPost, statusErr.Method)

	_, err = client.Publish(context.Background(), []byte(`{`))
	assert.Error(t, err)
}

func TestPublishNotConfigured(t *testing.T) {
	client := New(httpclient.New(httpclient.DefaultOptions()), "")
	assert.False(t, client.Enabled())

	_, err := client.Publish(context.Background(), []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotConfigured)
}
