package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/sdk/zctx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInjectLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lg := zap.New(core)

	h := Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			zctx.From(r.Context()).Info("handled")
			w.WriteHeader(http.StatusNoContent)
		}),
		RequestID(),
		InjectLogger(lg),
	)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "handled", entries[0].Message)
	assert.Equal(t, "req-abc-123", entries[0].ContextMap()["request_id"])
}

func TestLogRequests(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lg := zap.New(core)

	h := Wrap(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}),
		InjectLogger(lg),
		LogRequests(),
	)

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/orders", fields["path"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
}
