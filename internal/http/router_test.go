package httpapi

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"personhood/pkg/requestcontext"
	"personhood/pkg/testutil"
)

func TestHealthz(t *testing.T) {
	t.Run("all checks pass", func(t *testing.T) {
		router := NewRouter(Options{Health: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		}})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
		body := testutil.DecodeJSON(t, rr)
		assert.Equal(t, "ok", body["status"])
	})

	t.Run("failing dependency", func(t *testing.T) {
		router := NewRouter(Options{Health: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		}})
		rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		body := testutil.DecodeJSON(t, rr)
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, map[string]any{"redis": "connection refused"}, body["checks"])
	})
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "personhood_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	router := NewRouter(Options{Gatherer: reg})
	rr := testutil.DoRequest(router, testutil.NewJSONRequest(t, http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "personhood_test_total 1")
}

func TestSharedMiddlewarePopulatesContext(t *testing.T) {
	var requestID string
	var hasTime bool
	router := NewRouter(Options{Routes: []RouteRegistrar{func(r chi.Router) {
		r.Get("/probe", func(w http.ResponseWriter, r *http.Request) {
			requestID = requestcontext.RequestID(r.Context())
			hasTime = !requestcontext.Now(r.Context()).IsZero()
			w.WriteHeader(http.StatusNoContent)
		})
	}}})

	req := testutil.NewJSONRequest(t, http.MethodGet, "/probe", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := testutil.DoRequest(router, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "req-123", requestID)
	assert.True(t, hasTime)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}
