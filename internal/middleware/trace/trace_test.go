package trace

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"deals/internal/log"
	"deals/internal/metrics"
)

func newRouter(seen *string) http.Handler {
	r := chi.NewRouter()
	r.Use(NewMiddleware(func(*http.Request) string { return "203.0.113.1" }).Handler)
	r.Get("/deals/{id}", func(w http.ResponseWriter, r *http.Request) {
		*seen = log.TraceIDFromContext(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})
	r.Get("/ok", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func TestMintsTraceID(t *testing.T) {
	var seen string
	rec := httptest.NewRecorder()
	newRouter(&seen).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/deals/7", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(HeaderTraceID))
}

func TestHonoursIncomingTraceID(t *testing.T) {
	var seen string
	r := httptest.NewRequest(http.MethodGet, "/deals/7", nil)
	r.Header.Set(HeaderTraceID, "abc123")
	rec := httptest.NewRecorder()
	newRouter(&seen).ServeHTTP(rec, r)

	assert.Equal(t, "abc123", seen)
	assert.Equal(t, "abc123", rec.Header().Get(HeaderTraceID))
}

func TestRecordsRoutePatternMetrics(t *testing.T) {
	var seen string
	h := newRouter(&seen)
	before := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/deals/{id}", "418"))
	beforeOK := testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ok", "200"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/deals/1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/deals/2", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))

	assert.Equal(t, before+2, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/deals/{id}", "418")))
	assert.Equal(t, beforeOK+1, testutil.ToFloat64(metrics.HTTPRequests.WithLabelValues(http.MethodGet, "/ok", "200")),
		"implicit 200 is recorded when the handler never sets a status")
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
