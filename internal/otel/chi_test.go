package otel

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareWithStatus(t *testing.T) {
	mw := MiddlewareWithStatus()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	h500 := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	rec = httptest.NewRecorder()
	h500.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/err", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMiddlewareWithStatus_ChiRouteContext(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MiddlewareWithStatus())
	r.Get("/v1/sectors/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sectors/clinic", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
