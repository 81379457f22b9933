package sitehttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestRegisterRoutes_Fallback(t *testing.T) {
	var hits []string
	site := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.Method+" "+r.URL.Path)
		w.WriteHeader(http.StatusTeapot)
	})

	r := chi.NewRouter()
	r.Get("/api/content/mappings", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	New(site).RegisterRoutes(r)

	tests := []struct {
		method, path string
		want         int
	}{
		{http.MethodGet, "/api/content/mappings", http.StatusOK},
		{http.MethodGet, "/docs/", http.StatusTeapot},
		{http.MethodHead, "/index.html", http.StatusTeapot},
		{http.MethodPost, "/api/content/mappings", http.StatusTeapot},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
	if len(hits) != 3 {
		t.Fatalf("site handler hits = %v", hits)
	}
}
