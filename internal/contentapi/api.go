// Package contentapi exposes the mapping table and key resolution as JSON
// for operators debugging why a path does or does not serve.
package contentapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"

	"github.com/keithlinneman/sitecontent-web/internal/content"
	"github.com/keithlinneman/sitecontent-web/internal/log"
	"github.com/keithlinneman/sitecontent-web/internal/mapping"
	"github.com/keithlinneman/sitecontent-web/internal/pathutil"
	"github.com/keithlinneman/sitecontent-web/internal/resolve"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// SnapshotProvider is implemented by content.Manager. When the source is
// also a provider, responses carry load metadata.
type SnapshotProvider interface {
	Get() (*content.Snapshot, bool)
}

type API struct {
	source mapping.Source
	logger log.Logger
}

func NewAPI(src mapping.Source, logger log.Logger) *API {
	if logger == nil {
		logger = log.Nop()
	}
	return &API{source: src, logger: logger}
}

func (api *API) RegisterRoutes(r chi.Router) {
	r.Get("/api/content/mappings", api.HandleMappings)
	r.Get("/api/content/resolve", api.HandleResolve)
}

func (api *API) HandleMappings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	entries, err := api.source.Mappings(ctx)
	if err != nil {
		log.FromContextOr(ctx, api.logger).Error(ctx, err, "mapping table unavailable")
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "mapping table unavailable"})
		return
	}

	resp := MappingsResponse{
		Version:    mapping.Digest(entries),
		ServerTime: time.Now().UTC().Truncate(time.Second),
		SitePaths:  mapping.SitePaths(entries),
		Entries:    entries,
	}
	if sp, ok := api.source.(SnapshotProvider); ok {
		if snap, ok := sp.Get(); ok {
			loaded := snap.LoadedAt.UTC().Truncate(time.Second)
			resp.Source = string(snap.Meta.Source)
			resp.LoadedAt = &loaded
		}
	}
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

func (api *API) HandleResolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw := strings.TrimSpace(r.URL.Query().Get("path"))
	if raw == "" {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "path query parameter is required"})
		return
	}
	p, ok := pathutil.Clean(raw)
	if !ok {
		api.writeJSON(ctx, w, http.StatusBadRequest, errorResponse{Error: "path is not allowed"})
		return
	}

	entries, err := api.source.Mappings(ctx)
	if err != nil {
		log.FromContextOr(ctx, api.logger).Error(ctx, err, "mapping table unavailable")
		api.writeJSON(ctx, w, http.StatusServiceUnavailable, errorResponse{Error: "mapping table unavailable"})
		return
	}

	resp := ResolveResponse{Path: p, Candidates: resolve.Keys(p, entries)}
	tries := resp.Candidates
	if len(tries) == 0 {
		resp.Candidates = []string{}
		resp.Fallback = true
		tries = []string{p}
	}
	resp.Keys = storageKeys(tries)
	api.writeJSON(ctx, w, http.StatusOK, resp)
}

// storageKeys expands candidates the same way the fetcher does.
func storageKeys(candidates []string) []string {
	var keys []string
	for _, c := range candidates {
		keys = append(keys, strings.TrimLeft(c, "/"))
		if strings.HasSuffix(c, "/") {
			keys = append(keys, strings.TrimLeft(c+"index.html", "/"))
		}
	}
	return keys
}

func (api *API) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn(ctx, "failed to encode JSON response", "error", err)
	}
}
