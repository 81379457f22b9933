package contentapi

import (
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/mapping"
)

// MappingsResponse describes the mapping table the server is resolving with.
type MappingsResponse struct {
	Version    string          `json:"version"`
	Source     string          `json:"source,omitempty"`
	LoadedAt   *time.Time      `json:"loaded_at,omitempty"`
	ServerTime time.Time       `json:"server_time"`
	SitePaths  []string        `json:"site_paths"`
	Entries    []mapping.Entry `json:"entries"`
}

// ResolveResponse lists, in order, the storage keys the fetcher would try.
type ResolveResponse struct {
	Path       string   `json:"path"`
	Candidates []string `json:"candidates"`
	Keys       []string `json:"keys"`
	Fallback   bool     `json:"fallback"`
}

type errorResponse struct {
	Error string `json:"error"`
}
