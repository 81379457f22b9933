package httpmw

import (
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// MappingInfo reports the active mapping table version.
type MappingInfo interface {
	ContentVersion() string
}

// MappingHeaders sets X-Mapping-Version (first 12 hex chars of the table
// digest) and tags the request span with the full digest.
func MappingHeaders(info MappingInfo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if info == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v := info.ContentVersion(); v != "" {
				short := v
				if len(short) > 12 {
					short = short[:12]
				}
				w.Header().Set("X-Mapping-Version", short)
				if span := trace.SpanFromContext(r.Context()); span.IsRecording() {
					span.SetAttributes(attribute.String("mapping.version", v))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
