// Package resolve turns a requested content path into the ordered list of
// storage keys that may hold it.
package resolve

import (
	"context"
	"strings"

	"github.com/keithlinneman/sitecontent-web/internal/mapping"
	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

// Keys returns candidate storage keys for contentPath in table order.
//
// A "/" entry catches everything: the path is kept as-is when it already
// contains the entry's s3_path, otherwise it is placed under s3_path. Any
// other entry rewrites a matching leading site_path to its s3_path. The
// result is empty when nothing matches.
func Keys(contentPath string, entries []mapping.Entry) []string {
	if !strings.HasPrefix(contentPath, "/") {
		contentPath = "/" + contentPath
	}

	var keys []string
	for _, e := range entries {
		switch {
		case e.SitePath == "/":
			if strings.Contains(contentPath, e.S3Path) {
				keys = append(keys, contentPath)
			} else {
				keys = append(keys, join(e.S3Path, strings.TrimLeft(contentPath, "/")))
			}
		case strings.HasPrefix(contentPath, e.SitePath):
			keys = append(keys, e.S3Path+strings.TrimPrefix(contentPath, e.SitePath))
		}
	}
	return keys
}

// join appends rel to base with exactly one separator. A trailing slash on
// rel survives, so directory requests still look like directories.
func join(base, rel string) string {
	if base == "" {
		return rel
	}
	if strings.HasSuffix(base, "/") {
		return base + rel
	}
	return base + "/" + rel
}

// Resolver loads the mapping table from its Source on every call.
type Resolver struct {
	Source mapping.Source
}

func New(src mapping.Source) *Resolver { return &Resolver{Source: src} }

// Resolve returns the candidate keys for contentPath.
func (r *Resolver) Resolve(ctx context.Context, contentPath string) ([]string, error) {
	entries, err := r.Source.Mappings(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load mappings")
	}
	return Keys(contentPath, entries), nil
}
