// Package mapping loads the table that maps public site paths to storage key
// prefixes in the content bucket.
//
// The table is a JSON array:
//
//	[
//	  {"site_path": "/doc/libs/", "s3_path": "/archives/"},
//	  {"site_path": "/",          "s3_path": "/site/develop/"}
//	]
//
// Entry order matters: candidate keys are tried in the order their entries
// appear.
package mapping

import (
	"context"
	"os"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/keithlinneman/sitecontent-web/internal/cryptoutil"
	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry maps one public path prefix to one storage key prefix.
type Entry struct {
	SitePath string `json:"site_path"`
	S3Path   string `json:"s3_path"`
}

// Source yields the current mapping table.
type Source interface {
	Mappings(ctx context.Context) ([]Entry, error)
}

// Parse decodes a JSON mapping table. Unknown fields are ignored.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, xerrors.Wrap(err, "decode mapping table")
	}
	for i, e := range entries {
		if e.SitePath == "" {
			return nil, xerrors.Newf("mapping entry %d: site_path is empty", i)
		}
	}
	return entries, nil
}

// LoadFile reads and parses the mapping table at path.
func LoadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrapf(err, "read mapping file %s", path)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, xerrors.Wrapf(err, "mapping file %s", path)
	}
	return entries, nil
}

// FileSource re-reads the file on every call, so edits are picked up
// without a restart.
type FileSource struct {
	Path string
}

func (s FileSource) Mappings(ctx context.Context) ([]Entry, error) {
	return LoadFile(s.Path)
}

// Static is a fixed table, mostly useful in tests and for seeding caches.
type Static []Entry

func (s Static) Mappings(context.Context) ([]Entry, error) { return s, nil }

// Digest returns a stable sha256 over the table. Two tables with the same
// entries in the same order have the same digest.
func Digest(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.SitePath)
		b.WriteByte(0)
		b.WriteString(e.S3Path)
		b.WriteByte('\n')
	}
	return cryptoutil.SHA256Hex([]byte(b.String()))
}

// SitePaths returns the distinct site paths in the table, sorted.
func SitePaths(entries []Entry) []string {
	seen := make(map[string]struct{}, len(entries))
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.SitePath]; ok {
			continue
		}
		seen[e.SitePath] = struct{}{}
		out = append(out, e.SitePath)
	}
	sort.Strings(out)
	return out
}
