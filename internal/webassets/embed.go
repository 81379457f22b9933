// Package webassets embeds the pages the server can always answer with,
// even when the object store or the mapping table is unavailable.
package webassets

import (
	"embed"
	"html/template"
	"io/fs"

	"github.com/keithlinneman/sitecontent-web/internal/xerrors"
)

//go:embed fallback templates
var embedded embed.FS

// FallbackFS holds maintenance.html and 404.html.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(xerrors.Wrap(err, "webassets: fallback subfs"))
	}
	return sub
}

// MarkdownLayout wraps rendered markdown. It expects .Title (string) and
// .Body (template.HTML).
func MarkdownLayout() (*template.Template, error) {
	t, err := template.ParseFS(embedded, "templates/markdown.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "parse markdown layout")
	}
	return t, nil
}
