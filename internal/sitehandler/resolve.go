package sitehandler

import (
	"mime"
	"path"
	"strings"
)

// wantsDirectoryRedirect reports whether a miss on p is worth retrying as
// p+"/": extensionless paths without a trailing slash.
func wantsDirectoryRedirect(p string) bool {
	return p != "/" && !strings.HasSuffix(p, "/") && path.Ext(p) == ""
}

// isMarkdown matches by key extension or stored content type.
func isMarkdown(key, contentType string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".md", ".markdown":
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	return err == nil && mt == "text/markdown"
}

// pageTitle derives a title from the first "# " heading, else the file name.
func pageTitle(key string, src []byte) string {
	for _, line := range strings.SplitN(string(src), "\n", 50) {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return strings.TrimSuffix(path.Base(key), path.Ext(key))
}
