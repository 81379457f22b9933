// Package pathutil validates request paths before they are turned into
// storage keys.
package pathutil

import (
	"path"
	"strings"
)

// HasDotSegments reports whether any segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// Clean returns p rooted at "/" with duplicate slashes collapsed and a
// trailing slash kept. ok is false for paths containing NUL, a backslash,
// or dot segments; those are refused rather than normalized so a key can
// never escape its mapped prefix.
func Clean(p string) (clean string, ok bool) {
	if p == "" {
		p = "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if strings.ContainsAny(p, "\x00\\") || HasDotSegments(p) {
		return "", false
	}
	clean = path.Clean(p)
	if strings.HasSuffix(p, "/") && clean != "/" {
		clean += "/"
	}
	return clean, true
}
