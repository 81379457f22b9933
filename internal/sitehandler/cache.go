package sitehandler

import (
	"path"
	"strings"
)

var assetExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true,
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".gif": true, ".svg": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true,
	".map": true,
}

// cacheControlFor picks a policy from the storage key's extension. Keys
// without an extension are treated as pages.
func cacheControlFor(key string, o *Options) string {
	ext := strings.ToLower(path.Ext(key))
	switch {
	case ext == "" || ext == ".html" || ext == ".htm" || ext == ".md":
		return o.HTMLCacheControl
	case assetExts[ext]:
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
