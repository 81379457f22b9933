package cryptoutil

import (
	"strings"
	"testing"
)

func TestSHA256Hex_KnownVector(t *testing.T) {
	// sha256("")
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := SHA256Hex(nil); got != want {
		t.Fatalf("SHA256Hex(nil) = %s", got)
	}
}

func TestHashEqual(t *testing.T) {
	h := SHA256Hex([]byte("mappings"))
	if !HashEqual(h, h) {
		t.Fatal("identical hashes should be equal")
	}
	if !HashEqual(h, strings.ToUpper(h)) {
		t.Fatal("comparison should ignore case")
	}
	if HashEqual(h, SHA256Hex([]byte("other"))) {
		t.Fatal("different hashes should not be equal")
	}
	if HashEqual(h, h[:10]) {
		t.Fatal("prefix should not be equal")
	}
}

func TestQuotedETag(t *testing.T) {
	tag := QuotedETag([]byte("<h1>hi</h1>"))
	if len(tag) != 34 || tag[0] != '"' || tag[33] != '"' {
		t.Fatalf("QuotedETag = %q", tag)
	}
	if tag != QuotedETag([]byte("<h1>hi</h1>")) {
		t.Fatal("ETag should be deterministic")
	}
}
