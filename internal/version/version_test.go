package version

import "testing"

func TestGet_LinkTimeValuesWin(t *testing.T) {
	oldV, oldC := Version, Commit
	t.Cleanup(func() { Version, Commit = oldV, oldC })

	Version, Commit = "v1.2.3", "abc123"
	got := Get()
	if got.Version != "v1.2.3" || got.Commit != "abc123" {
		t.Fatalf("Get() = %+v", got)
	}
	if got.GoVersion == "" {
		t.Fatal("GoVersion should come from build info")
	}
}
