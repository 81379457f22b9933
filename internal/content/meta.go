package content

// Source names where a snapshot's entries came from.
type Source string

const (
	SourceUnknown Source = "unknown"
	SourceFile    Source = "file"
	SourceSSM     Source = "ssm"
	SourceStatic  Source = "static"
)

type Meta struct {
	// Version is mapping.Digest of the entries.
	Version string `json:"version"`
	Source  Source `json:"source"`
	Entries int    `json:"entries"`
}
