package content

import (
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/mapping"
)

// Snapshot is an immutable copy of the mapping table.
type Snapshot struct {
	Entries  []mapping.Entry
	Meta     Meta
	LoadedAt time.Time
}

// NewSnapshot copies entries and stamps them with their digest.
func NewSnapshot(entries []mapping.Entry, src Source) Snapshot {
	cp := make([]mapping.Entry, len(entries))
	copy(cp, entries)
	return Snapshot{
		Entries: cp,
		Meta: Meta{
			Version: mapping.Digest(cp),
			Source:  src,
			Entries: len(cp),
		},
	}
}
