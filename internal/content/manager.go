package content

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/sitecontent-web/internal/mapping"
)

var ErrNoSnapshot = errors.New("content: no active snapshot")

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set makes s the active snapshot.
func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)
}

func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil
}

// Mappings returns the active entries. Callers must not modify the slice.
func (m *Manager) Mappings(context.Context) ([]mapping.Entry, error) {
	s := m.active.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	return s.Entries, nil
}

// ContentVersion and ContentHash feed the response headers middleware.
func (m *Manager) ContentVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

func (m *Manager) ContentHash() string { return m.ContentVersion() }

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}
