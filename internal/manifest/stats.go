package manifest

import (
	"errors"
	"fmt"
	"time"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

// NamespaceStats summarizes one bucket namespace.
type NamespaceStats struct {
	Name       string
	Files      int
	TotalBytes int64
	Playtime   uint64
	Unsized    int
}

// Stats summarizes a whole manifest.
type Stats struct {
	Namespaces    []NamespaceStats
	CurrentBucket string
	Files         int
	TotalBytes    int64
	LastOpened    time.Time
}

// Summarize computes Stats for m. Namespaces are sorted by name.
func Summarize(m *ProgramManifest) Stats {
	st := Stats{}
	if m == nil {
		return st
	}
	st.CurrentBucket = m.CurrentBucket
	if m.LastOpened > 0 {
		st.LastOpened = time.Unix(int64(m.LastOpened), 0)
	}
	for _, name := range m.NamespaceNames() {
		b := m.Namespaces[name]
		ns := NamespaceStats{Name: name}
		if b != nil {
			ns.Files = len(b.Files)
			for _, e := range b.Files {
				if e.Size == nil {
					ns.Unsized++
				} else {
					ns.TotalBytes += *e.Size
				}
				ns.Playtime += e.Playtime
			}
		}
		st.Files += ns.Files
		st.TotalBytes += ns.TotalBytes
		st.Namespaces = append(st.Namespaces, ns)
	}
	return st
}

// StatusMessage renders the one-line manifest status shown to users, given
// the result of Store.Load.
func StatusMessage(m *ProgramManifest, loadErr error) string {
	switch {
	case loadErr != nil && errors.Is(loadErr, cserrors.ErrManifestCorrupt):
		return fmt.Sprintf("Manifest found but unreadable: %v", loadErr)
	case loadErr != nil:
		return fmt.Sprintf("Manifest could not be read: %v", loadErr)
	case m == nil || len(m.Namespaces) == 0:
		return "No manifest found. Start an upload to create tracking data."
	default:
		return fmt.Sprintf("Existing manifest found. Tracking %d files.", m.FileCount())
	}
}
