// Package manifest persists which save files have been uploaded, per bucket
// namespace, so repeated runs only move what changed.
package manifest

import (
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DefaultFileName is the manifest file name under the save root.
const DefaultFileName = ".cloud_save_manifest.json"

// FileEntry is one tracked file. Size is nil for entries recorded before
// sizes were tracked; such entries are always re-uploaded.
type FileEntry struct {
	WorldName string `json:"world_name"`
	Playtime  uint64 `json:"playtime"`
	Size      *int64 `json:"file_size,omitempty"`
}

// SizeEquals reports whether the entry has a recorded size equal to size.
func (e FileEntry) SizeEquals(size int64) bool {
	return e.Size != nil && *e.Size == size
}

// BucketManifest maps canonical relative paths to tracked entries for one
// bucket namespace.
type BucketManifest struct {
	Files map[string]FileEntry `json:"files"`
}

// Lookup returns the entry recorded for path.
func (b *BucketManifest) Lookup(path string) (FileEntry, bool) {
	if b == nil || b.Files == nil {
		return FileEntry{}, false
	}
	e, ok := b.Files[CanonicalPath(path)]
	return e, ok
}

// Paths returns the tracked paths in sorted order.
func (b *BucketManifest) Paths() []string {
	if b == nil {
		return nil
	}
	out := make([]string, 0, len(b.Files))
	for p := range b.Files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TotalSize sums the recorded sizes.
func (b *BucketManifest) TotalSize() int64 {
	if b == nil {
		return 0
	}
	var total int64
	for _, e := range b.Files {
		if e.Size != nil {
			total += *e.Size
		}
	}
	return total
}

// ProgramManifest is the unit of persistence: every namespace tracked from
// one save root plus the last one used.
type ProgramManifest struct {
	LastOpened    uint64                     `json:"last_opened"`
	CurrentBucket string                     `json:"current_used_bucket"`
	Namespaces    map[string]*BucketManifest `json:"all_file_info"`
}

// New returns an empty manifest.
func New() *ProgramManifest {
	return &ProgramManifest{Namespaces: make(map[string]*BucketManifest)}
}

// Bucket returns the manifest for ns without creating it. The result may be
// nil; BucketManifest methods accept a nil receiver.
func (m *ProgramManifest) Bucket(ns string) *BucketManifest {
	if m == nil || m.Namespaces == nil {
		return nil
	}
	return m.Namespaces[ns]
}

// Namespace returns the manifest for ns, creating an empty one if needed.
func (m *ProgramManifest) Namespace(ns string) *BucketManifest {
	if m.Namespaces == nil {
		m.Namespaces = make(map[string]*BucketManifest)
	}
	b, ok := m.Namespaces[ns]
	if !ok || b == nil {
		b = &BucketManifest{}
		m.Namespaces[ns] = b
	}
	if b.Files == nil {
		b.Files = make(map[string]FileEntry)
	}
	return b
}

// Record stores entry for path under ns and marks ns as the current bucket.
func (m *ProgramManifest) Record(ns, path string, entry FileEntry, openedAt uint64) {
	m.Namespace(ns).Files[CanonicalPath(path)] = entry
	m.CurrentBucket = ns
	if openedAt > m.LastOpened {
		m.LastOpened = openedAt
	}
}

// Forget removes paths from ns and returns how many entries were dropped.
// Removing the last entry keeps the namespace so it still shows in status.
func (m *ProgramManifest) Forget(ns string, paths ...string) int {
	b := m.Bucket(ns)
	if b == nil {
		return 0
	}
	n := 0
	for _, p := range paths {
		key := CanonicalPath(p)
		if _, ok := b.Files[key]; ok {
			delete(b.Files, key)
			n++
		}
	}
	return n
}

// DropNamespace removes ns entirely and returns how many entries it held.
func (m *ProgramManifest) DropNamespace(ns string) int {
	b := m.Bucket(ns)
	if b == nil {
		return 0
	}
	n := len(b.Files)
	delete(m.Namespaces, ns)
	if m.CurrentBucket == ns {
		m.CurrentBucket = ""
	}
	return n
}

// NamespaceNames returns the tracked namespace names in sorted order.
func (m *ProgramManifest) NamespaceNames() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.Namespaces))
	for ns := range m.Namespaces {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

// FileCount returns the number of tracked files across all namespaces.
func (m *ProgramManifest) FileCount() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, b := range m.Namespaces {
		if b != nil {
			n += len(b.Files)
		}
	}
	return n
}

// CanonicalPath converts a relative path to the form used as a manifest key:
// forward slashes, no leading or duplicate separators, NFC normalized.
func CanonicalPath(p string) string {
	p = filepath.ToSlash(p)

	var b strings.Builder
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}

	return norm.NFC.String(strings.Trim(b.String(), "/"))
}
