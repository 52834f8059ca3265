package manifest

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
)

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"World.vcdbs", "World.vcdbs"},
		{"/Backups//World.vcdbs", "Backups/World.vcdbs"},
		{"Backups/World.vcdbs/", "Backups/World.vcdbs"},
		{"dir/", "dir"},
		{"Cafe\u0301.vcdbs", "Caf\u00e9.vcdbs"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CanonicalPath(tt.in); got != tt.want {
				t.Errorf("CanonicalPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRecordAndLookup(t *testing.T) {
	m := New()
	m.Record("ns", "Cafe\u0301.vcdbs", FileEntry{WorldName: "Caf\u00e9", Size: int64p(5)}, 10)

	e, ok := m.Bucket("ns").Lookup("Caf\u00e9.vcdbs")
	if !ok {
		t.Fatal("expected lookup by NFC form to find NFD-recorded path")
	}
	if !e.SizeEquals(5) {
		t.Fatalf("unexpected entry %+v", e)
	}
	if m.CurrentBucket != "ns" {
		t.Errorf("CurrentBucket = %q, want ns", m.CurrentBucket)
	}

	m.Record("ns", "other.vcdbs", FileEntry{}, 5)
	if m.LastOpened != 10 {
		t.Errorf("LastOpened moved backwards to %d", m.LastOpened)
	}
}

func TestLookup_NilBucket(t *testing.T) {
	m := New()
	if _, ok := m.Bucket("missing").Lookup("a"); ok {
		t.Fatal("expected no entry in missing namespace")
	}
	if got := m.Bucket("missing").Paths(); len(got) != 0 {
		t.Fatalf("expected no paths, got %v", got)
	}
}

func TestForgetAndDropNamespace(t *testing.T) {
	m := New()
	m.Record("ns", "a.vcdbs", FileEntry{Size: int64p(1)}, 1)
	m.Record("ns", "b.vcdbs", FileEntry{Size: int64p(2)}, 1)
	m.Record("other", "c.vcdbs", FileEntry{Size: int64p(3)}, 1)

	if n := m.Forget("ns", "a.vcdbs", "missing.vcdbs"); n != 1 {
		t.Fatalf("Forget removed %d entries, want 1", n)
	}
	if got := m.Bucket("ns").Paths(); len(got) != 1 || got[0] != "b.vcdbs" {
		t.Fatalf("unexpected remaining paths %v", got)
	}

	if n := m.DropNamespace("other"); n != 1 {
		t.Fatalf("DropNamespace removed %d entries, want 1", n)
	}
	if m.CurrentBucket != "" {
		t.Errorf("CurrentBucket should be cleared when its namespace is dropped, got %q", m.CurrentBucket)
	}
	if names := m.NamespaceNames(); len(names) != 1 || names[0] != "ns" {
		t.Fatalf("unexpected namespaces %v", names)
	}
}

func TestSummarize(t *testing.T) {
	m := New()
	m.Record("b", "x.vcdbs", FileEntry{Playtime: 60, Size: int64p(100)}, 1700000000)
	m.Record("a", "y.vcdbs", FileEntry{Size: int64p(50)}, 1)
	m.Record("a", "z.vcdbs", FileEntry{Playtime: 30}, 1)

	st := Summarize(m)
	if st.Files != 3 || st.TotalBytes != 150 {
		t.Fatalf("unexpected totals: %+v", st)
	}
	if len(st.Namespaces) != 2 || st.Namespaces[0].Name != "a" {
		t.Fatalf("namespaces not sorted: %+v", st.Namespaces)
	}
	if st.Namespaces[0].Unsized != 1 || st.Namespaces[0].Playtime != 30 {
		t.Fatalf("unexpected stats for a: %+v", st.Namespaces[0])
	}
	if st.LastOpened.Unix() != 1700000000 {
		t.Errorf("LastOpened = %v", st.LastOpened)
	}
}

func TestStatusMessage(t *testing.T) {
	tracked := New()
	tracked.Record("ns", "a.vcdbs", FileEntry{}, 1)
	tracked.Record("ns", "b.vcdbs", FileEntry{}, 1)

	corrupt := fmt.Errorf("%w: parsing: unexpected EOF", cserrors.ErrManifestCorrupt)

	tests := []struct {
		name string
		m    *ProgramManifest
		err  error
		want string
	}{
		{"tracking", tracked, nil, "Existing manifest found. Tracking 2 files."},
		{"empty", New(), nil, "No manifest found. Start an upload to create tracking data."},
		{"corrupt", nil, corrupt, "Manifest found but unreadable: "},
		{"io", nil, errors.New("permission denied"), "Manifest could not be read: permission denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StatusMessage(tt.m, tt.err)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("StatusMessage() = %q, want prefix %q", got, tt.want)
			}
		})
	}
}
