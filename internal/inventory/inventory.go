// Package inventory builds point-in-time snapshots of save files, either
// from the local save tree or from a remote bucket prefix.
package inventory

import "sort"

// Snapshot maps canonical relative paths to sizes in bytes.
type Snapshot map[string]int64

// Paths returns the snapshot's paths in sorted order.
func (s Snapshot) Paths() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// TotalSize sums all sizes in the snapshot.
func (s Snapshot) TotalSize() int64 {
	var total int64
	for _, size := range s {
		total += size
	}
	return total
}
