package engine

import (
	"context"
	"fmt"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/storage"
	"github.com/BadgerOps/cloudsave/internal/store"
)

// NamespaceStatus summarizes a namespace's manifest state and last sync.
type NamespaceStatus struct {
	manifest.NamespaceStats
	LastRun *store.SyncRun
}

// StatusReport describes what the manifest currently tracks.
type StatusReport struct {
	Root         string
	ManifestPath string
	Message      string
	// LoadErr is set when the manifest exists but could not be read.
	LoadErr    error
	Stats      manifest.Stats
	Namespaces []NamespaceStatus
}

// Status reads the manifest and history without touching storage.
func (m *SyncManager) Status() *StatusReport {
	pm, err := m.manifests.Load()
	report := &StatusReport{
		Root:         m.root,
		ManifestPath: m.manifests.Path(),
		Message:      manifest.StatusMessage(pm, err),
		LoadErr:      err,
	}
	if err != nil {
		return report
	}

	report.Stats = manifest.Summarize(pm)
	for _, ns := range report.Stats.Namespaces {
		st := NamespaceStatus{NamespaceStats: ns}
		if m.history != nil {
			run, err := m.history.LastCompletedRun(ns.Name)
			if err != nil {
				m.logger.Warn("failed to read last sync", "namespace", ns.Name, "error", err)
			}
			st.LastRun = run
		}
		report.Namespaces = append(report.Namespaces, st)
	}
	return report
}

// ForgetOptions select what Forget removes.
type ForgetOptions struct {
	// All drops every entry of the namespace; Paths is ignored.
	All   bool
	Paths []string
	// Remote also deletes the matching objects from storage.
	Remote bool
}

// ForgetReport lists what Forget removed.
type ForgetReport struct {
	Namespace        string
	Forgotten        []string
	RemoteDeleted    []string
	NotTracked       []string
	NamespaceDropped bool
}

// Forget removes entries from the manifest so the next upload sends those
// files again. It is the only operation that shrinks the manifest. With
// Remote set, objects are deleted first and only deleted paths are forgotten.
func (m *SyncManager) Forget(ctx context.Context, ns string, opts ForgetOptions) (*ForgetReport, error) {
	if ns == "" {
		return nil, fmt.Errorf("%w: namespace", cserrors.ErrConfigMissing)
	}
	if !opts.All && len(opts.Paths) == 0 {
		return nil, fmt.Errorf("nothing to forget in %q: pass paths or --all", ns)
	}

	pm, err := m.manifests.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest: %w", err)
	}
	bucket := pm.Bucket(ns)
	if bucket == nil {
		return nil, fmt.Errorf("namespace %q is not tracked", ns)
	}

	report := &ForgetReport{Namespace: ns}
	var targets []string
	if opts.All {
		targets = bucket.Paths()
	} else {
		for _, p := range opts.Paths {
			cp := manifest.CanonicalPath(p)
			if _, ok := bucket.Lookup(cp); !ok {
				report.NotTracked = append(report.NotTracked, cp)
				continue
			}
			targets = append(targets, cp)
		}
	}

	var deleteErr error
	if opts.Remote && len(targets) > 0 {
		st, err := m.storage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to storage: %w", err)
		}
		prefix := m.prefix(ns)
		deleted := make([]string, 0, len(targets))
		for _, p := range targets {
			key := storage.Key(prefix, p)
			if err := st.Delete(ctx, key); err != nil {
				deleteErr = fmt.Errorf("failed to delete %s: %w", key, err)
				break
			}
			m.logger.Info("deleted remote object", "namespace", ns, "key", key)
			deleted = append(deleted, p)
		}
		report.RemoteDeleted = deleted
		targets = deleted
	}

	if opts.All && deleteErr == nil {
		pm.DropNamespace(ns)
		report.NamespaceDropped = true
	} else {
		pm.Forget(ns, targets...)
	}
	report.Forgotten = targets

	if len(targets) > 0 || report.NamespaceDropped {
		if err := m.manifests.Save(pm); err != nil {
			return report, err
		}
	}
	m.logger.Info("forgot manifest entries", "namespace", ns, "count", len(targets), "remote", opts.Remote)
	return report, deleteErr
}
