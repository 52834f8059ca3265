package engine

import (
	"time"

	cserrors "github.com/BadgerOps/cloudsave/internal/errors"
	"github.com/BadgerOps/cloudsave/internal/inventory"
	"github.com/BadgerOps/cloudsave/internal/manifest"
	"github.com/BadgerOps/cloudsave/internal/storage"
)

// Direction is which way a run moves files.
type Direction string

const (
	DirectionUpload   Direction = "upload"
	DirectionDownload Direction = "download"
)

// ActionState tracks one planned transfer through a run.
type ActionState string

const (
	StatePending      ActionState = "pending"
	StateTransferring ActionState = "transferring"
	StateCompleted    ActionState = "completed"
	StateFailed       ActionState = "failed"
)

// Reasons recorded on planned actions.
const (
	ReasonNew           = "not tracked"
	ReasonSizeChanged   = "size changed"
	ReasonSizeUnknown   = "no recorded size"
	ReasonForced        = "forced"
	ReasonMissingLocal  = "missing locally"
	ReasonLocalMismatch = "local size differs"
)

// Action is one file transfer in a plan.
type Action struct {
	Path      string // canonical path relative to the save root
	Key       string // object key in the bucket
	Direction Direction
	Size      int64
	Reason    string
	State     ActionState
	Error     string
}

// Plan is the ordered set of transfers for one run.
type Plan struct {
	Namespace string
	Prefix    string
	Direction Direction
	Actions   []Action
	TotalSize int64
	// Considered is how many inventory entries were compared.
	Considered int
	Timestamp  time.Time
}

// Empty reports whether the plan has nothing to transfer.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Actions) == 0
}

// Skipped is the number of considered files already in sync.
func (p *Plan) Skipped() int {
	if p == nil {
		return 0
	}
	return p.Considered - len(p.Actions)
}

// Count returns how many actions are in state s.
func (p *Plan) Count(s ActionState) int {
	n := 0
	for _, a := range p.Actions {
		if a.State == s {
			n++
		}
	}
	return n
}

// PlanUpload compares the local inventory against what the manifest says
// was already uploaded for ns. A file is planned when it is not recorded,
// has no recorded size, or its size differs; force plans every file.
// Recorded files missing locally are left alone.
func PlanUpload(ns, prefix string, local inventory.Snapshot, recorded *manifest.BucketManifest, force bool) (*Plan, error) {
	if len(local) == 0 {
		return nil, cserrors.ErrNoFilesFound
	}

	plan := newPlan(ns, prefix, DirectionUpload, len(local))
	for _, p := range local.Paths() {
		size := local[p]

		reason := ""
		entry, ok := recorded.Lookup(p)
		switch {
		case force:
			reason = ReasonForced
		case !ok:
			reason = ReasonNew
		case entry.Size == nil:
			reason = ReasonSizeUnknown
		case *entry.Size != size:
			reason = ReasonSizeChanged
		}
		if reason != "" {
			plan.add(p, storage.Key(prefix, p), size, reason)
		}
	}
	return plan, nil
}

// PlanDownload compares the remote listing against files currently on
// disk. A file is planned when nothing exists locally or the local size
// differs; equal sizes count as in sync. Actions fetch the key the object
// was listed under, which may not be the canonical form of its path.
func PlanDownload(ns, prefix string, remote *inventory.Listing, local inventory.Snapshot) *Plan {
	if remote == nil {
		return newPlan(ns, prefix, DirectionDownload, 0)
	}
	plan := newPlan(ns, prefix, DirectionDownload, len(remote.Files))
	for _, p := range remote.Files.Paths() {
		size := remote.Files[p]
		key, ok := remote.Key(p)
		if !ok {
			key = storage.Key(prefix, p)
		}
		localSize, ok := local[p]
		switch {
		case !ok:
			plan.add(p, key, size, ReasonMissingLocal)
		case localSize != size:
			plan.add(p, key, size, ReasonLocalMismatch)
		}
	}
	return plan
}

func newPlan(ns, prefix string, dir Direction, considered int) *Plan {
	return &Plan{
		Namespace:  ns,
		Prefix:     prefix,
		Direction:  dir,
		Considered: considered,
		Timestamp:  time.Now(),
	}
}

func (p *Plan) add(path, key string, size int64, reason string) {
	p.Actions = append(p.Actions, Action{
		Path:      path,
		Key:       key,
		Direction: p.Direction,
		Size:      size,
		Reason:    reason,
		State:     StatePending,
	})
	p.TotalSize += size
}
