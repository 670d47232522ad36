package installer

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/jingkaihe/skillet/pkg/targets"
)

// Outcome is the result of one (skill, target) pair in a batch
type Outcome string

// Batch outcomes. Skipped is the idempotent default when a skill is already
// installed, not a failure.
const (
	OutcomeAdded    Outcome = "added"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeNotFound Outcome = "not_found"
	OutcomeRemoved  Outcome = "removed"
	OutcomeFailed   Outcome = "failed"
)

// SyncItem is the outcome of copying one skill into one target
type SyncItem struct {
	Name    string
	Target  targets.Target
	Path    string
	Outcome Outcome
	Err     error
}

// SyncReport aggregates an Add batch
type SyncReport struct {
	Items    []SyncItem
	Added    int
	Skipped  int
	NotFound int
	Failed   int
	// DryRun is set when nothing was written
	DryRun bool
	// Interrupted is set when the context was cancelled before every pair ran
	Interrupted bool
}

func (r *SyncReport) record(item SyncItem) {
	switch item.Outcome {
	case OutcomeAdded:
		r.Added++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeFailed:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

// Err returns every failed pair as one error, or nil
func (r *SyncReport) Err() error {
	var result *multierror.Error
	for _, item := range r.Items {
		if item.Err != nil {
			result = multierror.Append(result, errors.Wrapf(item.Err, "%s -> %s", item.Name, item.Target))
		}
	}
	return result.ErrorOrNil()
}

// RemovalItem is the outcome of removing one skill from one target
type RemovalItem struct {
	Name    string
	Target  targets.Target
	Path    string
	Outcome Outcome
	Err     error
}

// RemovalReport aggregates a Remove batch
type RemovalReport struct {
	Items    []RemovalItem
	Removed  int
	NotFound int
	Failed   int
	// Pruned lists empty directories cleaned up after removal
	Pruned      []string
	DryRun      bool
	Interrupted bool
}

func (r *RemovalReport) record(item RemovalItem) {
	switch item.Outcome {
	case OutcomeRemoved:
		r.Removed++
	case OutcomeNotFound:
		r.NotFound++
	case OutcomeFailed:
		r.Failed++
	}
	r.Items = append(r.Items, item)
}

// Err returns every failed pair as one error, or nil
func (r *RemovalReport) Err() error {
	var result *multierror.Error
	for _, item := range r.Items {
		if item.Err != nil {
			result = multierror.Append(result, errors.Wrapf(item.Err, "%s -> %s", item.Name, item.Target))
		}
	}
	return result.ErrorOrNil()
}
