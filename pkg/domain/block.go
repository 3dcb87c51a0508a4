package domain

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

const restoreBlockPrefix = "restore-"

type TaskStore interface {
	Lookup(ctx context.Context, name string) (Task, bool, error)
	Daemons(ctx context.Context) (map[string]*Task, error)
	GetOrCreateRestoreSnapshot(ctx context.Context, daemon Task, rc RestoreContext) (Task, error)

	// ClearRestoreSnapshots drops restore-snapshot records of earlier
	// restores that are not running anymore.
	ClearRestoreSnapshots(ctx context.Context) error
}

type OfferRequirementProvider interface {
	UpdateOfferRequirement(ctx context.Context, task Task) (*OfferRequirement, error)
}

// RestoreBlockName is the name of both the block and the restore-snapshot
// task of the given node.
func RestoreBlockName(nodeName string) string {
	return restoreBlockPrefix + nodeName
}

// DeriveStatus maps the observed restore-snapshot task of a node onto block
// status. Records left over from another restore are treated as absent.
func DeriveStatus(task Task, found bool, rc RestoreContext) Status {
	if !found || task.RestoreName != rc.Name {
		return StatusPending
	}

	switch task.State {
	case TaskStateFinished:
		return StatusComplete
	case TaskStateFailed, TaskStateKilled, TaskStateLost, TaskStateError:
		return StatusError
	}

	return StatusInProgress
}

// RestoreBlock restores a single node. It keeps no state of its own beyond
// what it last observed in the task store.
type RestoreBlock struct {
	name   string
	daemon string
	rc     RestoreContext

	store    TaskStore
	provider OfferRequirementProvider

	mu     sync.RWMutex
	status Status
}

func NewRestoreBlock(
	ctx context.Context,
	nodeName string,
	store TaskStore,
	provider OfferRequirementProvider,
	rc RestoreContext,
) (*RestoreBlock, error) {
	b := &RestoreBlock{
		name:     RestoreBlockName(nodeName),
		daemon:   nodeName,
		rc:       rc,
		store:    store,
		provider: provider,
		status:   StatusPending,
	}

	if err := b.Refresh(ctx); err != nil {
		return nil, err
	}

	return b, nil
}

func (b *RestoreBlock) Name() string {
	return b.name
}

// Daemon returns the name of the node this block restores.
func (b *RestoreBlock) Daemon() string {
	return b.daemon
}

func (b *RestoreBlock) Context() RestoreContext {
	return b.rc
}

func (b *RestoreBlock) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.status
}

func (b *RestoreBlock) setStatus(status Status) {
	b.mu.Lock()
	b.status = status
	b.mu.Unlock()
}

// Refresh re-derives block status from the task store. A node completed
// without a task (no daemon to restore onto) stays complete.
func (b *RestoreBlock) Refresh(ctx context.Context) error {
	task, found, err := b.store.Lookup(ctx, b.name)
	if err != nil {
		return errors.Wrapf(err, "unable to lookup task %s", b.name)
	}

	status := DeriveStatus(task, found, b.rc)

	b.mu.Lock()
	defer b.mu.Unlock()

	if status == StatusPending && b.status == StatusComplete {
		return nil
	}
	b.status = status

	return nil
}

// Start returns the resource claim the node needs for its restore task, or
// nil when the node requires nothing further.
func (b *RestoreBlock) Start(ctx context.Context) (*OfferRequirement, error) {
	if b.Status().IsTerminal() {
		return nil, nil
	}

	daemons, err := b.store.Daemons(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to list daemons")
	}

	daemon := daemons[b.daemon]
	if daemon == nil {
		// Nothing was provisioned on this node, so there is nothing to restore onto
		b.setStatus(StatusComplete)
		return nil, nil
	}

	task, err := b.store.GetOrCreateRestoreSnapshot(ctx, *daemon, b.rc)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to get or create restore task %s", b.name)
	}

	status := DeriveStatus(task, true, b.rc)
	b.setStatus(status)

	if status.IsTerminal() {
		return nil, nil
	}

	requirement, err := b.provider.UpdateOfferRequirement(ctx, task)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to build offer requirement for %s", task.Name)
	}

	return requirement, nil
}
