package domain

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/appcontext"
)

type RestoreRepository interface {
	SaveActive(ctx context.Context, rc RestoreContext, startedAt time.Time) error
	FinishActive(ctx context.Context, name string, status Status, finishedAt time.Time) error
	FindActive(ctx context.Context) (RestoreContext, bool, error)
}

// Restore manager guards the cluster so that at most one restore runs at a
// time. Every restore is fanned out into one block per known node and handed
// to the plan executor; the manager is released once that plan is terminal.
type RestoreManager struct {
	logger logrus.FieldLogger

	store    TaskStore
	provider OfferRequirementProvider
	executor PlanExecutor
	repo     RestoreRepository

	mu     sync.Mutex
	active *RestoreContext
	plan   *Plan
}

func NewRestoreManager(
	logger logrus.FieldLogger,
	store TaskStore,
	provider OfferRequirementProvider,
	executor PlanExecutor,
	repo RestoreRepository,
) *RestoreManager {
	return &RestoreManager{
		logger:   logger,
		store:    store,
		provider: provider,
		executor: executor,
		repo:     repo,
	}
}

func RestorePlanName(rc RestoreContext) string {
	return restoreBlockPrefix + rc.Name
}

func (m *RestoreManager) CanStartRestore() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.active == nil
}

// StartRestore kicks off a cluster-wide restore and returns without waiting
// for it. ErrRestoreInProgress is returned while another restore is active.
// Records of earlier restores are dropped first, so a restore reusing a
// previous name restores every node again.
func (m *RestoreManager) StartRestore(ctx context.Context, rc RestoreContext) error {
	if err := m.acquire(rc); err != nil {
		return err
	}

	err := m.store.ClearRestoreSnapshots(ctx)
	if err != nil {
		m.release(rc)
		return errors.Wrap(err, "unable to clear previous restore tasks")
	}

	err = m.repo.SaveActive(ctx, rc, time.Now())
	if err != nil {
		m.release(rc)
		return errors.Wrap(err, "unable to persist active restore")
	}

	err = m.launch(ctx, rc)
	if err != nil {
		ferr := m.repo.FinishActive(ctx, rc.Name, StatusError, time.Now())
		if ferr != nil {
			appcontext.LoggerFromContext(m.logger, appcontext.WithRestoreName(ctx, rc.Name)).
				WithError(ferr).
				Error("Unable to mark failed restore finished")
		}
		return err
	}

	return nil
}

// TryStartRestore is StartRestore reporting a busy cluster as false instead
// of an error.
func (m *RestoreManager) TryStartRestore(ctx context.Context, rc RestoreContext) (bool, error) {
	err := m.StartRestore(ctx, rc)
	if errors.Cause(err) == ErrRestoreInProgress {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Resume picks up a restore persisted by a previous run of the process.
// Blocks resume from the task state they observe.
func (m *RestoreManager) Resume(ctx context.Context) error {
	rc, found, err := m.repo.FindActive(ctx)
	if err != nil {
		return errors.Wrap(err, "unable to find active restore")
	}

	if !found {
		return nil
	}

	ctx = appcontext.WithRestoreName(ctx, rc.Name)
	appcontext.LoggerFromContext(m.logger, ctx).Info("Resuming unfinished restore")

	if err := m.acquire(rc); err != nil {
		return err
	}

	return m.launch(ctx, rc)
}

func (m *RestoreManager) ActiveRestore() (RestoreContext, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return RestoreContext{}, false
	}

	return *m.active, true
}

func (m *RestoreManager) Plan() (Plan, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.plan == nil {
		return Plan{}, false
	}

	return *m.plan, true
}

func (m *RestoreManager) acquire(rc RestoreContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return ErrRestoreInProgress
	}

	m.active = &rc
	m.plan = nil

	return nil
}

func (m *RestoreManager) release(rc RestoreContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && *m.active == rc {
		m.active = nil
		m.plan = nil
	}
}

func (m *RestoreManager) launch(ctx context.Context, rc RestoreContext) error {
	ctx = appcontext.WithRestoreName(ctx, rc.Name)
	logger := appcontext.LoggerFromContext(m.logger, ctx)

	plan, err := m.buildPlan(ctx, rc)
	if err != nil {
		m.release(rc)
		return err
	}

	m.mu.Lock()
	m.plan = &plan
	m.mu.Unlock()

	err = m.executor.Execute(ctx, plan, m.onPlanTerminal(rc))
	if err != nil {
		m.release(rc)
		return errors.Wrap(err, "unable to execute restore plan")
	}

	logger.WithField("total_blocks", len(plan.Blocks)).Info("Started restore")

	return nil
}

func (m *RestoreManager) buildPlan(ctx context.Context, rc RestoreContext) (Plan, error) {
	daemons, err := m.store.Daemons(ctx)
	if err != nil {
		return Plan{}, errors.Wrap(err, "unable to list cluster nodes")
	}

	nodes := make([]string, 0, len(daemons))
	for node := range daemons {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	plan := Plan{Name: RestorePlanName(rc)}

	for _, node := range nodes {
		block, err := NewRestoreBlock(ctx, node, m.store, m.provider, rc)
		if err != nil {
			return Plan{}, err
		}

		plan.Blocks = append(plan.Blocks, block)
	}

	return plan, nil
}

func (m *RestoreManager) onPlanTerminal(rc RestoreContext) func(Plan, Status) {
	return func(plan Plan, status Status) {
		ctx := appcontext.WithRestoreName(context.Background(), rc.Name)
		logger := appcontext.LoggerFromContext(m.logger, ctx)

		m.release(rc)

		err := m.repo.FinishActive(ctx, rc.Name, status, time.Now())
		if err != nil {
			logger.WithError(err).Error("Unable to mark restore finished")
		}

		logger.WithField("status", status).Info("Restore finished")
	}
}
