package plan

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/appcontext"
	"github.com/yurykabanov/restorer/pkg/domain"
	"github.com/yurykabanov/restorer/pkg/metrics"
)

var (
	ErrPlanRunning = errors.New("another plan is already running")
)

type Allocator interface {
	Submit(ctx context.Context, requirement domain.OfferRequirement) error
}

type cron interface {
	AddFunc(spec string, cmd func()) error
	Start()
	Stop()
}

type execution struct {
	plan       domain.Plan
	onTerminal func(domain.Plan, domain.Status)
}

// Executor drives the blocks of a single plan on every cron tick until all
// of them are terminal. Ticks never overlap, so calls to one block are
// always serialized.
type Executor struct {
	logger logrus.FieldLogger

	allocator Allocator
	cron      cron
	spec      string

	mu      sync.Mutex
	running *execution
}

func NewExecutor(logger logrus.FieldLogger, allocator Allocator, cron cron, spec string) *Executor {
	return &Executor{
		logger:    logger,
		allocator: allocator,
		cron:      cron,
		spec:      spec,
	}
}

func (e *Executor) Execute(ctx context.Context, plan domain.Plan, onTerminal func(domain.Plan, domain.Status)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running != nil {
		return errors.Wrapf(ErrPlanRunning, "plan %s", e.running.plan.Name)
	}

	e.running = &execution{plan: plan, onTerminal: onTerminal}

	metrics.RestoreActive.Set(1)
	appcontext.LoggerFromContext(e.logger, ctx).
		WithField("plan", plan.Name).
		Info("Plan scheduled")

	return nil
}

func (e *Executor) Run() error {
	err := e.cron.AddFunc(e.spec, func() {
		e.Tick(context.Background())
	})
	if err != nil {
		return errors.Wrapf(err, "invalid plan schedule '%s'", e.spec)
	}

	e.logger.WithField("spec", e.spec).Debug("Starting plan executor")
	e.cron.Start()

	return nil
}

func (e *Executor) Stop() {
	e.cron.Stop()
}

// Tick performs one pass over the running plan.
func (e *Executor) Tick(ctx context.Context) {
	e.mu.Lock()

	if e.running == nil {
		e.mu.Unlock()
		return
	}

	current := e.running

	for _, block := range current.plan.Blocks {
		e.step(appcontext.WithBlockName(ctx, block.Name()), block)
	}

	counts := make(map[domain.Status]int)
	for _, block := range current.plan.Blocks {
		counts[block.Status()]++
	}
	for _, s := range []domain.Status{domain.StatusPending, domain.StatusInProgress, domain.StatusComplete, domain.StatusError} {
		metrics.BlocksTotal.WithLabelValues(s.String()).Set(float64(counts[s]))
	}

	status := current.plan.Status()
	if status.IsTerminal() {
		e.running = nil
	}

	e.mu.Unlock()

	if !status.IsTerminal() {
		return
	}

	metrics.RestoreActive.Set(0)
	metrics.RestoresTotal.WithLabelValues(status.String()).Inc()

	e.logger.WithFields(logrus.Fields{"plan": current.plan.Name, "status": status}).Info("Plan finished")

	if current.onTerminal != nil {
		current.onTerminal(current.plan, status)
	}
}

func (e *Executor) step(ctx context.Context, block domain.Block) {
	logger := appcontext.LoggerFromContext(e.logger, ctx)

	err := block.Refresh(ctx)
	if err != nil {
		metrics.TickErrors.Inc()
		logger.WithError(err).Error("Unable to refresh block")
		return
	}

	if block.Status().IsTerminal() {
		return
	}

	requirement, err := block.Start(ctx)
	if err != nil {
		metrics.TickErrors.Inc()
		logger.WithError(err).Error("Unable to start block")
		return
	}

	if requirement == nil {
		return
	}

	err = e.allocator.Submit(ctx, *requirement)
	if err != nil {
		metrics.TickErrors.Inc()
		logger.WithError(err).Error("Unable to submit offer requirement")
		return
	}

	metrics.OfferRequirementsTotal.Inc()
}
