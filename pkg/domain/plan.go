package domain

import (
	"context"
)

// Block is one unit of work inside a plan. The plan executor polls it on
// every tick until it reports a terminal status.
type Block interface {
	Name() string
	Status() Status
	Refresh(ctx context.Context) error
	Start(ctx context.Context) (*OfferRequirement, error)
}

type Plan struct {
	Name   string
	Blocks []Block
}

// Status aggregates block statuses: any block still running keeps the plan
// in progress, a finished plan with at least one failed block is an error.
func (p Plan) Status() Status {
	if len(p.Blocks) == 0 {
		return StatusComplete
	}

	pending, failed := 0, 0

	for _, b := range p.Blocks {
		switch b.Status() {
		case StatusPending:
			pending++
		case StatusInProgress:
			return StatusInProgress
		case StatusError:
			failed++
		}
	}

	switch {
	case pending == len(p.Blocks):
		return StatusPending
	case pending > 0:
		return StatusInProgress
	case failed > 0:
		return StatusError
	}

	return StatusComplete
}

type PlanExecutor interface {
	Execute(ctx context.Context, plan Plan, onTerminal func(Plan, Status)) error
}
