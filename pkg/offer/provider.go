package offer

import (
	"context"

	"github.com/pkg/errors"

	"github.com/yurykabanov/restorer/pkg/domain"
)

var (
	ErrNoSlave = errors.New("task isn't bound to any slave")
)

type Resources struct {
	Cpus   float64 `mapstructure:"cpus"`
	MemMb  float64 `mapstructure:"mem_mb"`
	DiskMb float64 `mapstructure:"disk_mb"`
}

// Provider builds resource claims for cluster tasks using one resource
// profile for every restore task.
type Provider struct {
	resources Resources
}

func NewProvider(resources Resources) *Provider {
	return &Provider{
		resources: resources,
	}
}

// UpdateOfferRequirement claims resources for re-running an existing task on
// the slave it is already bound to.
func (p *Provider) UpdateOfferRequirement(ctx context.Context, task domain.Task) (*domain.OfferRequirement, error) {
	if task.SlaveId == "" {
		return nil, errors.Wrapf(ErrNoSlave, "task %s", task.Name)
	}

	return &domain.OfferRequirement{
		TaskId:   task.Id,
		TaskName: task.Name,
		NodeName: task.NodeName,
		SlaveId:  task.SlaveId,
		Cpus:     p.resources.Cpus,
		MemMb:    p.resources.MemMb,
		DiskMb:   p.resources.DiskMb,
		Update:   true,
	}, nil
}
