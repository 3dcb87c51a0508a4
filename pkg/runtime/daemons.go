package runtime

import (
	"context"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/domain"
)

type DaemonRepository interface {
	RegisterNode(ctx context.Context, name string) error
	UpsertDaemon(ctx context.Context, daemon domain.Task) error
	Daemons(ctx context.Context) (map[string]*domain.Task, error)
}

type containerLister interface {
	ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error)
}

type DaemonSyncConfig struct {
	// Label whose value names the cluster node a container serves
	NodeLabel string

	// Nodes known to the cluster even before anything runs on them
	Nodes []string
}

// DaemonSync mirrors the node daemons running in docker into the task
// store. A daemon is a container carrying the node label; its container id
// is the slave id restore tasks are bound to.
type DaemonSync struct {
	logger logrus.FieldLogger
	config DaemonSyncConfig

	repo   DaemonRepository
	docker containerLister
}

func NewDaemonSync(logger logrus.FieldLogger, config DaemonSyncConfig, repo DaemonRepository, docker containerLister) *DaemonSync {
	return &DaemonSync{
		logger: logger,
		config: config,
		repo:   repo,
		docker: docker,
	}
}

func (s *DaemonSync) Sync(ctx context.Context) error {
	for _, node := range s.config.Nodes {
		if err := s.repo.RegisterNode(ctx, node); err != nil {
			return errors.Wrapf(err, "Unable to register node %s", node)
		}
	}

	args := filters.NewArgs()
	args.Add("label", s.config.NodeLabel)

	containers, err := s.docker.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return errors.Wrap(err, "Unable to list daemon containers")
	}

	seen := make(map[string]bool, len(containers))

	for _, c := range containers {
		node := c.Labels[s.config.NodeLabel]
		if node == "" || seen[node] {
			continue
		}
		seen[node] = true

		err = s.repo.UpsertDaemon(ctx, domain.Task{
			Name:     node,
			NodeName: node,
			SlaveId:  c.ID,
			State:    daemonState(c.State),
		})
		if err != nil {
			return errors.Wrapf(err, "Unable to store daemon of node %s", node)
		}
	}

	known, err := s.repo.Daemons(ctx)
	if err != nil {
		return errors.Wrap(err, "Unable to list known daemons")
	}

	for node, daemon := range known {
		if daemon == nil || seen[node] || daemon.State == domain.TaskStateLost {
			continue
		}

		s.logger.WithField("node", node).Warn("Daemon container disappeared")

		lost := *daemon
		lost.State = domain.TaskStateLost

		if err := s.repo.UpsertDaemon(ctx, lost); err != nil {
			return errors.Wrapf(err, "Unable to mark daemon of node %s lost", node)
		}
	}

	s.logger.WithField("total_daemons", len(seen)).Debug("Daemons synchronized")

	return nil
}

func daemonState(containerState string) domain.TaskState {
	switch containerState {
	case "created":
		return domain.TaskStateStaging
	case "restarting":
		return domain.TaskStateStarting
	case "running", "paused":
		return domain.TaskStateRunning
	case "exited":
		return domain.TaskStateFinished
	}

	return domain.TaskStateLost
}
