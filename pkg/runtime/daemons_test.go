package runtime

import (
	"context"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/yurykabanov/restorer/pkg/domain"
)

// region daemonRepositoryMock
type daemonRepositoryMock struct {
	mock.Mock
}

func (m *daemonRepositoryMock) RegisterNode(ctx context.Context, name string) error {
	args := m.Called(ctx, name)
	return args.Error(0)
}

func (m *daemonRepositoryMock) UpsertDaemon(ctx context.Context, daemon domain.Task) error {
	args := m.Called(ctx, daemon)
	return args.Error(0)
}

func (m *daemonRepositoryMock) Daemons(ctx context.Context) (map[string]*domain.Task, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string]*domain.Task), args.Error(1)
}

// endregion

// region containerListerMock
type containerListerMock struct {
	mock.Mock
}

func (m *containerListerMock) ContainerList(ctx context.Context, options types.ContainerListOptions) ([]types.Container, error) {
	args := m.Called(ctx, options)
	return args.Get(0).([]types.Container), args.Error(1)
}

// endregion

func TestDaemonSync_Sync(t *testing.T) {
	repo := &daemonRepositoryMock{}
	lister := &containerListerMock{}

	config := DaemonSyncConfig{NodeLabel: "restorer.node", Nodes: []string{"node-0", "node-1", "node-2"}}

	for _, node := range config.Nodes {
		repo.On("RegisterNode", mock.Anything, node).Return(nil)
	}

	lister.On("ContainerList", mock.Anything, mock.MatchedBy(func(o types.ContainerListOptions) bool {
		return o.All && o.Filters.Get("label")[0] == "restorer.node"
	})).Return([]types.Container{
		{ID: "c0", State: "running", Labels: map[string]string{"restorer.node": "node-0"}},
		{ID: "c1", State: "exited", Labels: map[string]string{"restorer.node": "node-1"}},
		{ID: "c-dup", State: "running", Labels: map[string]string{"restorer.node": "node-1"}},
		{ID: "unlabelled", State: "running", Labels: map[string]string{"restorer.node": ""}},
	}, nil)

	repo.On("UpsertDaemon", mock.Anything, domain.Task{Name: "node-0", NodeName: "node-0", SlaveId: "c0", State: domain.TaskStateRunning}).Return(nil)
	repo.On("UpsertDaemon", mock.Anything, domain.Task{Name: "node-1", NodeName: "node-1", SlaveId: "c1", State: domain.TaskStateFinished}).Return(nil)

	gone := &domain.Task{Name: "node-3", NodeName: "node-3", SlaveId: "c3", State: domain.TaskStateRunning}
	repo.On("Daemons", mock.Anything).Return(map[string]*domain.Task{
		"node-0": {Name: "node-0", NodeName: "node-0", SlaveId: "c0", State: domain.TaskStateRunning},
		"node-1": {Name: "node-1", NodeName: "node-1", SlaveId: "c1", State: domain.TaskStateFinished},
		"node-2": nil,
		"node-3": gone,
	}, nil)
	repo.On("UpsertDaemon", mock.Anything, domain.Task{Name: "node-3", NodeName: "node-3", SlaveId: "c3", State: domain.TaskStateLost}).Return(nil)

	s := NewDaemonSync(discardLogger(), config, repo, lister)

	assert.NoError(t, s.Sync(context.Background()))

	repo.AssertExpectations(t)
	repo.AssertNumberOfCalls(t, "UpsertDaemon", 3)
}

func TestDaemonState(t *testing.T) {
	assert.Equal(t, domain.TaskStateRunning, daemonState("running"))
	assert.Equal(t, domain.TaskStateStaging, daemonState("created"))
	assert.Equal(t, domain.TaskStateFinished, daemonState("exited"))
	assert.Equal(t, domain.TaskStateLost, daemonState("dead"))
}
