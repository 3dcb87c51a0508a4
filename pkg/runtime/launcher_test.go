package runtime

import (
	"context"
	"io"
	"io/ioutil"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/yurykabanov/restorer/pkg/domain"
)

// region taskRepositoryMock
type taskRepositoryMock struct {
	mock.Mock
}

func (m *taskRepositoryMock) Lookup(ctx context.Context, name string) (domain.Task, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(domain.Task), args.Bool(1), args.Error(2)
}

func (m *taskRepositoryMock) Update(ctx context.Context, task domain.Task) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *taskRepositoryMock) CompareAndSwapState(ctx context.Context, name string, from, to domain.TaskState) (bool, error) {
	args := m.Called(ctx, name, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *taskRepositoryMock) FindByKind(ctx context.Context, kind domain.TaskKind) ([]domain.Task, error) {
	args := m.Called(ctx, kind)
	return args.Get(0).([]domain.Task), args.Error(1)
}

// endregion

// region dockerClientMock
type dockerClientMock struct {
	mock.Mock
}

func (m *dockerClientMock) ContainerCreate(
	ctx context.Context,
	config *container.Config,
	hostConfig *container.HostConfig,
	networkingConfig *network.NetworkingConfig,
	containerName string,
) (container.ContainerCreateCreatedBody, error) {
	args := m.Called(ctx, config, hostConfig, networkingConfig, containerName)
	return args.Get(0).(container.ContainerCreateCreatedBody), args.Error(1)
}

func (m *dockerClientMock) ContainerStart(
	ctx context.Context,
	containerID string,
	options types.ContainerStartOptions,
) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *dockerClientMock) ContainerWait(
	ctx context.Context,
	containerID string,
) (int64, error) {
	args := m.Called(ctx, containerID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *dockerClientMock) ContainerRemove(
	ctx context.Context,
	containerID string,
	options types.ContainerRemoveOptions,
) error {
	args := m.Called(ctx, containerID, options)
	return args.Error(0)
}

func (m *dockerClientMock) ImagePull(
	ctx context.Context,
	ref string,
	options types.ImagePullOptions,
) (io.ReadCloser, error) {
	args := m.Called(ctx, ref, options)

	if r := args.Get(0); r != nil {
		return r.(io.ReadCloser), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *dockerClientMock) ContainerList(
	ctx context.Context,
	options types.ContainerListOptions,
) ([]types.Container, error) {
	args := m.Called(ctx, options)
	return args.Get(0).([]types.Container), args.Error(1)
}

// endregion

// region mountManagerMock
type mountManagerMock struct {
	mock.Mock
}

func (m *mountManagerMock) Allocate(name string) (string, error) {
	args := m.Called(name)
	return args.String(0), args.Error(1)
}

func (m *mountManagerMock) Deallocate(name string) error {
	args := m.Called(name)
	return args.Error(0)
}

// endregion

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}

func testLauncherConfig() LauncherConfig {
	return LauncherConfig{
		Image:         "restorer/cassandra-restore:1.0",
		Command:       []string{"/restore.sh"},
		LaunchTimeout: time.Minute,
		Timeout:       time.Hour,
	}
}

func stagedTask() domain.Task {
	return domain.Task{
		Id:               "1111",
		Name:             "restore-node-0",
		Kind:             domain.KindRestoreSnapshot,
		NodeName:         "node-0",
		SlaveId:          "daemon-container",
		State:            domain.TaskStateStaging,
		RestoreName:      "nightly",
		ExternalLocation: "s3://bucket/nightly",
		AccessKey:        "key",
		SecretKey:        "secret",
		CreatedAt:        time.Now(),
	}
}

func withState(state domain.TaskState) interface{} {
	return mock.MatchedBy(func(task domain.Task) bool { return task.State == state })
}

// region Test: Submit
func TestLauncher_Submit_IgnoresLaunchedTask(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}

	repo.On("CompareAndSwapState", mock.Anything, "restore-node-0", domain.TaskStateNew, domain.TaskStateStaging).
		Return(false, nil)

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, &mountManagerMock{})

	err := l.Submit(context.Background(), domain.OfferRequirement{TaskName: "restore-node-0"})

	assert.NoError(t, err)
	repo.AssertNotCalled(t, "Lookup", mock.Anything, mock.Anything)
	dockerClient.AssertNotCalled(t, "ImagePull", mock.Anything, mock.Anything, mock.Anything)
}

func TestLauncher_Submit_RequiresImage(t *testing.T) {
	repo := &taskRepositoryMock{}

	l := NewLauncher(discardLogger(), LauncherConfig{}, repo, &dockerClientMock{}, &mountManagerMock{})

	err := l.Submit(context.Background(), domain.OfferRequirement{TaskName: "restore-node-0"})

	assert.Equal(t, ErrImageNotConfigured, err)
	repo.AssertNotCalled(t, "CompareAndSwapState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// endregion

// region Test: run
func TestLauncher_run_Success(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	task := stagedTask()
	scratch := "/tmp/restorer/restore-node-0-1111"

	dockerClient.On("ImagePull", mock.Anything, "docker.io/restorer/cassandra-restore:1.0", mock.Anything).
		Return(ioutil.NopCloser(strings.NewReader("some response")), nil)

	mountManager.On("Allocate", "restore-node-0-1111").Return(scratch, nil)

	dockerClient.On("ContainerCreate", mock.Anything,
		&container.Config{
			Image: "docker.io/restorer/cassandra-restore:1.0",
			Cmd:   []string{"/restore.sh"},
			Env: []string{
				"RESTORE_NAME=nightly",
				"RESTORE_NODE=node-0",
				"RESTORE_EXTERNAL_LOCATION=s3://bucket/nightly",
				"RESTORE_S3_ACCESS_KEY=key",
				"RESTORE_S3_SECRET_KEY=secret",
				"RESTORE_SCRATCH_DIR=/__restore__",
			},
			Labels: map[string]string{"restorer.task": "restore-node-0"},
		},
		&container.HostConfig{
			NetworkMode: "host",
			Mounts: []mount.Mount{
				{Type: mount.TypeBind, Source: scratch, Target: "/__restore__"},
			},
			VolumesFrom: []string{"daemon-container"},
		}, mock.Anything, "restore-node-0-1111",
	).Return(container.ContainerCreateCreatedBody{ID: "restore-container"}, nil)

	dockerClient.On("ContainerStart", mock.Anything, "restore-container", mock.Anything).Return(nil)
	dockerClient.On("ContainerWait", mock.Anything, "restore-container").Return(int64(0), nil)
	dockerClient.On("ContainerRemove", mock.Anything, "restore-container", mock.Anything).Return(nil)
	mountManager.On("Deallocate", "restore-node-0-1111").Return(nil)

	repo.On("Update", mock.Anything, mock.MatchedBy(func(task domain.Task) bool {
		return task.State == domain.TaskStateRunning && task.ContainerId == "restore-container" && task.LaunchedAt != nil
	})).Return(nil).Once()
	repo.On("Update", mock.Anything, withState(domain.TaskStateFinished)).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	l.run(context.Background(), task, task.SlaveId)

	repo.AssertExpectations(t)
	dockerClient.AssertExpectations(t)
	mountManager.AssertExpectations(t)
}

func TestLauncher_run_NonZeroExit(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	task := stagedTask()

	dockerClient.On("ImagePull", mock.Anything, mock.Anything, mock.Anything).
		Return(ioutil.NopCloser(strings.NewReader("")), nil)
	mountManager.On("Allocate", mock.Anything).Return("/tmp/scratch", nil)
	dockerClient.On("ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(container.ContainerCreateCreatedBody{ID: "restore-container"}, nil)
	dockerClient.On("ContainerStart", mock.Anything, "restore-container", mock.Anything).Return(nil)
	dockerClient.On("ContainerWait", mock.Anything, "restore-container").Return(int64(2), nil)
	dockerClient.On("ContainerRemove", mock.Anything, "restore-container", mock.Anything).Return(nil)
	mountManager.On("Deallocate", mock.Anything).Return(nil)

	repo.On("Update", mock.Anything, withState(domain.TaskStateRunning)).Return(nil).Once()
	repo.On("Update", mock.Anything, mock.MatchedBy(func(task domain.Task) bool {
		return task.State == domain.TaskStateFailed && task.StatusCode == 2
	})).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	l.run(context.Background(), task, task.SlaveId)

	repo.AssertExpectations(t)
}

func TestLauncher_run_LaunchError(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	task := stagedTask()

	dockerClient.On("ImagePull", mock.Anything, mock.Anything, mock.Anything).
		Return(io.ReadCloser(nil), context.DeadlineExceeded)
	mountManager.On("Deallocate", "restore-node-0-1111").Return(nil)
	repo.On("Update", mock.Anything, withState(domain.TaskStateError)).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	l.run(context.Background(), task, task.SlaveId)

	repo.AssertExpectations(t)
	dockerClient.AssertNotCalled(t, "ContainerCreate", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	dockerClient.AssertNotCalled(t, "ContainerRemove", mock.Anything, mock.Anything, mock.Anything)
}

// endregion

// region Test: Recover
func TestLauncher_Recover(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	running := stagedTask()
	running.State = domain.TaskStateRunning
	running.ContainerId = "restore-container"

	staged := stagedTask()
	staged.Name = "restore-node-1"

	finished := stagedTask()
	finished.Name = "restore-node-2"
	finished.State = domain.TaskStateFinished

	repo.On("FindByKind", mock.Anything, domain.KindRestoreSnapshot).
		Return([]domain.Task{running, staged, finished}, nil)
	dockerClient.On("ContainerList", mock.Anything, mock.Anything).Return([]types.Container{}, nil)
	repo.On("CompareAndSwapState", mock.Anything, "restore-node-1", domain.TaskStateStaging, domain.TaskStateNew).
		Return(true, nil)

	dockerClient.On("ContainerWait", mock.Anything, "restore-container").Return(int64(0), nil)
	dockerClient.On("ContainerRemove", mock.Anything, "restore-container", mock.Anything).Return(nil)
	mountManager.On("Deallocate", "restore-node-0-1111").Return(nil)
	repo.On("Update", mock.Anything, withState(domain.TaskStateFinished)).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	require.NoError(t, l.Recover(context.Background()))
	l.wg.Wait()

	repo.AssertExpectations(t)
	dockerClient.AssertNumberOfCalls(t, "ContainerWait", 1)
}

func taskLabelFilter(name string) interface{} {
	return mock.MatchedBy(func(o types.ContainerListOptions) bool {
		values := o.Filters.Get("label")
		return o.All && len(values) == 1 && values[0] == "restorer.task="+name
	})
}

func TestLauncher_Recover_AdoptsStartedContainer(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	staged := stagedTask()
	startedAt := time.Now().Add(-time.Minute)

	repo.On("FindByKind", mock.Anything, domain.KindRestoreSnapshot).Return([]domain.Task{staged}, nil)
	dockerClient.On("ContainerList", mock.Anything, taskLabelFilter("restore-node-0")).
		Return([]types.Container{{ID: "orphan", State: "running", Created: startedAt.Unix()}}, nil)

	repo.On("Update", mock.Anything, mock.MatchedBy(func(task domain.Task) bool {
		return task.State == domain.TaskStateRunning && task.ContainerId == "orphan" &&
			task.LaunchedAt != nil && task.LaunchedAt.Unix() == startedAt.Unix()
	})).Return(nil).Once()

	dockerClient.On("ContainerWait", mock.Anything, "orphan").Return(int64(0), nil)
	dockerClient.On("ContainerRemove", mock.Anything, "orphan", mock.Anything).Return(nil)
	mountManager.On("Deallocate", "restore-node-0-1111").Return(nil)
	repo.On("Update", mock.Anything, withState(domain.TaskStateFinished)).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	require.NoError(t, l.Recover(context.Background()))
	l.wg.Wait()

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "CompareAndSwapState", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestLauncher_Recover_RemovesUnstartedContainer(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}

	staged := stagedTask()

	repo.On("FindByKind", mock.Anything, domain.KindRestoreSnapshot).Return([]domain.Task{staged}, nil)
	dockerClient.On("ContainerList", mock.Anything, taskLabelFilter("restore-node-0")).
		Return([]types.Container{{ID: "orphan", State: "created"}}, nil)
	dockerClient.On("ContainerRemove", mock.Anything, "orphan", mock.Anything).Return(nil)
	repo.On("CompareAndSwapState", mock.Anything, "restore-node-0", domain.TaskStateStaging, domain.TaskStateNew).
		Return(true, nil)

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, &mountManagerMock{})

	require.NoError(t, l.Recover(context.Background()))
	l.wg.Wait()

	repo.AssertExpectations(t)
	dockerClient.AssertExpectations(t)
	dockerClient.AssertNotCalled(t, "ContainerWait", mock.Anything, mock.Anything)
}

// endregion

// region Test: await
func TestLauncher_await_DeadlineCountsFromLaunch(t *testing.T) {
	repo := &taskRepositoryMock{}
	dockerClient := &dockerClientMock{}
	mountManager := &mountManagerMock{}

	launchedAt := time.Now()

	task := stagedTask()
	task.State = domain.TaskStateRunning
	task.ContainerId = "restore-container"
	task.CreatedAt = launchedAt.Add(-48 * time.Hour)
	task.LaunchedAt = &launchedAt

	dockerClient.On("ContainerWait", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && ctx.Err() == nil && deadline.After(launchedAt.Add(59*time.Minute))
	}), "restore-container").Return(int64(0), nil)
	dockerClient.On("ContainerRemove", mock.Anything, "restore-container", mock.Anything).Return(nil)
	mountManager.On("Deallocate", mock.Anything).Return(nil)
	repo.On("Update", mock.Anything, withState(domain.TaskStateFinished)).Return(nil).Once()

	l := NewLauncher(discardLogger(), testLauncherConfig(), repo, dockerClient, mountManager)

	l.await(context.Background(), task)

	repo.AssertExpectations(t)
}

func TestLaunchTime(t *testing.T) {
	launchedAt := time.Now()
	updatedAt := launchedAt.Add(-time.Hour)

	assert.Equal(t, launchedAt, launchTime(domain.Task{LaunchedAt: &launchedAt, UpdatedAt: updatedAt}))
	assert.Equal(t, updatedAt, launchTime(domain.Task{UpdatedAt: updatedAt}))
	assert.Equal(t, updatedAt, launchTime(domain.Task{CreatedAt: updatedAt}))
}

// endregion
