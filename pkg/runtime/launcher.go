package runtime

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"sync"
	"time"

	"github.com/docker/distribution/reference"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/appcontext"
	"github.com/yurykabanov/restorer/pkg/domain"
	"github.com/yurykabanov/restorer/pkg/metrics"
)

const (
	maxErrorsWhileWaiting = 100

	scratchTarget = "/__restore__"
	taskLabel     = "restorer.task"
)

var (
	ErrImageNotConfigured = errors.New("restore image is not configured")
)

type TaskRepository interface {
	Lookup(ctx context.Context, name string) (domain.Task, bool, error)
	Update(ctx context.Context, task domain.Task) error
	CompareAndSwapState(ctx context.Context, name string, from, to domain.TaskState) (bool, error)
	FindByKind(ctx context.Context, kind domain.TaskKind) ([]domain.Task, error)
}

type MountManager interface {
	Allocate(name string) (string, error)
	Deallocate(name string) error
}

type dockerClient interface {
	ContainerCreate(
		ctx context.Context,
		config *container.Config,
		hostConfig *container.HostConfig,
		networkingConfig *network.NetworkingConfig,
		containerName string,
	) (container.ContainerCreateCreatedBody, error)

	ContainerStart(
		ctx context.Context,
		containerID string,
		options types.ContainerStartOptions,
	) error

	ContainerWait(
		ctx context.Context,
		containerID string,
	) (int64, error)

	ContainerRemove(
		ctx context.Context,
		containerID string,
		options types.ContainerRemoveOptions,
	) error

	ImagePull(
		ctx context.Context,
		ref string,
		options types.ImagePullOptions,
	) (io.ReadCloser, error)

	ContainerList(
		ctx context.Context,
		options types.ContainerListOptions,
	) ([]types.Container, error)
}

type LauncherConfig struct {
	Image         string
	Command       []string
	LaunchTimeout time.Duration
	Timeout       time.Duration
}

// Launcher is the allocator of restore tasks: every accepted resource claim
// becomes a container running the restore image next to the node's daemon.
type Launcher struct {
	logger logrus.FieldLogger
	config LauncherConfig

	repo         TaskRepository
	docker       dockerClient
	mountManager MountManager

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLauncher(
	logger logrus.FieldLogger,
	config LauncherConfig,
	repo TaskRepository,
	docker dockerClient,
	mountManager MountManager,
) *Launcher {
	ctx, cancel := context.WithCancel(context.Background())

	return &Launcher{
		logger:       logger,
		config:       config,
		repo:         repo,
		docker:       docker,
		mountManager: mountManager,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Submit launches the task a claim was made for. Claims for tasks that were
// already launched are ignored, so the same claim may be submitted on every
// scheduling tick.
func (l *Launcher) Submit(ctx context.Context, requirement domain.OfferRequirement) error {
	ctx = appcontext.WithNodeName(appcontext.WithTaskName(ctx, requirement.TaskName), requirement.NodeName)
	logger := appcontext.LoggerFromContext(l.logger, ctx)

	if l.config.Image == "" {
		return ErrImageNotConfigured
	}

	swapped, err := l.repo.CompareAndSwapState(ctx, requirement.TaskName, domain.TaskStateNew, domain.TaskStateStaging)
	if err != nil {
		return errors.Wrap(err, "Unable to stage task")
	}

	if !swapped {
		logger.Debug("Task is already launched, ignoring offer requirement")
		return nil
	}

	task, found, err := l.repo.Lookup(ctx, requirement.TaskName)
	if err != nil {
		return errors.Wrap(err, "Unable to lookup staged task")
	}
	if !found {
		return errors.Wrapf(domain.ErrTaskNotFound, "task %s", requirement.TaskName)
	}

	logger.Info("Launching restore task")

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.run(appcontext.WithNodeName(appcontext.WithTaskName(l.ctx, task.Name), task.NodeName), task, requirement.SlaveId)
	}()

	return nil
}

// Recover resumes waiting for restore containers launched by a previous run
// of the process. A staged task whose container id never got stored is
// matched to its container by label; tasks without any container go back to
// the queue.
func (l *Launcher) Recover(ctx context.Context) error {
	tasks, err := l.repo.FindByKind(ctx, domain.KindRestoreSnapshot)
	if err != nil {
		return errors.Wrap(err, "Unable to find restore tasks")
	}

	for _, task := range tasks {
		if task.State == domain.TaskStateNew || task.State.IsTerminal() {
			continue
		}

		taskCtx := appcontext.WithNodeName(appcontext.WithTaskName(l.ctx, task.Name), task.NodeName)
		logger := appcontext.LoggerFromContext(l.logger, taskCtx)

		if task.ContainerId == "" {
			adopted, err := l.adopt(ctx, &task)
			if err != nil {
				return errors.Wrapf(err, "Unable to recover task %s", task.Name)
			}

			if !adopted {
				logger.Warn("Restore task was staged but never started, requeueing it")

				_, err := l.repo.CompareAndSwapState(ctx, task.Name, task.State, domain.TaskStateNew)
				if err != nil {
					return errors.Wrapf(err, "Unable to requeue task %s", task.Name)
				}
				continue
			}
		}

		logger.Debug("Resuming restore task")

		l.wg.Add(1)
		go func(task domain.Task) {
			defer l.wg.Done()
			l.await(appcontext.WithContainerId(taskCtx, task.ContainerId), task)
		}(task)
	}

	return nil
}

// adopt looks for the container started for the task. A started container
// is bound to the task; one that never started is removed.
func (l *Launcher) adopt(ctx context.Context, task *domain.Task) (bool, error) {
	logger := appcontext.LoggerFromContext(l.logger, appcontext.WithTaskName(ctx, task.Name))

	args := filters.NewArgs()
	args.Add("label", taskLabel+"="+task.Name)

	containers, err := l.docker.ContainerList(ctx, types.ContainerListOptions{All: true, Filters: args})
	if err != nil {
		return false, err
	}

	if len(containers) == 0 {
		return false, nil
	}

	c := containers[0]

	if c.State == "created" {
		logger.WithField("container_id", c.ID).Warn("Removing restore container that was never started")

		l.remove(ctx, domain.Task{ContainerId: c.ID})
		return false, nil
	}

	launchedAt := time.Unix(c.Created, 0)

	task.ContainerId = c.ID
	task.State = domain.TaskStateRunning
	task.LaunchedAt = &launchedAt

	err = l.repo.Update(ctx, *task)
	if err != nil {
		return false, err
	}

	logger.WithField("container_id", c.ID).Info("Adopted running restore container")

	return true, nil
}

func (l *Launcher) Stop() {
	l.cancel()
	l.wg.Wait()
}

func (l *Launcher) run(ctx context.Context, task domain.Task, slaveId string) {
	logger := appcontext.LoggerFromContext(l.logger, ctx)

	task, err := l.launch(ctx, task, slaveId)
	if err != nil {
		logger.WithError(err).Error("Unable to launch restore task")

		if task.ContainerId != "" {
			l.remove(ctx, task)
		}
		l.deallocate(ctx, task)
		_ = l.finish(ctx, task, domain.TaskStateError)
		return
	}

	metrics.TasksLaunched.Inc()

	l.await(appcontext.WithContainerId(ctx, task.ContainerId), task)
}

func (l *Launcher) launch(ctx context.Context, task domain.Task, slaveId string) (domain.Task, error) {
	if l.config.LaunchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.config.LaunchTimeout)
		defer cancel()
	}

	ref, err := reference.ParseNormalizedNamed(l.config.Image)
	if err != nil {
		return task, err
	}

	err = l.pullImage(ctx, ref)
	if err != nil {
		return task, err
	}

	dir, err := l.mountManager.Allocate(containerName(task))
	if err != nil {
		return task, err
	}

	hostConfig := &container.HostConfig{
		NetworkMode: "host",
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: dir, Target: scratchTarget},
		},
	}
	if slaveId != "" {
		hostConfig.VolumesFrom = []string{slaveId}
	}

	c, err := l.docker.ContainerCreate(
		ctx,
		&container.Config{
			Image:  ref.String(),
			Cmd:    l.config.Command,
			Env:    restoreEnv(task),
			Labels: map[string]string{taskLabel: task.Name},
		},
		hostConfig,
		&network.NetworkingConfig{},
		containerName(task),
	)
	if err != nil {
		return task, err
	}

	task.ContainerId = c.ID

	err = l.docker.ContainerStart(ctx, c.ID, types.ContainerStartOptions{})
	if err != nil {
		return task, err
	}

	launchedAt := time.Now()

	task.State = domain.TaskStateRunning
	task.LaunchedAt = &launchedAt

	err = l.repo.Update(ctx, task)
	if err != nil {
		return task, err
	}

	return task, nil
}

func (l *Launcher) await(ctx context.Context, task domain.Task) {
	logger := appcontext.LoggerFromContext(l.logger, ctx)

	waitCtx := ctx
	if l.config.Timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(ctx, launchTime(task).Add(l.config.Timeout))
		defer cancel()
	}

	logger.Info("Awaiting restore task to finish")

	var status int64
	var err error

	errCounter := 0
	for {
		status, err = l.docker.ContainerWait(waitCtx, task.ContainerId)
		if err == nil {
			break
		}

		if ctx.Err() != nil {
			// shutting down, the next run of the process picks the task up again
			return
		}

		if waitCtx.Err() == context.DeadlineExceeded {
			logger.Warn("Restore task timed out")
			l.cleanup(ctx, task)
			_ = l.finish(ctx, task, domain.TaskStateKilled)
			return
		}

		errCounter++
		if errCounter > maxErrorsWhileWaiting {
			logger.WithError(err).Error("Unable to wait for restore task")
			l.cleanup(ctx, task)
			_ = l.finish(ctx, task, domain.TaskStateLost)
			return
		}
	}

	task.StatusCode = status
	l.cleanup(ctx, task)

	if status != 0 {
		logger.WithField("status_code", status).Warn("Restore task failed")
		_ = l.finish(ctx, task, domain.TaskStateFailed)
		return
	}

	logger.Info("Restore task finished")
	_ = l.finish(ctx, task, domain.TaskStateFinished)
}

func (l *Launcher) cleanup(ctx context.Context, task domain.Task) {
	l.remove(ctx, task)
	l.deallocate(ctx, task)
}

func (l *Launcher) deallocate(ctx context.Context, task domain.Task) {
	err := l.mountManager.Deallocate(containerName(task))
	if err != nil {
		appcontext.LoggerFromContext(l.logger, ctx).WithError(err).Error("Unable to deallocate scratch directory")
	}
}

func (l *Launcher) remove(ctx context.Context, task domain.Task) {
	logger := appcontext.LoggerFromContext(l.logger, ctx)

	removeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := l.docker.ContainerRemove(removeCtx, task.ContainerId, types.ContainerRemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil {
		logger.WithError(err).Error("Unable to remove restore container")
	}
}

func (l *Launcher) finish(ctx context.Context, task domain.Task, state domain.TaskState) error {
	logger := appcontext.LoggerFromContext(l.logger, ctx)

	task.State = state

	err := l.repo.Update(context.Background(), task)
	if err != nil {
		logger.WithError(err).Error("Unable to store restore task state")
		return err
	}

	metrics.TasksFinished.WithLabelValues(string(state)).Inc()

	return nil
}

func (l *Launcher) pullImage(ctx context.Context, ref reference.Named) error {
	img, err := l.docker.ImagePull(
		ctx,
		ref.String(),
		types.ImagePullOptions{},
	)
	if err != nil {
		return err
	}
	defer img.Close()

	_, err = io.Copy(ioutil.Discard, img)
	if err != nil {
		return err
	}

	return nil
}

// launchTime is when the task's container started. Tasks stored before
// launch times were recorded fall back to their last update.
func launchTime(task domain.Task) time.Time {
	if task.LaunchedAt != nil {
		return *task.LaunchedAt
	}
	if !task.UpdatedAt.IsZero() {
		return task.UpdatedAt
	}
	return task.CreatedAt
}

func containerName(task domain.Task) string {
	return fmt.Sprintf("%s-%s", task.Name, task.Id)
}

func restoreEnv(task domain.Task) []string {
	return []string{
		"RESTORE_NAME=" + task.RestoreName,
		"RESTORE_NODE=" + task.NodeName,
		"RESTORE_EXTERNAL_LOCATION=" + task.ExternalLocation,
		"RESTORE_S3_ACCESS_KEY=" + task.AccessKey,
		"RESTORE_S3_SECRET_KEY=" + task.SecretKey,
		"RESTORE_SCRATCH_DIR=" + scratchTarget,
	}
}
