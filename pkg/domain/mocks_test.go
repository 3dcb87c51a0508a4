package domain

import (
	"context"
	"io/ioutil"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
)

// region taskStoreMock
type taskStoreMock struct {
	mock.Mock
}

func (m *taskStoreMock) Lookup(ctx context.Context, name string) (Task, bool, error) {
	args := m.Called(ctx, name)
	return args.Get(0).(Task), args.Bool(1), args.Error(2)
}

func (m *taskStoreMock) Daemons(ctx context.Context) (map[string]*Task, error) {
	args := m.Called(ctx)

	if d := args.Get(0); d != nil {
		return d.(map[string]*Task), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *taskStoreMock) GetOrCreateRestoreSnapshot(ctx context.Context, daemon Task, rc RestoreContext) (Task, error) {
	args := m.Called(ctx, daemon, rc)
	return args.Get(0).(Task), args.Error(1)
}

func (m *taskStoreMock) ClearRestoreSnapshots(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// endregion

// region providerMock
type providerMock struct {
	mock.Mock
}

func (m *providerMock) UpdateOfferRequirement(ctx context.Context, task Task) (*OfferRequirement, error) {
	args := m.Called(ctx, task)

	if r := args.Get(0); r != nil {
		return r.(*OfferRequirement), args.Error(1)
	}

	return nil, args.Error(1)
}

// endregion

// region executorMock
type executorMock struct {
	mock.Mock

	plan       Plan
	onTerminal func(Plan, Status)
}

func (m *executorMock) Execute(ctx context.Context, plan Plan, onTerminal func(Plan, Status)) error {
	m.plan = plan
	m.onTerminal = onTerminal

	args := m.Called(ctx, plan, onTerminal)
	return args.Error(0)
}

// endregion

// region restoreRepositoryMock
type restoreRepositoryMock struct {
	mock.Mock
}

func (m *restoreRepositoryMock) SaveActive(ctx context.Context, rc RestoreContext, startedAt time.Time) error {
	args := m.Called(ctx, rc, startedAt)
	return args.Error(0)
}

func (m *restoreRepositoryMock) FinishActive(ctx context.Context, name string, status Status, finishedAt time.Time) error {
	args := m.Called(ctx, name, status, finishedAt)
	return args.Error(0)
}

func (m *restoreRepositoryMock) FindActive(ctx context.Context) (RestoreContext, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(RestoreContext), args.Bool(1), args.Error(2)
}

// endregion

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.Out = ioutil.Discard

	return logger
}
