package storage

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/restorer/pkg/domain"
)

const (
	taskColumns = `
		id, name, kind, node_name, slave_id, state,
		restore_name, external_location, access_key, secret_key,
		container_id, status_code, created_at, updated_at, launched_at
	`

	taskInsertQuery = `
		INSERT INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	taskInsertIgnoreQuery = `
		INSERT OR IGNORE INTO tasks (` + taskColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	taskUpdateQuery = `
		UPDATE tasks SET
			kind = ?, node_name = ?, slave_id = ?, state = ?,
			restore_name = ?, external_location = ?, access_key = ?, secret_key = ?,
			container_id = ?, status_code = ?, updated_at = ?, launched_at = ?
		WHERE name = ?
	`

	taskUpdateStateQuery = `
		UPDATE tasks SET state = ?, updated_at = ? WHERE name = ?
	`

	taskCompareAndSwapStateQuery = `
		UPDATE tasks SET state = ?, updated_at = ? WHERE name = ? AND state = ?
	`

	taskClearRestoreSnapshotsQuery = `
		DELETE FROM tasks WHERE kind = ? AND state NOT IN (?, ?, ?)
	`

	taskDeleteQuery = `
		DELETE FROM tasks WHERE name = ?
	`

	taskSelectByName = `
		SELECT ` + taskColumns + ` FROM tasks WHERE name = ?
	`

	taskSelectByKind = `
		SELECT ` + taskColumns + ` FROM tasks WHERE kind = ? ORDER BY name
	`

	nodeInsertQuery = `
		INSERT OR IGNORE INTO nodes (name, registered_at) VALUES (?, ?)
	`

	nodeSelectAll = `
		SELECT name FROM nodes ORDER BY name
	`
)

// TaskRepository is the authoritative registry of daemon and
// restore-snapshot tasks. Callers are expected to open the database with a
// single connection so transactions are serialized.
type TaskRepository struct {
	db *sqlx.DB
}

func NewTaskRepository(db *sqlx.DB) *TaskRepository {
	return &TaskRepository{
		db: db,
	}
}

func (r *TaskRepository) Lookup(ctx context.Context, name string) (domain.Task, bool, error) {
	return lookup(ctx, r.db, name)
}

func lookup(ctx context.Context, q sqlx.QueryerContext, name string) (domain.Task, bool, error) {
	var task domain.Task

	err := sqlx.GetContext(ctx, q, &task, taskSelectByName, name)
	if err == sql.ErrNoRows {
		return domain.Task{}, false, nil
	}
	if err != nil {
		return domain.Task{}, false, err
	}

	return task, true, nil
}

// Daemons maps every registered node to its daemon task, nil when the node
// has none yet.
func (r *TaskRepository) Daemons(ctx context.Context) (map[string]*domain.Task, error) {
	var nodes []string

	err := r.db.SelectContext(ctx, &nodes, nodeSelectAll)
	if err != nil {
		return nil, err
	}

	daemons, err := r.FindByKind(ctx, domain.KindDaemon)
	if err != nil {
		return nil, err
	}

	result := make(map[string]*domain.Task, len(nodes))

	for _, node := range nodes {
		result[node] = nil
	}

	for i := range daemons {
		result[daemons[i].NodeName] = &daemons[i]
	}

	return result, nil
}

func (r *TaskRepository) GetOrCreateRestoreSnapshot(
	ctx context.Context,
	daemon domain.Task,
	rc domain.RestoreContext,
) (task domain.Task, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return task, err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	name := domain.RestoreBlockName(daemon.NodeName)

	existing, found, err := lookup(ctx, tx, name)
	if err != nil {
		return task, err
	}

	if found {
		if existing.RestoreName == rc.Name {
			return existing, nil
		}

		if !existing.State.IsTerminal() {
			return task, errors.Wrapf(domain.ErrTaskConflict, "task %s is owned by restore %s", name, existing.RestoreName)
		}

		_, err = tx.ExecContext(ctx, taskDeleteQuery, name)
		if err != nil {
			return task, err
		}
	}

	now := time.Now()

	task = domain.Task{
		Id:               uuid.New().String(),
		Name:             name,
		Kind:             domain.KindRestoreSnapshot,
		NodeName:         daemon.NodeName,
		SlaveId:          daemon.SlaveId,
		State:            domain.TaskStateNew,
		RestoreName:      rc.Name,
		ExternalLocation: rc.ExternalLocation,
		AccessKey:        rc.AccessKey,
		SecretKey:        rc.SecretKey,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	_, err = tx.ExecContext(ctx, taskInsertQuery, taskArgs(task)...)
	if err != nil {
		return task, err
	}

	return task, nil
}

// ClearRestoreSnapshots removes restore-snapshot tasks left by earlier
// restores. Tasks whose container may still be running are kept.
func (r *TaskRepository) ClearRestoreSnapshots(ctx context.Context) error {
	_, err := r.db.ExecContext(
		ctx,
		taskClearRestoreSnapshotsQuery,
		domain.KindRestoreSnapshot,
		domain.TaskStateStaging, domain.TaskStateStarting, domain.TaskStateRunning,
	)
	return err
}

func (r *TaskRepository) RegisterNode(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, nodeInsertQuery, name, time.Now())
	return err
}

// UpsertDaemon registers the daemon's node and stores the daemon task under
// the node's name.
func (r *TaskRepository) UpsertDaemon(ctx context.Context, daemon domain.Task) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	now := time.Now()

	daemon.Kind = domain.KindDaemon
	if daemon.Name == "" {
		daemon.Name = daemon.NodeName
	}
	if daemon.Id == "" {
		daemon.Id = uuid.New().String()
	}
	if daemon.CreatedAt.IsZero() {
		daemon.CreatedAt = now
	}
	daemon.UpdatedAt = now

	_, err = tx.ExecContext(ctx, nodeInsertQuery, daemon.NodeName, now)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, taskInsertIgnoreQuery, taskArgs(daemon)...)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, taskUpdateQuery, updateArgs(daemon)...)
	return err
}

func (r *TaskRepository) Update(ctx context.Context, task domain.Task) error {
	task.UpdatedAt = time.Now()

	res, err := r.db.ExecContext(ctx, taskUpdateQuery, updateArgs(task)...)
	if err != nil {
		return err
	}

	return expectOneRow(res, task.Name)
}

func (r *TaskRepository) UpdateState(ctx context.Context, name string, state domain.TaskState) error {
	res, err := r.db.ExecContext(ctx, taskUpdateStateQuery, state, time.Now(), name)
	if err != nil {
		return err
	}

	return expectOneRow(res, name)
}

// CompareAndSwapState moves the task into state `to` only if it is
// currently in state `from`. It reports whether the swap happened.
func (r *TaskRepository) CompareAndSwapState(ctx context.Context, name string, from, to domain.TaskState) (bool, error) {
	res, err := r.db.ExecContext(ctx, taskCompareAndSwapStateQuery, to, time.Now(), name, from)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n == 1, nil
}

func (r *TaskRepository) FindByKind(ctx context.Context, kind domain.TaskKind) ([]domain.Task, error) {
	var tasks []domain.Task

	err := r.db.SelectContext(ctx, &tasks, taskSelectByKind, kind)
	if err != nil {
		return nil, err
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })

	return tasks, nil
}

func expectOneRow(res sql.Result, name string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return errors.Wrapf(domain.ErrTaskNotFound, "task %s", name)
	}

	return nil
}

func taskArgs(t domain.Task) []interface{} {
	return []interface{}{
		t.Id, t.Name, t.Kind, t.NodeName, t.SlaveId, t.State,
		t.RestoreName, t.ExternalLocation, t.AccessKey, t.SecretKey,
		t.ContainerId, t.StatusCode, t.CreatedAt, t.UpdatedAt, t.LaunchedAt,
	}
}

func updateArgs(t domain.Task) []interface{} {
	return []interface{}{
		t.Kind, t.NodeName, t.SlaveId, t.State,
		t.RestoreName, t.ExternalLocation, t.AccessKey, t.SecretKey,
		t.ContainerId, t.StatusCode, t.UpdatedAt, t.LaunchedAt,
		t.Name,
	}
}
