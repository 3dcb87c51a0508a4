package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/yurykabanov/restorer/pkg/domain"
)

const (
	restoreInsertQuery = `
		INSERT INTO restores (
			name, external_location, access_key, secret_key,
			status, active, started_at
		)
		VALUES (?, ?, ?, ?, ?, 1, ?)
	`

	restoreFinishQuery = `
		UPDATE restores SET status = ?, active = 0, finished_at = ?
		WHERE name = ? AND active = 1
	`

	restoreSelectActive = `
		SELECT
			id,
			name, external_location, access_key, secret_key,
			status, active, started_at, finished_at
		FROM restores
		WHERE active = 1
		ORDER BY id DESC
		LIMIT 1
	`

	restoreSelectRecent = `
		SELECT
			id,
			name, external_location, access_key, secret_key,
			status, active, started_at, finished_at
		FROM restores
		ORDER BY id DESC
		LIMIT ?
	`
)

// Restore is the persisted history entry of a single restore.
type Restore struct {
	Id int64

	Name             string
	ExternalLocation string
	AccessKey        string
	SecretKey        string

	Status string
	Active bool

	StartedAt  time.Time
	FinishedAt *time.Time
}

func (r Restore) Context() domain.RestoreContext {
	return domain.NewRestoreContext(r.Name, r.ExternalLocation, r.AccessKey, r.SecretKey)
}

func (r Restore) Record() domain.RestoreRecord {
	return domain.RestoreRecord{
		RestoreContext: r.Context(),
		Status:         r.Status,
		Active:         r.Active,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
	}
}

type RestoreRepository struct {
	db *sqlx.DB
}

func NewRestoreRepository(db *sqlx.DB) *RestoreRepository {
	return &RestoreRepository{
		db: db,
	}
}

func (r *RestoreRepository) SaveActive(ctx context.Context, rc domain.RestoreContext, startedAt time.Time) error {
	_, err := r.db.ExecContext(
		ctx,
		restoreInsertQuery,
		rc.Name, rc.ExternalLocation, rc.AccessKey, rc.SecretKey,
		domain.StatusInProgress.String(), startedAt,
	)

	return err
}

func (r *RestoreRepository) FinishActive(ctx context.Context, name string, status domain.Status, finishedAt time.Time) error {
	res, err := r.db.ExecContext(ctx, restoreFinishQuery, status.String(), finishedAt, name)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if n == 0 {
		return errors.Errorf("no active restore named %s", name)
	}

	return nil
}

func (r *RestoreRepository) FindActive(ctx context.Context) (domain.RestoreContext, bool, error) {
	var restore Restore

	err := r.db.GetContext(ctx, &restore, restoreSelectActive)
	if err == sql.ErrNoRows {
		return domain.RestoreContext{}, false, nil
	}
	if err != nil {
		return domain.RestoreContext{}, false, err
	}

	return restore.Context(), true, nil
}

func (r *RestoreRepository) FindRecent(ctx context.Context, limit int) ([]domain.RestoreRecord, error) {
	var restores []Restore

	err := r.db.SelectContext(ctx, &restores, restoreSelectRecent, limit)
	if err != nil {
		return nil, err
	}

	records := make([]domain.RestoreRecord, 0, len(restores))
	for _, restore := range restores {
		records = append(records, restore.Record())
	}

	return records, nil
}
