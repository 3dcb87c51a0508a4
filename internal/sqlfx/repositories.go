package sqlfx

import (
	"github.com/jmoiron/sqlx"

	"github.com/yurykabanov/restorer/pkg/domain"
	"github.com/yurykabanov/restorer/pkg/http/handler"
	"github.com/yurykabanov/restorer/pkg/runtime"
	"github.com/yurykabanov/restorer/pkg/storage"
)

func TaskRepository(db *sqlx.DB) (
	*storage.TaskRepository,
	domain.TaskStore,
	runtime.TaskRepository,
	runtime.DaemonRepository,
) {
	repo := storage.NewTaskRepository(db)

	return repo, repo, repo, repo
}

func RestoreRepository(db *sqlx.DB) (
	*storage.RestoreRepository,
	domain.RestoreRepository,
	handler.RestoreHistory,
) {
	repo := storage.NewRestoreRepository(db)

	return repo, repo, repo
}
