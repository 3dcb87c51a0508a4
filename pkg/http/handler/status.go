package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/appcontext"
	"github.com/yurykabanov/restorer/pkg/domain"
)

const recentRestoresLimit = 10

type RestoreState interface {
	ActiveRestore() (domain.RestoreContext, bool)
	Plan() (domain.Plan, bool)
}

type RestoreHistory interface {
	FindRecent(ctx context.Context, limit int) ([]domain.RestoreRecord, error)
}

type RestoreStatusHandler struct {
	logger  logrus.FieldLogger
	state   RestoreState
	history RestoreHistory
}

func NewRestoreStatusHandler(logger logrus.FieldLogger, state RestoreState, history RestoreHistory) *RestoreStatusHandler {
	return &RestoreStatusHandler{
		logger:  logger,
		state:   state,
		history: history,
	}
}

type blockResponse struct {
	Name   string        `json:"name"`
	Node   string        `json:"node,omitempty"`
	Status domain.Status `json:"status"`
}

type restoreResponse struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	StartedAt  int64  `json:"started_at_mtime"`
	FinishedAt int64  `json:"finished_at_mtime,omitempty"`
}

type statusResponse struct {
	Active bool              `json:"active"`
	Name   string            `json:"name,omitempty"`
	Status *domain.Status    `json:"status,omitempty"`
	Blocks []blockResponse   `json:"blocks"`
	Recent []restoreResponse `json:"recent"`
}

func (h *RestoreStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	result := statusResponse{
		Blocks: []blockResponse{},
		Recent: []restoreResponse{},
	}

	if rc, ok := h.state.ActiveRestore(); ok {
		result.Active = true
		result.Name = rc.Name
	}

	if plan, ok := h.state.Plan(); ok {
		status := plan.Status()
		result.Status = &status

		for _, b := range plan.Blocks {
			br := blockResponse{Name: b.Name(), Status: b.Status()}
			if d, ok := b.(interface{ Daemon() string }); ok {
				br.Node = d.Daemon()
			}
			result.Blocks = append(result.Blocks, br)
		}
	}

	rr, err := h.history.FindRecent(ctx, recentRestoresLimit)
	if err != nil {
		logger.WithError(err).Error("Unable to query recent restores")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	for _, restore := range rr {
		resp := restoreResponse{
			Name:      restore.Name,
			Status:    restore.Status,
			StartedAt: restore.StartedAt.UnixNano() / 1e6,
		}
		if restore.FinishedAt != nil {
			resp.FinishedAt = restore.FinishedAt.UnixNano() / 1e6
		}
		result.Recent = append(result.Recent, resp)
	}

	writeJSON(logger, w, http.StatusOK, result)
}
