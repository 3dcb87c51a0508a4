package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/appcontext"
	"github.com/yurykabanov/restorer/pkg/domain"
)

const (
	StatusStarted        = "started"
	StatusAlreadyRunning = "already_running"
	StatusBadRequest     = "bad_request"
	StatusFailed         = "error"
)

type RestoreStarter interface {
	TryStartRestore(ctx context.Context, rc domain.RestoreContext) (bool, error)
}

type startResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// RestoreStartHandler accepts restore requests. A request made while
// another restore is active is answered with 409 and changes nothing.
type RestoreStartHandler struct {
	logger  logrus.FieldLogger
	starter RestoreStarter
}

func NewRestoreStartHandler(logger logrus.FieldLogger, starter RestoreStarter) *RestoreStartHandler {
	return &RestoreStartHandler{
		logger:  logger,
		starter: starter,
	}
}

func (h *RestoreStartHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	logger := appcontext.LoggerFromContext(h.logger, ctx)

	var rc domain.RestoreContext

	err := json.NewDecoder(r.Body).Decode(&rc)
	if err != nil {
		logger.WithError(err).Warn("Malformed restore request")
		writeJSON(logger, w, http.StatusBadRequest, startResponse{
			Status:  StatusBadRequest,
			Message: "Malformed restore request",
		})
		return
	}

	logger = logger.WithField("restore", rc.Name)

	started, err := h.starter.TryStartRestore(appcontext.WithRestoreName(ctx, rc.Name), rc)
	if err != nil {
		logger.WithError(err).Error("Unable to start restore")
		writeJSON(logger, w, http.StatusInternalServerError, startResponse{
			Status:  StatusFailed,
			Message: "Unable to start restore",
		})
		return
	}

	if !started {
		logger.Info("Restore rejected, another one is in progress")
		writeJSON(logger, w, http.StatusConflict, startResponse{
			Status:  StatusAlreadyRunning,
			Message: "An existing restore is already in progress",
		})
		return
	}

	writeJSON(logger, w, http.StatusOK, startResponse{
		Status:  StatusStarted,
		Message: "Started restore from snapshot",
	})
}

func writeJSON(logger logrus.FieldLogger, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		logger.WithError(err).Error("Unable to encode response")
	}
}
