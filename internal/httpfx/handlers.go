package httpfx

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/restorer/pkg/domain"
	"github.com/yurykabanov/restorer/pkg/http/handler"
	"github.com/yurykabanov/restorer/pkg/metrics"
)

func RestoreStartHandler(logger *logrus.Logger, manager *domain.RestoreManager) *handler.RestoreStartHandler {
	return handler.NewRestoreStartHandler(logger, manager)
}

func RestoreStatusHandler(
	logger *logrus.Logger,
	manager *domain.RestoreManager,
	history handler.RestoreHistory,
) *handler.RestoreStatusHandler {
	return handler.NewRestoreStatusHandler(logger, manager, history)
}

func RegisterRestoreHandlers(
	router *mux.Router,
	start *handler.RestoreStartHandler,
	status *handler.RestoreStatusHandler,
) {
	router.Handle("/v1/restore/start", start).Methods(http.MethodPut)
	router.Handle("/v1/restore/status", status).Methods(http.MethodGet)
}

func RegisterMetricsHandler(router *mux.Router) {
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
}
