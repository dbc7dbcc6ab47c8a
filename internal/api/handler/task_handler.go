package handler

import (
	"net/http"

	"clusterizer/internal/api/middleware"
	"clusterizer/internal/app/service"
	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TaskHandler serves the worker-facing dispatch endpoints. Its routes must be
// mounted behind middleware.Authenticator.
type TaskHandler struct {
	dispatchService   *service.DispatchService
	submissionService *service.SubmissionService
	logger            *zap.Logger
}

func NewTaskHandler(ds *service.DispatchService, ss *service.SubmissionService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{dispatchService: ds, submissionService: ss, logger: logger}
}

func (h *TaskHandler) RegisterRoutes(r chi.Router) {
	r.Post("/fetch_tasks", h.fetchTasks)
	r.Post("/submit_result/{task_id}", h.submitResult)
}

func (h *TaskHandler) fetchTasks(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, r, h.logger, common.ErrBadAPIKey)
		return
	}

	var req model.FetchTasksRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	tasks, err := h.dispatchService.FetchTasks(r.Context(), userID, req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, tasks)
}

func (h *TaskHandler) submitResult(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		respondError(w, r, h.logger, common.ErrBadAPIKey)
		return
	}

	taskID, err := model.ParseID[model.TaskID](chi.URLParam(r, "task_id"))
	if err != nil {
		respondError(w, r, h.logger, common.ErrBadRequest)
		return
	}

	var req model.SubmitResultRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if err := h.submissionService.SubmitResult(r.Context(), taskID, userID, req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, struct{}{})
}
