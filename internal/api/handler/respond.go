package handler

import (
	"encoding/json"
	"net/http"

	"clusterizer/internal/common"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// respondError renders err and logs it when it is an infrastructure failure.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if common.HTTPStatusFromError(err) == http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("request_id", chiMiddleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	common.RespondWithError(w, err)
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return common.ErrBadRequest
	}
	return nil
}
