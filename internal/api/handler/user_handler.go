package handler

import (
	"context"
	"net/http"

	"clusterizer/internal/api/middleware"
	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"go.uber.org/zap"
)

type UserFinder interface {
	FindByID(ctx context.Context, id model.UserID) (*model.User, error)
}

// Me returns the authenticated caller's own user record.
func Me(users UserFinder, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserIDFromContext(r.Context())
		if !ok {
			respondError(w, r, logger, common.ErrBadAPIKey)
			return
		}
		user, err := users.FindByID(r.Context(), userID)
		if err != nil {
			respondError(w, r, logger, err)
			return
		}
		common.RespondWithJSON(w, http.StatusOK, user)
	}
}
