package middleware

import (
	"context"
	"net/http"

	"clusterizer/internal/common"
	"clusterizer/internal/domain/model"

	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

type contextKey string

const UserIDCtxKey contextKey = "userID"

// UserAuthenticator resolves an API key to an enabled user.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*model.User, error)
}

// Authenticator requires "Authorization: Bearer <api key>" and stores the
// caller's user id in the request context.
func Authenticator(auth UserAuthenticator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := jwtauth.TokenFromHeader(r)
			if token == "" {
				common.RespondWithError(w, common.ErrBadAPIKey)
				return
			}

			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				if common.HTTPStatusFromError(err) == http.StatusInternalServerError {
					logger.Error("authenticating request", zap.Error(err))
				}
				common.RespondWithError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), UserIDCtxKey, user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserIDFromContext returns the id stored by Authenticator.
func GetUserIDFromContext(ctx context.Context) (model.UserID, bool) {
	userID, ok := ctx.Value(UserIDCtxKey).(model.UserID)
	return userID, ok
}
