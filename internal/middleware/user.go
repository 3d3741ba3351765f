package middleware

import (
	"context"
	"net/http"

	app_error "github.com/xenn00/crew-chat/internal/errors"
)

type userKey string

const UserIDKey userKey = "userId"

// RequireUser takes the caller identity from X-User-ID. Browsers cannot set headers on a
// websocket handshake, so the user_id query parameter is accepted as a fallback.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			writeAppError(w, app_error.NewAppError(http.StatusUnauthorized, "Missing user identity", "auth"))
			return
		}
		if len(userID) > 36 {
			writeAppError(w, app_error.BadRequest("Invalid user identity", "auth"))
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

func writeAppError(w http.ResponseWriter, appErr *app_error.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(appErr.Code)
	_ = appErr.JSON(w)
}
