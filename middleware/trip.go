package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/billbatista/acasinha-trips/session"
	"github.com/google/uuid"
)

type contextKey string

const TripIDKey contextKey = "trip_id"

// TripSession looks up the session cookie and, when it is valid, puts the
// active trip id in the request context.
func TripSession(sessionRepo session.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(session.CookieName)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessionRepo.GetByToken(r.Context(), cookie.Value)
			if err != nil {
				slog.Info("invalid/expired trip session", "error", err)
				ClearSessionCookie(w)
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), TripIDKey, sess.TripID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireTrip rejects requests that have no active trip.
func RequireTrip(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetTripID(r.Context()); !ok {
			http.Error(w, "no active trip", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func GetTripID(ctx context.Context) (uuid.UUID, bool) {
	tripID, ok := ctx.Value(TripIDKey).(uuid.UUID)
	return tripID, ok
}

func SetSessionCookie(w http.ResponseWriter, sess *session.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   false,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   session.CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
