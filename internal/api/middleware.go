package api

import (
	"net/http"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/LeventeLantos/outreach-scheduler/internal/apperrors"
	"github.com/LeventeLantos/outreach-scheduler/internal/auth"
	"github.com/LeventeLantos/outreach-scheduler/internal/logging"
)

const requestIDHeader = "X-Request-ID"

var errUnauthorized = apperrors.Unauthorized("Unauthorized")

type TokenVerifier interface {
	OwnerID(token string) (string, error)
}

type KeyChecker interface {
	Valid(presented string) bool
}

// accessLog tags each request with an id and logs it once it completes.
func accessLog(logger zerolog.Logger) func(http.Handler) http.Handler {
	log := logging.Component(logger, "http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = logging.NewRequestID()
			}
			w.Header().Set(requestIDHeader, id)
			r = r.WithContext(logging.ContextWithRequestID(r.Context(), id))

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info().
				Str("request_id", id).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}

// requireUser resolves the bearer JWT to an owner id.
func requireUser(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil {
				unauthorized(w)
				return
			}
			ownerID, err := v.OwnerID(token)
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithOwner(r.Context(), ownerID)))
		})
	}
}

func requireService(k KeyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.BearerToken(r.Header.Get("Authorization"))
			if err != nil || !k.Valid(token) {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	writeJSON(w, apperrors.HTTPStatus(errUnauthorized), map[string]string{"error": apperrors.Message(errUnauthorized)})
}
