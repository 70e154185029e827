package httpapi

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/formationflow/internal/models"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Identity headers set by the gateway in front of the API.
const (
	HeaderUserID       = "X-User-Id"
	HeaderUserRole     = "X-User-Role"
	HeaderGatewayToken = "X-Gateway-Token"
	HeaderRequestID    = "X-Request-Id"
)

type actorKey struct{}

// actorFrom returns the caller resolved by identify. The zero Actor means
// no identity was presented.
func actorFrom(ctx context.Context) models.Actor {
	actor, _ := ctx.Value(actorKey{}).(models.Actor)
	return actor
}

// identify resolves the caller from gateway headers. When a gateway token is
// configured, requests without it are rejected before any handler runs.
func identify(gatewayToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if gatewayToken != "" {
				got := r.Header.Get(HeaderGatewayToken)
				if subtle.ConstantTimeCompare([]byte(got), []byte(gatewayToken)) != 1 {
					writeError(w, r, models.ErrUnauthorized)
					return
				}
			}

			var actor models.Actor
			if raw := strings.TrimSpace(r.Header.Get(HeaderUserID)); raw != "" {
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					writeError(w, r, models.ErrUnauthorized)
					return
				}
				actor.UserID = id
				actor.Role = models.RoleUser
				if strings.EqualFold(strings.TrimSpace(r.Header.Get(HeaderUserRole)), string(models.RoleAdmin)) {
					actor.Role = models.RoleAdmin
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		elapsed := time.Since(start)
		metrics().requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		metrics().latency.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "HTTP request served.",
			"requestId", requestID,
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"bytes", rec.bytes,
			"elapsed", elapsed.String(),
		)
	})
}
