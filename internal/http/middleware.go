package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/auth"
	"github.com/andreasstove999/ecommerce-system/storefront-service-go/internal/user"
)

const (
	correlationHeader = "X-Correlation-Id"
	causationHeader   = "X-Causation-Id"
)

type correlationKey struct{}

// CorrelationID takes X-Correlation-Id from the caller or mints one, echoes it
// on the response and keeps it in the context for logs and cart events.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := strings.TrimSpace(r.Header.Get(correlationHeader))
		if cid == "" {
			cid = uuid.NewString()
		}
		w.Header().Set(correlationHeader, cid)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), correlationKey{}, cid)))
	})
}

func GetCorrelationID(ctx context.Context) string {
	cid, _ := ctx.Value(correlationKey{}).(string)
	return cid
}

// RequestLogger attaches a request-scoped logger to the context and writes one
// line when the request completes. Authenticate adds the user id to it.
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			l := base.With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("correlation_id", GetCorrelationID(r.Context())).
				Logger()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r.WithContext(l.WithContext(r.Context())))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			ev := l.Info()
			if status >= http.StatusInternalServerError {
				ev = l.Error()
			}
			ev.Str("method", r.Method).
				Str("url", r.URL.String()).
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

type TokenVerifier interface {
	Verify(token string) (auth.Principal, error)
}

// Authenticate requires a valid bearer token and stores the principal in the
// request context.
func Authenticate(v TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fields := strings.Fields(r.Header.Get("Authorization"))
			if len(fields) != 2 || !strings.EqualFold(fields[0], "bearer") {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			p, err := v.Verify(fields[1])
			if err != nil {
				zerolog.Ctx(r.Context()).Debug().Err(err).Msg("rejected token")
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			zerolog.Ctx(r.Context()).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("user_id", p.UserID)
			})
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireRoles lets the request through when the principal holds any of roles.
func RequireRoles(roles ...user.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthenticated")
				return
			}
			if !auth.HasAnyRole(p, roles...) {
				writeError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
