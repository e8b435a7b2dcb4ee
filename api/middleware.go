package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/garnizeh/fieldops/internal/lifecycle"
)

type ctxKey string

const ctxSession ctxKey = "session"

// AppVersionHeader carries the staff app version on every request.
const AppVersionHeader = "X-App-Version"

// package-level logger used by middleware and helpers; can be set via SetLogger from caller
var logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))

// SetLogger installs a logger for the api package. Passing nil is a no-op.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger = l
	}
}

// SessionFromContext returns the session installed by the JWT middleware.
func SessionFromContext(ctx context.Context) (lifecycle.Session, bool) {
	s, ok := ctx.Value(ctxSession).(lifecycle.Session)
	return s, ok && s.StaffID != ""
}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s lifecycle.Session) context.Context {
	return context.WithValue(ctx, ctxSession, s)
}

func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("remote", r.RemoteAddr),
		)
		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, "+AppVersionHeader)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic", slog.Any("err", err), slog.String("path", r.URL.Path))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// JWTAuthMiddlewareWithSecret validates the bearer token and installs the
// staff session in the request context. Websocket clients that cannot set
// headers may pass the token as the access_token query parameter.
func JWTAuthMiddlewareWithSecret(secret string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.URL.Query().Get("access_token")
			if authHeader := r.Header.Get("Authorization"); authHeader != "" {
				if _, err := fmt.Sscanf(authHeader, "Bearer %s", &tokenString); err != nil {
					logger.Debug("failed to parse Authorization header", slog.Any("err", err))
				}
			}
			if tokenString == "" {
				http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			s := lifecycle.Session{
				StaffID:   claimString(claims, "staff_id"),
				SessionID: claimString(claims, "session_id"),
				Name:      claimString(claims, "name"),
			}
			if s.StaffID == "" {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}

func claimString(c jwt.MapClaims, key string) string {
	v, _ := c[key].(string)
	return v
}

// AppVersionMiddleware refuses clients older than minVersion with 426. The
// version comes from the X-App-Version header or the app_version query
// parameter. An empty minVersion disables the check.
func AppVersionMiddleware(minVersion string) mux.MiddlewareFunc {
	var constraint *semver.Constraints
	if minVersion != "" {
		c, err := semver.NewConstraint(">= " + minVersion)
		if err != nil {
			logger.Error("invalid minimum app version, check disabled", slog.String("min", minVersion), slog.Any("err", err))
		} else {
			constraint = c
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if constraint == nil {
				next.ServeHTTP(w, r)
				return
			}
			raw := r.Header.Get(AppVersionHeader)
			if raw == "" {
				raw = r.URL.Query().Get("app_version")
			}
			v, err := semver.NewVersion(strings.TrimSpace(raw))
			if err != nil || !constraint.Check(v) {
				writeJSON(w, errorResponse{Error: fmt.Sprintf("app version %q is no longer supported, update to %s or later", raw, minVersion)}, http.StatusUpgradeRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// keyedLimiter hands out one token bucket per key.
type keyedLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newKeyedLimiter(perMinute, burst int) *keyedLimiter {
	if perMinute <= 0 {
		perMinute = 10
	}
	if burst <= 0 {
		burst = 5
	}
	return &keyedLimiter{
		limiters: map[string]*rate.Limiter{},
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
	}
}

func (k *keyedLimiter) allow(key string) bool {
	k.mu.Lock()
	l, ok := k.limiters[key]
	if !ok {
		l = rate.NewLimiter(k.limit, k.burst)
		k.limiters[key] = l
	}
	k.mu.Unlock()
	return l.Allow()
}
