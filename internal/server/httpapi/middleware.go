package httpapi

import (
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/netx"
	"github.com/dmitrijs2005/credport/internal/observability"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/ratelimit"
)

// Authenticate admits requests carrying a valid access token and stores its
// payload in the request context. When allowDemo is set, a request with no
// token but an X-Demo-User header is admitted as that holder.
func Authenticate(authority *auth.Authority, allowDemo bool, logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)

			if token == "" {
				demoUser := strings.TrimSpace(r.Header.Get(common.DemoUserHeaderName))
				if allowDemo && demoUser != "" {
					logger.Warn(r.Context(), "demo user bypass", "username", demoUser, "path", r.URL.Path)
					payload := &auth.TokenPayload{
						Username: demoUser,
						Role:     auth.RoleHolder,
						Type:     auth.TokenTypeAccess,
						App:      authority.App(),
					}
					next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), payload)))
					return
				}
				writeError(w, http.StatusUnauthorized, "missing authorization token")
				return
			}

			payload, err := authority.VerifyAccess(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, common.ErrUnauthenticated.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.NewContext(r.Context(), payload)))
		})
	}
}

// RateLimit admits at most maxRequests requests per window per client ip. scope
// separates the counters of differently limited route groups. X-Forwarded-For
// is only honoured when the direct peer is one of proxies.
func RateLimit(limiter *ratelimit.Limiter, proxies *netx.TrustedProxies, scope string, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, retryAfter := limiter.Allow(scope+":"+clientIP(r, proxies), maxRequests, window)
			if !allowed {
				observability.RateLimited.WithLabelValues(scope).Inc()
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, http.StatusTooManyRequests, common.ErrRateLimited.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.statusCode = status
	r.ResponseWriter.WriteHeader(status)
}

func RequestLogging(logger logging.Logger, proxies *netx.TrustedProxies, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logger.Info(r.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", clientIP(r, proxies),
		)
	})
}

func Recover(logger logging.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureMessage("panic in request")
				})

				logger.Error(r.Context(), "panic recovered",
					"path", r.URL.Path,
					"method", r.Method,
					"panic", rec,
				)

				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
