package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/netx"
	"github.com/dmitrijs2005/credport/internal/observability"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/ratelimit"
	"github.com/dmitrijs2005/credport/internal/server/reputation"
	"github.com/dmitrijs2005/credport/internal/server/services"
)

// Deps is everything the router wires together.
type Deps struct {
	Users           *services.UserService
	Authority       *auth.Authority
	Reputation      *reputation.Service
	Limiter         *ratelimit.Limiter
	RateLimitMax    int
	RateLimitWindow time.Duration
	AllowDemoUser   bool
	// nil trusts no proxy: clients are keyed by their direct address
	TrustedProxies *netx.TrustedProxies
	Logger         logging.Logger
}

func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	logger = logger.With("module", "http")

	h := NewHandler(d.Users, d.Authority, d.Reputation, logger)
	limit := RateLimit(d.Limiter, d.TrustedProxies, "auth", d.RateLimitMax, d.RateLimitWindow)
	authn := Authenticate(d.Authority, d.AllowDemoUser, logger)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", limit(http.HandlerFunc(h.Register)))
	mux.Handle("POST /auth/login", limit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/refresh", limit(http.HandlerFunc(h.Refresh)))
	mux.HandleFunc("POST /auth/logout", h.Logout)
	mux.HandleFunc("POST /auth/verify", h.Verify)
	mux.Handle("GET /auth/me", authn(http.HandlerFunc(h.Me)))
	mux.Handle("GET /reputation/me", authn(http.HandlerFunc(h.ReputationMe)))
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", observability.MetricsHandler())

	return Recover(logger, RequestLogging(logger, d.TrustedProxies, mux))
}
