package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/observability"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// Roles known to the platform.
const (
	RoleAdmin     = "admin"
	RoleIssuer    = "issuer"
	RoleHolder    = "holder"
	RoleRecruiter = "recruiter"
)

// User is the identity snapshot a token is minted for. It is borrowed from
// the identity store and never modified here.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// TokenPair is returned to the caller and never stored.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// VerifyResult is the cross-service answer to "is this access token good?".
type VerifyResult struct {
	Valid bool   `json:"valid"`
	User  *User  `json:"user,omitempty"`
	App   string `json:"app,omitempty"`
}

// Options configures an Authority. Zero TTLs fall back to the defaults.
type Options struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	App           string
	Now           func() time.Time
	Logger        logging.Logger
}

// Authority issues, verifies, rotates and revokes bearer tokens. Tokens are
// self-contained; the only server-side state is the two revocation ledgers,
// which are local to this process.
type Authority struct {
	codec          *Codec
	accessSecret   []byte
	refreshSecret  []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	app            string
	accessRevoked  *Ledger
	refreshRevoked *Ledger
	logger         logging.Logger

	// serializes Rotate so a refresh token cannot be spent twice
	rotateMu sync.Mutex
}

func NewAuthority(o Options) (*Authority, error) {
	if o.AccessSecret == "" || o.RefreshSecret == "" {
		return nil, fmt.Errorf("%w: token secrets must not be empty", common.ErrConfiguration)
	}
	if o.AccessSecret == o.RefreshSecret {
		return nil, fmt.Errorf("%w: access and refresh secrets must differ", common.ErrConfiguration)
	}
	if o.AccessTTL <= 0 {
		o.AccessTTL = DefaultAccessTTL
	}
	if o.RefreshTTL <= 0 {
		o.RefreshTTL = DefaultRefreshTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Logger == nil {
		o.Logger = logging.NewNopLogger()
	}

	a := &Authority{
		codec:         NewCodec(o.Now),
		accessSecret:  []byte(o.AccessSecret),
		refreshSecret: []byte(o.RefreshSecret),
		accessTTL:     o.AccessTTL,
		refreshTTL:    o.RefreshTTL,
		app:           o.App,
		logger:        o.Logger.With("module", "auth"),
	}
	a.accessRevoked = NewLedger(func(t string) (time.Time, bool) {
		return a.codec.DecodeExpiry(t, a.accessSecret)
	}, o.Now)
	a.refreshRevoked = NewLedger(func(t string) (time.Time, bool) {
		return a.codec.DecodeExpiry(t, a.refreshSecret)
	}, o.Now)

	return a, nil
}

// App is the issuing app name written into every token.
func (a *Authority) App() string { return a.app }

// Issue mints an access and a refresh token carrying the same identity.
func (a *Authority) Issue(user User) (*TokenPair, error) {
	p := TokenPayload{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		App:      a.app,
	}

	p.Type = TokenTypeAccess
	access, err := a.codec.Sign(p, a.accessSecret, a.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	p.Type = TokenTypeRefresh
	refresh, err := a.codec.Sign(p, a.refreshSecret, a.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	observability.TokensIssued.WithLabelValues(a.app).Inc()

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(a.accessTTL / time.Second),
	}, nil
}

// VerifyAccess returns the payload of a valid, unrevoked access token.
// Every failure is common.ErrUnauthenticated; the reason is only logged.
func (a *Authority) VerifyAccess(token string) (*TokenPayload, error) {
	return a.verify(token, TokenTypeAccess, "verify_access")
}

func (a *Authority) verify(token, kind, operation string) (*TokenPayload, error) {
	secret, ledger := a.accessSecret, a.accessRevoked
	if kind == TokenTypeRefresh {
		secret, ledger = a.refreshSecret, a.refreshRevoked
	}

	if token == "" {
		return nil, a.reject(operation, "empty token")
	}
	if ledger.IsRevoked(token) {
		return nil, a.reject(operation, "revoked")
	}
	payload, err := a.codec.Verify(token, secret, kind)
	if err != nil {
		return nil, a.reject(operation, err.Error())
	}
	return payload, nil
}

func (a *Authority) reject(operation, reason string) error {
	observability.AuthRejections.WithLabelValues(operation).Inc()
	a.logger.Debug(context.Background(), "token rejected", "operation", operation, "reason", reason)
	return common.ErrUnauthenticated
}

// Rotate spends refreshToken and returns a new pair. A refresh token is
// single-use: it is revoked once the replacement pair has been minted, so a
// signing failure leaves the caller's old token usable.
func (a *Authority) Rotate(refreshToken string) (*TokenPair, error) {
	a.rotateMu.Lock()
	defer a.rotateMu.Unlock()

	payload, err := a.verify(refreshToken, TokenTypeRefresh, "rotate")
	if err != nil {
		return nil, err
	}

	// Email is not a claim, so the rebuilt identity carries none; the new
	// pair encodes exactly what the spent token did.
	pair, err := a.Issue(User{ID: payload.UserID, Username: payload.Username, Role: payload.Role})
	if err != nil {
		return nil, err
	}

	if a.refreshRevoked.Revoke(refreshToken) {
		observability.Revocations.WithLabelValues(TokenTypeRefresh).Inc()
	}
	return pair, nil
}

// Logout revokes whichever tokens are non-empty. Revoking an unknown,
// expired or already revoked token is a no-op.
func (a *Authority) Logout(accessToken, refreshToken string) {
	if accessToken != "" && a.accessRevoked.Revoke(accessToken) {
		observability.Revocations.WithLabelValues(TokenTypeAccess).Inc()
	}
	if refreshToken != "" && a.refreshRevoked.Revoke(refreshToken) {
		observability.Revocations.WithLabelValues(TokenTypeRefresh).Inc()
	}
}

// Verify is the cross-service side channel: any backend sharing the access
// secret can validate tokens minted here.
func (a *Authority) Verify(token string) VerifyResult {
	payload, err := a.VerifyAccess(token)
	if err != nil {
		return VerifyResult{Valid: false}
	}
	return VerifyResult{
		Valid: true,
		User:  &User{ID: payload.UserID, Username: payload.Username, Role: payload.Role},
		App:   payload.App,
	}
}

// RevokedCount reports the retained ledger sizes (access, refresh).
func (a *Authority) RevokedCount() (access, refresh int) {
	return a.accessRevoked.Len(), a.refreshRevoked.Len()
}
