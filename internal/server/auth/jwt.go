// Package auth is the token authority of credport: password hashing, the
// JWT codec, process-local revocation and the issue/verify/rotate/revoke
// operations every handler relies on.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Codec errors. The Authority never lets them reach a caller; they are
// normalized to common.ErrUnauthenticated.
var (
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenExpired     = errors.New("token expired")
	ErrMalformedToken   = errors.New("malformed token")
	ErrWrongTokenType   = errors.New("wrong token type")
	ErrEmptySecret      = errors.New("empty signing secret")
)

// signingMethod is the only algorithm accepted on verification.
var signingMethod = jwt.SigningMethodHS256

// TokenPayload is the identity carried inside a token.
type TokenPayload struct {
	UserID    int64     `json:"userId"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Type      string    `json:"type"`
	App       string    `json:"app"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claims is the wire form of TokenPayload. The random jti keeps two tokens
// minted for the same user in the same second distinct.
type Claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Type     string `json:"type"`
	App      string `json:"app"`
}

func (c *Claims) payload() *TokenPayload {
	p := &TokenPayload{
		UserID:   c.UserID,
		Username: c.Username,
		Role:     c.Role,
		Type:     c.Type,
		App:      c.App,
	}
	if c.IssuedAt != nil {
		p.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		p.ExpiresAt = c.ExpiresAt.Time
	}
	return p
}

// Codec signs and verifies HS256 tokens. The clock is injectable so expiry
// can be tested without sleeping.
type Codec struct {
	now func() time.Time
}

func NewCodec(now func() time.Time) *Codec {
	if now == nil {
		now = time.Now
	}
	return &Codec{now: now}
}

// Sign encodes p with an expiry of now+ttl. p.IssuedAt and p.ExpiresAt are
// ignored.
func (c *Codec) Sign(p TokenPayload, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrEmptySecret
	}
	now := c.now()
	token := jwt.NewWithClaims(signingMethod, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(p.UserID, 10),
			Issuer:    p.App,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   p.UserID,
		Username: p.Username,
		Role:     p.Role,
		Type:     p.Type,
		App:      p.App,
	})
	return token.SignedString(secret)
}

// Verify checks signature, algorithm, expiry and token kind.
func (c *Codec) Verify(tokenString string, secret []byte, kind string) (*TokenPayload, error) {
	claims, err := c.parse(tokenString, secret, jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if claims.Type != kind {
		return nil, ErrWrongTokenType
	}
	return claims.payload(), nil
}

// DecodeExpiry returns the expiry of a correctly signed token, expired or
// not. It must only be used to size revocation retention, never to
// authorize.
func (c *Codec) DecodeExpiry(tokenString string, secret []byte) (time.Time, bool) {
	claims, err := c.parse(tokenString, secret, jwt.WithoutClaimsValidation())
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func (c *Codec) parse(tokenString string, secret []byte, extra ...jwt.ParserOption) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithTimeFunc(c.now),
	}, extra...)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidSignature
	}
}
