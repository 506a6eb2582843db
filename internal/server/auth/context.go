package auth

import "context"

type ctxKey string

const payloadKey ctxKey = "tokenPayload"

// NewContext returns a copy of ctx carrying the verified token payload.
func NewContext(ctx context.Context, p *TokenPayload) context.Context {
	return context.WithValue(ctx, payloadKey, p)
}

// FromContext returns the payload stored by NewContext.
func FromContext(ctx context.Context) (*TokenPayload, bool) {
	p, ok := ctx.Value(payloadKey).(*TokenPayload)
	return p, ok && p != nil
}
