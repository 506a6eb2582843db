package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the access
// token on inbound requests.
const AccessTokenHeaderName = "access_token"

// AuthorizationHeaderName is the HTTP header (and gRPC metadata key) that
// carries "Bearer <token>".
const AuthorizationHeaderName = "authorization"

// DemoUserHeaderName is honoured only when the legacy auth bypass is allowed,
// which is never the case in production mode.
const DemoUserHeaderName = "X-Demo-User"
