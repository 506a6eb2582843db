package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/observability"
	"github.com/dmitrijs2005/credport/internal/server/auth"
)

var publicMethodPrefixes = []string{
	"/grpc.health.v1.Health/",
	"/grpc.reflection.",
}

// tokenExemptMethods are rate limited but carry the token to check in the
// request instead of the metadata.
var tokenExemptMethods = map[string]bool{
	VerifyMethod: true,
}

func isPublicMethod(fullMethod string) bool {
	for _, p := range publicMethodPrefixes {
		if strings.HasPrefix(fullMethod, p) {
			return true
		}
	}
	return false
}

func (s *GRPCServer) rateLimitInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if isPublicMethod(info.FullMethod) {
		return handler(ctx, req)
	}

	key := "grpc:" + s.clientIP(ctx)

	if !s.limiter.CheckRateLimit(key, s.rateLimitMax, s.rateLimitWindow) {
		observability.RateLimited.WithLabelValues("grpc").Inc()
		return nil, status.Error(codes.ResourceExhausted, common.ErrRateLimited.Error())
	}

	return handler(ctx, req)
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if isPublicMethod(info.FullMethod) || tokenExemptMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	accessToken := tokenFromMetadata(ctx)
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	payload, err := s.authority.VerifyAccess(accessToken)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, common.ErrUnauthenticated.Error())
	}

	return handler(auth.NewContext(ctx, payload), req)
}

// clientIP keys a call by the peer host. x-forwarded-for metadata is only
// read when the peer is a trusted proxy.
func (s *GRPCServer) clientIP(ctx context.Context) string {
	remote := ""
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		remote = p.Addr.String()
	}
	forwardedFor := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get("x-forwarded-for"); len(values) > 0 {
			forwardedFor = strings.Join(values, ",")
		}
	}
	return s.proxies.ClientIP(remote, forwardedFor)
}

// tokenFromMetadata accepts either an access_token entry or an
// "authorization: Bearer ..." entry.
func tokenFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	if values := md.Get(common.AuthorizationHeaderName); len(values) > 0 {
		parts := strings.SplitN(values[0], " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return ""
}
