package grpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/netx"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/ratelimit"
)

// GRPCServer is the RPC edge. Every call except health checks and
// reflection passes the rate limiter; every call except those and
// Tokens/Verify must carry a valid access token.
type GRPCServer struct {
	address         string
	authority       *auth.Authority
	limiter         *ratelimit.Limiter
	rateLimitMax    int
	rateLimitWindow time.Duration
	proxies         *netx.TrustedProxies
	logger          logging.Logger
	health          *health.Server
}

type Option func(*GRPCServer)

// WithTrustedProxies lets peers in p forward the client address in
// x-forwarded-for metadata.
func WithTrustedProxies(p *netx.TrustedProxies) Option {
	return func(s *GRPCServer) { s.proxies = p }
}

func NewGRPCServer(a string, l logging.Logger, authority *auth.Authority, limiter *ratelimit.Limiter, rateLimitMax int, rateLimitWindow time.Duration, opts ...Option) (*GRPCServer, error) {
	s := &GRPCServer{
		address:         a,
		logger:          l.With("module", "grpc_server"),
		authority:       authority,
		limiter:         limiter,
		rateLimitMax:    rateLimitMax,
		rateLimitWindow: rateLimitWindow,
		health:          health.NewServer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run listens on the configured address until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.rateLimitInterceptor, s.accessTokenInterceptor))

	healthpb.RegisterHealthServer(srv, s.health)
	srv.RegisterService(&tokenServiceDesc, &tokenServer{authority: s.authority})
	reflection.Register(srv)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
