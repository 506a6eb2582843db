package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/server/auth"
)

// The token service is described by hand over well-known protobuf types so
// other backends can call it without sharing generated code.
const (
	TokenServiceName = "credport.auth.v1.Tokens"
	VerifyMethod     = "/" + TokenServiceName + "/Verify"
	WhoAmIMethod     = "/" + TokenServiceName + "/WhoAmI"
)

// TokenServer answers token questions for other backends.
//
// Verify takes the token to check in its request and only passes the rate
// limiter. WhoAmI describes the caller's own access token and requires one.
type TokenServer interface {
	Verify(ctx context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error)
	WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error)
}

type tokenServer struct {
	authority *auth.Authority
}

func (t *tokenServer) Verify(_ context.Context, token *wrapperspb.StringValue) (*structpb.Struct, error) {
	res := t.authority.Verify(token.GetValue())
	out := map[string]any{"valid": res.Valid}
	if res.Valid {
		out["app"] = res.App
		out["user"] = map[string]any{
			"id":       res.User.ID,
			"username": res.User.Username,
			"role":     res.User.Role,
		}
	}
	return structpb.NewStruct(out)
}

func (t *tokenServer) WhoAmI(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	payload, ok := auth.FromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, common.ErrUnauthenticated.Error())
	}
	return structpb.NewStruct(map[string]any{
		"id":       payload.UserID,
		"username": payload.Username,
		"role":     payload.Role,
		"app":      payload.App,
	})
}

var tokenServiceDesc = grpc.ServiceDesc{
	ServiceName: TokenServiceName,
	HandlerType: (*TokenServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Verify", Handler: verifyHandler},
		{MethodName: "WhoAmI", Handler: whoAmIHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func verifyHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServer).Verify(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: VerifyMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServer).Verify(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func whoAmIHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TokenServer).WhoAmI(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: WhoAmIMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(TokenServer).WhoAmI(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
