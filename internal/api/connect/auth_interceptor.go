package connect

import (
	"context"
	"crypto/subtle"
	"strings"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
)

// AuthorizationHeader carries the control token as a bearer credential.
const AuthorizationHeader = "Authorization"

var errInvalidToken = errors.New("invalid control token")

// AuthInterceptor validates the bearer control token on every timer service
// procedure, unary and streaming.
type AuthInterceptor struct {
	token string
}

// NewAuthInterceptor creates an interceptor that accepts only token.
func NewAuthInterceptor(token string) *AuthInterceptor {
	return &AuthInterceptor{token: token}
}

var _ connect.Interceptor = (*AuthInterceptor)(nil)

// WrapUnary implements connect.Interceptor.
func (i *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if err := i.check(req.Header().Get(AuthorizationHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (i *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (i *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(AuthorizationHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *AuthInterceptor) check(header string) error {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	if i.token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, errInvalidToken)
	}
	return nil
}
