package connect

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/identity"
	"github.com/osa030/flowshift/internal/infra/supabase"
)

const (
	// AuthorizationHeader carries the caller's access token as "Bearer <token>".
	AuthorizationHeader = "Authorization"

	defaultIdentityTTL = time.Minute
)

// Authenticator resolves an access token to its user.
type Authenticator interface {
	GetUser(ctx context.Context, accessToken string) (*supabase.User, error)
}

type callerKey struct{}

type caller struct {
	identity identity.Identity
	tokens   oauth2.TokenSource
}

// CallerFrom returns the identity and token source stored by the auth interceptor.
// Requests without credentials are guests with no token source.
func CallerFrom(ctx context.Context) (identity.Identity, oauth2.TokenSource) {
	if c, ok := ctx.Value(callerKey{}).(caller); ok {
		return c.identity, c.tokens
	}
	return identity.Guest(), nil
}

func withCaller(ctx context.Context, id identity.Identity, tokens oauth2.TokenSource) context.Context {
	return context.WithValue(ctx, callerKey{}, caller{identity: id, tokens: tokens})
}

type cachedUser struct {
	identity identity.Identity
	expires  time.Time
}

// AuthInterceptor resolves bearer tokens to identities for unary and streaming handlers.
// Without an Authenticator every caller is a guest and tokens are ignored.
type AuthInterceptor struct {
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu    sync.Mutex
	cache map[string]cachedUser
}

var _ connect.Interceptor = (*AuthInterceptor)(nil)

// NewAuthInterceptor creates an auth interceptor. auth may be nil.
func NewAuthInterceptor(auth Authenticator) *AuthInterceptor {
	return &AuthInterceptor{
		auth:  auth,
		ttl:   defaultIdentityTTL,
		now:   time.Now,
		cache: make(map[string]cachedUser),
	}
}

// WrapUnary implements connect.Interceptor.
func (a *AuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		ctx, err := a.authenticate(ctx, req.Header())
		if err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (a *AuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler implements connect.Interceptor.
func (a *AuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		ctx, err := a.authenticate(ctx, conn.RequestHeader())
		if err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

// Resolve returns the identity for an access token.
// Without an Authenticator every token resolves to a guest.
func (a *AuthInterceptor) Resolve(ctx context.Context, token string) (identity.Identity, error) {
	if a.auth == nil {
		return identity.Guest(), nil
	}
	now := a.now()

	a.mu.Lock()
	if cached, ok := a.cache[token]; ok && now.Before(cached.expires) {
		a.mu.Unlock()
		return cached.identity, nil
	}
	a.mu.Unlock()

	user, err := a.auth.GetUser(ctx, token)
	if err != nil {
		return identity.Identity{}, err
	}
	id := user.Identity()

	a.mu.Lock()
	for k, v := range a.cache {
		if !now.Before(v.expires) {
			delete(a.cache, k)
		}
	}
	a.cache[token] = cachedUser{identity: id, expires: now.Add(a.ttl)}
	a.mu.Unlock()

	return id, nil
}

func (a *AuthInterceptor) authenticate(ctx context.Context, header http.Header) (context.Context, error) {
	token := bearerToken(header)
	if token == "" || a.auth == nil {
		return withCaller(ctx, identity.Guest(), nil), nil
	}

	id, err := a.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, supabase.ErrUnauthorized) {
			return nil, connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or expired access token"))
		}
		zlog.Warn().Err(err).Msg("auth: failed to resolve access token")
		return nil, connect.NewError(connect.CodeUnavailable, errors.New("authentication backend unavailable"))
	}
	return withCaller(ctx, id, supabase.StaticTokenSource(token)), nil
}

func bearerToken(header http.Header) string {
	value := header.Get(AuthorizationHeader)
	if len(value) < 7 || !strings.EqualFold(value[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(value[7:])
}

// BearerInterceptor attaches the caller's access token to outgoing requests.
type BearerInterceptor struct {
	tokens oauth2.TokenSource
}

var _ connect.Interceptor = (*BearerInterceptor)(nil)

// NewBearerInterceptor creates a client interceptor. A nil source sends no credentials.
func NewBearerInterceptor(tokens oauth2.TokenSource) *BearerInterceptor {
	return &BearerInterceptor{tokens: tokens}
}

// WrapUnary implements connect.Interceptor.
func (b *BearerInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			if err := b.apply(req.Header()); err != nil {
				return nil, err
			}
		}
		return next(ctx, req)
	}
}

// WrapStreamingClient implements connect.Interceptor.
func (b *BearerInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return func(ctx context.Context, spec connect.Spec) connect.StreamingClientConn {
		conn := next(ctx, spec)
		if err := b.apply(conn.RequestHeader()); err != nil {
			zlog.Warn().Err(err).Msg("auth: sending stream without credentials")
		}
		return conn
	}
}

// WrapStreamingHandler implements connect.Interceptor.
func (b *BearerInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return next
}

func (b *BearerInterceptor) apply(header http.Header) error {
	if b.tokens == nil {
		return nil
	}
	tok, err := b.tokens.Token()
	if err != nil {
		return connect.NewError(connect.CodeUnauthenticated, errors.Wrap(err, "failed to obtain access token"))
	}
	header.Set(AuthorizationHeader, "Bearer "+tok.AccessToken)
	return nil
}
