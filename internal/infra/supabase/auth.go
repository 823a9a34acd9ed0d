package supabase

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/flowshift/internal/domain/identity"
)

// ErrConfirmationRequired is returned by SignUp when the account must be confirmed by email first.
var ErrConfirmationRequired = errors.New("email confirmation required")

// User represents an auth user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Identity converts the user into an authenticated identity.
func (u User) Identity() identity.Identity {
	return identity.User(u.ID, u.Email)
}

// Session represents an issued token pair.
type Session struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    int64     `json:"expires_at"`
	RefreshToken string    `json:"refresh_token"`
	User         User      `json:"user"`
	IssuedAt     time.Time `json:"-"`
}

// Token converts the session into an oauth2 token.
func (s *Session) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  s.AccessToken,
		TokenType:    s.TokenType,
		RefreshToken: s.RefreshToken,
	}
	switch {
	case s.ExpiresAt > 0:
		tok.Expiry = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		issued := s.IssuedAt
		if issued.IsZero() {
			issued = time.Now()
		}
		tok.Expiry = issued.Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return tok
}

type credentialsBody struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token"`
}

// SignIn exchanges an email and password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	session, err := c.token(ctx, "password", credentialsBody{Email: email, Password: password})
	if err != nil {
		return nil, errors.Wrap(err, "sign in failed")
	}
	zlog.Info().Msgf("supabase: signed in: user=%s", session.User.ID)
	return session, nil
}

// SignUp creates an account. When the project requires email confirmation
// no session is issued and ErrConfirmationRequired is returned with the new user.
func (c *Client) SignUp(ctx context.Context, email, password string) (*Session, error) {
	if email == "" || password == "" {
		return nil, errors.New("email and password are required")
	}

	var raw struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   credentialsBody{Email: email, Password: password},
	}, &raw)
	if err != nil {
		return nil, errors.Wrap(err, "sign up failed")
	}

	session := raw.Session
	session.IssuedAt = time.Now()
	if session.User.ID == "" {
		session.User = User{ID: raw.ID, Email: raw.Email}
	}
	if session.AccessToken == "" {
		zlog.Info().Msgf("supabase: signed up, confirmation pending: user=%s", session.User.ID)
		return &session, ErrConfirmationRequired
	}
	zlog.Info().Msgf("supabase: signed up: user=%s", session.User.ID)
	return &session, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if refreshToken == "" {
		return nil, errors.Mark(errors.New("refresh token is required"), ErrUnauthorized)
	}
	session, err := c.token(ctx, "refresh_token", refreshBody{RefreshToken: refreshToken})
	if err != nil {
		return nil, errors.Wrap(err, "token refresh failed")
	}
	zlog.Debug().Msgf("supabase: token refreshed: user=%s", session.User.ID)
	return session, nil
}

// GetUser resolves an access token to its user.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	if accessToken == "" {
		return nil, errors.Mark(errors.New("access token is required"), ErrUnauthorized)
	}
	var user User
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodGet,
		path:   "/auth/v1/user",
		bearer: accessToken,
	}, &user)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get user")
	}
	if user.ID == "" {
		return nil, errors.Mark(errors.New("token has no user"), ErrUnauthorized)
	}
	return &user, nil
}

// SignOut revokes the session behind an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodPost,
		path:   "/auth/v1/logout",
		bearer: accessToken,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "sign out failed")
	}
	return nil
}

func (c *Client) token(ctx context.Context, grantType string, body any) (*Session, error) {
	var session Session
	err := c.do(ctx, c.httpClient, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  url.Values{"grant_type": []string{grantType}},
		body:   body,
	}, &session)
	if err != nil {
		return nil, err
	}
	if session.AccessToken == "" {
		return nil, errors.New("no access token in response")
	}
	session.IssuedAt = time.Now()
	return &session, nil
}

// refreshingSource refreshes expired tokens through the auth API.
type refreshingSource struct {
	client    *Client
	mu        sync.Mutex
	refresh   string
	onRefresh func(*Session)
}

func (s *refreshingSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.client.Refresh(context.Background(), s.refresh)
	if err != nil {
		return nil, err
	}
	s.refresh = session.RefreshToken
	if s.onRefresh != nil {
		s.onRefresh(session)
	}
	return session.Token(), nil
}

// TokenSource returns a source that reuses tok until it expires and then refreshes it.
// onRefresh, when set, receives every rotated session so it can be stored.
func (c *Client) TokenSource(tok *oauth2.Token, onRefresh func(*Session)) oauth2.TokenSource {
	return oauth2.ReuseTokenSource(tok, &refreshingSource{
		client:    c,
		refresh:   tok.RefreshToken,
		onRefresh: onRefresh,
	})
}

// ServiceTokenSource returns a source for the service role key, or nil when none is configured.
func (c *Client) ServiceTokenSource() oauth2.TokenSource {
	if c.serviceKey == "" {
		return nil
	}
	return StaticTokenSource(c.serviceKey)
}

// StaticTokenSource wraps an access token received from a caller; it is never refreshed.
func StaticTokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
}
