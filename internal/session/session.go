// Package session tracks the signed-in user. It decodes the access token's
// claims for display and expiry checks only; the API verifies signatures.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expensetracker/internal/apierr"
	"expensetracker/internal/log"
	"expensetracker/internal/store"
)

var (
	ErrNotSignedIn  = errors.New("not signed in")
	ErrNoRefresher  = errors.New("token refresh not configured")
	ErrTokenExpired = errors.New("access token expired")
)

// Claims are the user-facing fields of the access token.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	ExpiresAt     time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// State is an immutable session snapshot.
type State struct {
	Status  store.Status
	Token   string
	Claims  *Claims
	Errors  []string
	Failure *store.Failure
}

// SignedIn reports whether the session holds a usable token.
func (s State) SignedIn() bool {
	return s.Status == store.StatusSuccess && s.Token != ""
}

// Refresher exchanges the current token for a new one.
type Refresher interface {
	Refresh(ctx context.Context, token string) (string, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, token string) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

type Listener func(ctx context.Context, s State)

// Session is the auth store. It also serves as the HTTP client's token
// source.
type Session struct {
	mu        sync.Mutex
	state     State
	listeners []Listener
	refresher Refresher
	parser    *jwt.Parser
	now       func() time.Time
	logger    *log.Logger
}

type Option func(*Session)

func WithRefresher(r Refresher) Option {
	return func(s *Session) { s.refresher = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func New(logger *log.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = log.Discard()
	}
	s := &Session{
		parser: jwt.NewParser(),
		now:    time.Now,
		logger: logger.WithComponent(log.ComponentSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Subscribe(fn Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SignIn starts a session from an access token.
func (s *Session) SignIn(ctx context.Context, token string) error {
	s.commit(ctx, func(st *State) {
		st.Status = store.StatusLoading
		st.Errors = nil
		st.Failure = nil
	})

	claims, err := s.decode(token)
	if err != nil {
		apiErr := &apierr.Error{Kind: apierr.KindAuth, Problem: &apierr.Problem{Detail: signInMessage(err)}, Err: err}
		s.commit(ctx, func(st *State) {
			*st = State{
				Status:  store.StatusError,
				Errors:  apierr.Messages(apiErr),
				Failure: &store.Failure{Err: apiErr},
			}
		})
		s.logger.WarnContext(ctx, "Sign-in rejected", log.FieldOperation, log.OpSignIn, log.FieldError, err)
		return apiErr
	}

	s.commit(ctx, func(st *State) {
		*st = State{Status: store.StatusSuccess, Token: token, Claims: claims}
	})
	s.logger.InfoContext(ctx, "Signed in", log.FieldOperation, log.OpSignIn, log.FieldSubject, claims.Subject)
	return nil
}

// SignOut clears the token and returns the session to Idle.
func (s *Session) SignOut(ctx context.Context) {
	s.commit(ctx, func(st *State) { *st = State{} })
	s.logger.InfoContext(ctx, "Signed out", log.FieldOperation, log.OpSignOut)
}

// Token returns the current access token. An expired token is refreshed
// first when a Refresher is configured.
func (s *Session) Token(ctx context.Context) (string, error) {
	st := s.Snapshot()
	if !st.SignedIn() {
		return "", ErrNotSignedIn
	}
	if st.Claims != nil && !st.Claims.ExpiresAt.IsZero() && !s.now().Before(st.Claims.ExpiresAt) {
		if s.refresher == nil {
			return st.Token, nil
		}
		return s.Refresh(ctx)
	}
	return st.Token, nil
}

// Refresh obtains a new token. Any failure signs the session out.
func (s *Session) Refresh(ctx context.Context) (string, error) {
	st := s.Snapshot()
	if !st.SignedIn() {
		return "", ErrNotSignedIn
	}
	if s.refresher == nil {
		s.SignOut(ctx)
		return "", ErrNoRefresher
	}

	token, err := s.refresher.Refresh(ctx, st.Token)
	if err == nil {
		var claims *Claims
		if claims, err = s.decode(token); err == nil {
			s.commit(ctx, func(st *State) {
				st.Token = token
				st.Claims = claims
			})
			s.logger.DebugContext(ctx, "Token refreshed", log.FieldOperation, log.OpRefresh)
			return token, nil
		}
	}

	s.logger.WarnContext(ctx, "Token refresh failed", log.FieldOperation, log.OpRefresh, log.FieldError, err)
	s.SignOut(ctx)
	return "", fmt.Errorf("refresh token: %w", err)
}

func (s *Session) decode(token string) (*Claims, error) {
	var tc tokenClaims
	if _, _, err := s.parser.ParseUnverified(token, &tc); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	c := &Claims{Subject: tc.Subject, Email: tc.Email, EmailVerified: tc.EmailVerified}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
		if !s.now().Before(c.ExpiresAt) {
			return nil, ErrTokenExpired
		}
	}
	return c, nil
}

func signInMessage(err error) string {
	if errors.Is(err, ErrTokenExpired) {
		return "Your session has expired. Please sign in again."
	}
	return "Invalid access token"
}

func (s *Session) commit(ctx context.Context, mutate func(st *State)) {
	s.mu.Lock()
	next := s.state
	mutate(&next)
	s.state = next
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ctx, next)
	}
}
