package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"expensetracker/internal/apierr"
	"expensetracker/internal/store"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func signToken(t *testing.T, subject string, expires time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":            subject,
		"email":          subject + "@example.com",
		"email_verified": true,
		"exp":            expires.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestSession(opts ...Option) *Session {
	return New(nil, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
}

func TestSignIn(t *testing.T) {
	tests := []struct {
		name       string
		token      func(t *testing.T) string
		wantStatus store.Status
		wantMsg    string
	}{
		{
			name:       "valid token",
			token:      func(t *testing.T) string { return signToken(t, "user-1", testNow.Add(time.Hour)) },
			wantStatus: store.StatusSuccess,
		},
		{
			name:       "expired token",
			token:      func(t *testing.T) string { return signToken(t, "user-1", testNow.Add(-time.Minute)) },
			wantStatus: store.StatusError,
			wantMsg:    "Your session has expired. Please sign in again.",
		},
		{
			name:       "garbage token",
			token:      func(t *testing.T) string { return "not-a-jwt" },
			wantStatus: store.StatusError,
			wantMsg:    "Invalid access token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession()
			var seen []store.Status
			s.Subscribe(func(ctx context.Context, st State) { seen = append(seen, st.Status) })

			err := s.SignIn(context.Background(), tt.token(t))
			snap := s.Snapshot()
			if snap.Status != tt.wantStatus {
				t.Fatalf("status = %v, want %v", snap.Status, tt.wantStatus)
			}
			if len(seen) != 2 || seen[0] != store.StatusLoading {
				t.Fatalf("transitions = %v", seen)
			}

			if tt.wantMsg == "" {
				if err != nil {
					t.Fatalf("SignIn: %v", err)
				}
				if snap.Claims.Subject != "user-1" || snap.Claims.Email != "user-1@example.com" || !snap.Claims.EmailVerified {
					t.Fatalf("claims = %+v", snap.Claims)
				}
				return
			}
			if !apierr.Is(err, apierr.KindAuth) {
				t.Fatalf("SignIn = %v, want auth error", err)
			}
			if len(snap.Errors) != 1 || snap.Errors[0] != tt.wantMsg || snap.Token != "" {
				t.Fatalf("errors=%q token=%q", snap.Errors, snap.Token)
			}
		})
	}
}

func TestSignOut(t *testing.T) {
	s := newTestSession()
	ctx := context.Background()
	if err := s.SignIn(ctx, signToken(t, "u", testNow.Add(time.Hour))); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	s.SignOut(ctx)

	snap := s.Snapshot()
	if snap.Status != store.StatusIdle || snap.Token != "" || snap.SignedIn() {
		t.Fatalf("unexpected state %+v", snap)
	}
	if _, err := s.Token(ctx); !errors.Is(err, ErrNotSignedIn) {
		t.Fatalf("Token after sign-out = %v", err)
	}
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("success replaces token", func(t *testing.T) {
		fresh := signToken(t, "u", testNow.Add(2*time.Hour))
		s := newTestSession(WithRefresher(RefresherFunc(func(ctx context.Context, old string) (string, error) {
			return fresh, nil
		})))
		s.SignIn(ctx, signToken(t, "u", testNow.Add(time.Hour)))

		got, err := s.Refresh(ctx)
		if err != nil || got != fresh {
			t.Fatalf("Refresh = %q, %v", got, err)
		}
		if tok, _ := s.Token(ctx); tok != fresh {
			t.Fatal("Token should return the refreshed token")
		}
		if s.Snapshot().Status != store.StatusSuccess {
			t.Fatal("refresh must keep the session signed in")
		}
	})

	t.Run("failure signs out", func(t *testing.T) {
		s := newTestSession(WithRefresher(RefresherFunc(func(ctx context.Context, old string) (string, error) {
			return "", errors.New("denied")
		})))
		s.SignIn(ctx, signToken(t, "u", testNow.Add(time.Hour)))

		if _, err := s.Refresh(ctx); err == nil {
			t.Fatal("expected error")
		}
		if s.Snapshot().SignedIn() {
			t.Fatal("failed refresh must sign out")
		}
	})

	t.Run("no refresher signs out", func(t *testing.T) {
		s := newTestSession()
		s.SignIn(ctx, signToken(t, "u", testNow.Add(time.Hour)))

		if _, err := s.Refresh(ctx); !errors.Is(err, ErrNoRefresher) {
			t.Fatalf("Refresh = %v", err)
		}
		if s.Snapshot().Status != store.StatusIdle {
			t.Fatal("expected Idle after failed refresh")
		}
	})
}

func TestTokenRefreshesWhenExpired(t *testing.T) {
	ctx := context.Background()
	now := testNow
	fresh := signToken(t, "u", testNow.Add(3*time.Hour))
	refreshed := 0

	s := New(nil,
		WithClock(func() time.Time { return now }),
		WithRefresher(RefresherFunc(func(ctx context.Context, old string) (string, error) {
			refreshed++
			return fresh, nil
		})))
	if err := s.SignIn(ctx, signToken(t, "u", testNow.Add(time.Hour))); err != nil {
		t.Fatalf("SignIn: %v", err)
	}

	now = testNow.Add(2 * time.Hour)
	tok, err := s.Token(ctx)
	if err != nil || tok != fresh || refreshed != 1 {
		t.Fatalf("Token = %q, %v (refreshed %d)", tok, err, refreshed)
	}
}
