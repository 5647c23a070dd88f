package auth

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"quiz-runner/internal/domain"
)

// Provider hands out the current session. Implementations must be safe for concurrent use.
type Provider interface {
	Session(ctx context.Context) (domain.Session, error)
}

// Refresher exchanges an expiring session for a fresh one.
type Refresher func(ctx context.Context, current domain.Session) (domain.Session, error)

// StaticProvider always returns the same session, failing once it has expired.
type StaticProvider struct {
	session domain.Session
	now     func() time.Time
}

func NewStaticProvider(session domain.Session) *StaticProvider {
	return &StaticProvider{session: session, now: time.Now}
}

func (p *StaticProvider) Session(_ context.Context) (domain.Session, error) {
	if p.session.Expired(p.now()) {
		return domain.Session{}, domain.ErrSessionExpired
	}
	return p.session, nil
}

// TokenProvider derives the session from a bearer JWT. The signature is not
// verified here; the backend is the verifier of record.
type TokenProvider struct {
	refresh Refresher
	skew    time.Duration
	now     func() time.Time

	mu      sync.Mutex
	session domain.Session
}

// NewTokenProvider parses token once. refresh may be nil, in which case an
// expired token yields domain.ErrSessionExpired.
func NewTokenProvider(token string, skew time.Duration, refresh Refresher) (*TokenProvider, error) {
	session, err := ParseToken(token)
	if err != nil {
		return nil, err
	}
	return &TokenProvider{session: session, skew: skew, refresh: refresh, now: time.Now}, nil
}

func (p *TokenProvider) Session(ctx context.Context) (domain.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.session.ExpiresAt.IsZero() || now.Add(p.skew).Before(p.session.ExpiresAt) {
		return p.session, nil
	}
	if p.refresh == nil {
		if p.session.Expired(now) {
			return domain.Session{}, domain.ErrSessionExpired
		}
		return p.session, nil
	}
	fresh, err := p.refresh(ctx, p.session)
	if err != nil {
		if p.session.Expired(now) {
			return domain.Session{}, fmt.Errorf("%w: refresh: %v", domain.ErrSessionExpired, err)
		}
		// still inside the skew window, keep serving the old token
		return p.session, nil
	}
	p.session = fresh
	return fresh, nil
}

// ParseToken reads user id, role and expiry from a JWT without verifying it.
// The user id is taken from "user_id", then "id", then "sub".
func ParseToken(token string) (domain.Session, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return domain.Session{}, fmt.Errorf("parse token: %w", err)
	}

	session := domain.Session{Token: token}
	for _, key := range []string{"user_id", "id", "sub"} {
		if id, ok := claimInt(claims[key]); ok {
			session.UserID = id
			break
		}
	}
	if session.UserID == 0 {
		return domain.Session{}, fmt.Errorf("parse token: no user id claim")
	}
	if role, ok := claims["role"].(string); ok {
		session.Role = role
	}
	if exp, ok := claimInt(claims["exp"]); ok {
		session.ExpiresAt = time.Unix(exp, 0)
	}
	return session, nil
}

func claimInt(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		return int64(t), true
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
