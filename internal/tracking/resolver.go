package tracking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/ribit-api/internal/models"
)

// SessionStore resolves a public token to its active session row, joined
// with the denormalized ride snapshot in one round trip. Implementations
// return (nil, nil) when no active session matches.
type SessionStore interface {
	SessionByToken(ctx context.Context, token string) (*models.TrackingSession, error)
}

// CoordinateStore reads the recent location samples for a session,
// ordered newest first and capped at limit rows.
type CoordinateStore interface {
	RecentCoordinates(ctx context.Context, sessionID string, limit int) ([]models.CoordinateSample, error)
}

// Resolver maps a tracking token to a viewable session. Expiry is checked
// here against the injected clock rather than in SQL so the semantics stay
// testable independent of the store's clock.
type Resolver struct {
	sessions SessionStore
	now      func() time.Time
}

func NewResolver(sessions SessionStore, now func() time.Time) *Resolver {
	if now == nil {
		now = time.Now
	}
	return &Resolver{sessions: sessions, now: now}
}

// ResolveSession returns the session for token, or one of the taxonomy
// errors. A token that never existed and one whose session was deactivated
// are reported identically, so an untrusted token holder cannot probe
// which tokens ever existed.
func (r *Resolver) ResolveSession(ctx context.Context, token string) (*models.TrackingSession, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	sess, err := r.sessions.SessionByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	if r.now().After(sess.ExpiresAt) {
		return nil, ErrSessionExpired
	}
	return sess, nil
}
