package storage

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/example/ribit-api/internal/models"
)

// ErrDuplicateEmail marks a waitlist insert that hit the unique constraint.
// Callers surface it as an "already signed up" condition rather than a
// generic failure.
var ErrDuplicateEmail = errors.New("email already on the waitlist")

// Store is the persistence surface shared by the API server and the
// coordinate consumer. Session and coordinate rows are written by the trip
// backend and the consumer respectively; the read path never mutates them.
type Store interface {
	SessionByToken(ctx context.Context, token string) (*models.TrackingSession, error)
	RecentCoordinates(ctx context.Context, sessionID string, limit int) ([]models.CoordinateSample, error)
	InsertCoordinate(ctx context.Context, sessionID string, c models.CoordinateSample) error
	AddWaitlistSignup(ctx context.Context, email string) error
}

// MemoryStore backs local runs and tests when PG_DSN is not set.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.TrackingSession // keyed by token
	coords   map[string][]models.CoordinateSample
	emails   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*models.TrackingSession),
		coords:   make(map[string][]models.CoordinateSample),
		emails:   make(map[string]struct{}),
	}
}

// PutSession seeds a session; used by tests and local fixtures.
func (m *MemoryStore) PutSession(s *models.TrackingSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
}

func (m *MemoryStore) SessionByToken(ctx context.Context, token string) (*models.TrackingSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	if !ok || !s.IsActive {
		return nil, nil
	}
	return s, nil
}

func (m *MemoryStore) RecentCoordinates(ctx context.Context, sessionID string, limit int) ([]models.CoordinateSample, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.coords[sessionID]
	out := make([]models.CoordinateSample, len(all))
	copy(out, all)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) InsertCoordinate(ctx context.Context, sessionID string, c models.CoordinateSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coords[sessionID] = append(m.coords[sessionID], c)
	return nil
}

func (m *MemoryStore) AddWaitlistSignup(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[email]; ok {
		return ErrDuplicateEmail
	}
	m.emails[email] = struct{}{}
	return nil
}
