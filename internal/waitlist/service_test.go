package waitlist

import (
	"context"
	"errors"
	"testing"

	"github.com/example/ribit-api/internal/storage"
)

type recordingStore struct {
	emails []string
	err    error
}

func (r *recordingStore) AddWaitlistSignup(ctx context.Context, email string) error {
	if r.err != nil {
		return r.err
	}
	r.emails = append(r.emails, email)
	return nil
}

func TestSignupNormalizesEmail(t *testing.T) {
	store := &recordingStore{}
	s := NewService(store)
	if err := s.Signup(context.Background(), "  Frog@UFL.edu "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.emails) != 1 || store.emails[0] != "frog@ufl.edu" {
		t.Fatalf("expected normalized email, got %v", store.emails)
	}
}

func TestSignupRejectsInvalidEmail(t *testing.T) {
	s := NewService(&recordingStore{})
	if err := s.Signup(context.Background(), "not-an-email"); !errors.Is(err, ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
}

func TestSignupRejectsNonEdu(t *testing.T) {
	store := &recordingStore{}
	s := NewService(store)
	if err := s.Signup(context.Background(), "frog@gmail.com"); !errors.Is(err, ErrNotEduEmail) {
		t.Fatalf("expected ErrNotEduEmail, got %v", err)
	}
	if len(store.emails) != 0 {
		t.Fatal("store should not be touched on validation failure")
	}
}

func TestSignupSurfacesDuplicate(t *testing.T) {
	s := NewService(&recordingStore{err: storage.ErrDuplicateEmail})
	err := s.Signup(context.Background(), "frog@ufl.edu")
	if !errors.Is(err, storage.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate condition, got %v", err)
	}
}
