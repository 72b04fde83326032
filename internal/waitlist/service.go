package waitlist

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrInvalidEmail = errors.New("please enter a valid email address")
	ErrNotEduEmail  = errors.New("please use your university (.edu) email address")
)

// Store is the subset of persistence the waitlist needs. Duplicate inserts
// surface as the store's duplicate-email error.
type Store interface {
	AddWaitlistSignup(ctx context.Context, email string) error
}

// Service validates and records early-access signups. The product is
// university-only, so non-.edu addresses are rejected before touching the
// store.
type Service struct {
	store    Store
	validate *validator.Validate
}

func NewService(store Store) *Service {
	return &Service{store: store, validate: validator.New()}
}

func (s *Service) Signup(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := s.validate.Var(email, "required,email"); err != nil {
		return ErrInvalidEmail
	}
	if !strings.HasSuffix(email, ".edu") {
		return ErrNotEduEmail
	}
	return s.store.AddWaitlistSignup(ctx, email)
}
