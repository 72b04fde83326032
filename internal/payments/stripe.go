package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/example/ribit-api/internal/models"
)

// MinimumAmount is Stripe's floor in minor units ($0.50 for usd).
const MinimumAmount = 50

var (
	ErrAmountTooSmall = errors.New("amount must be at least $0.50")
	ErrMissingEmail   = errors.New("customer email is required")
)

// StripeClient is a thin passthrough to Stripe PaymentIntents: it shapes
// the request, creates the intent and hands the client secret back.
type StripeClient struct{}

func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// BuildIntentParams shapes the PaymentIntent request. Split out so the
// request shaping is testable without hitting Stripe.
func BuildIntentParams(req models.PaymentIntentRequest, now time.Time) (*stripe.PaymentIntentParams, error) {
	if req.Amount < MinimumAmount {
		return nil, ErrAmountTooSmall
	}
	if req.Email == "" {
		return nil, ErrMissingEmail
	}
	currency := req.Currency
	if currency == "" {
		currency = "usd"
	}
	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Ribit ride booking - %d seat(s)", req.Seats)
	}
	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.Amount),
		Currency:           stripe.String(currency),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Description:        stripe.String(description),
		ReceiptEmail:       stripe.String(req.Email),
	}
	params.AddMetadata("email", req.Email)
	params.AddMetadata("ride_id", req.RideID)
	params.AddMetadata("seats", strconv.Itoa(req.Seats))
	params.AddMetadata("platform", "ribit-mobile-app")
	params.AddMetadata("created_at", now.UTC().Format(time.RFC3339))
	return params, nil
}

// CreateIntent creates the PaymentIntent and returns the client secret the
// app needs to confirm the payment.
func (s *StripeClient) CreateIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResponse, error) {
	params, err := BuildIntentParams(req, time.Now())
	if err != nil {
		return nil, err
	}
	params.Context = ctx
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &models.PaymentIntentResponse{
		ClientSecret:    pi.ClientSecret,
		PaymentIntentID: pi.ID,
		Amount:          pi.Amount,
		Currency:        string(pi.Currency),
	}, nil
}
