package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	stripe "github.com/stripe/stripe-go/v74"

	"github.com/example/ribit-api/internal/models"
	"github.com/example/ribit-api/internal/payments"
	"github.com/example/ribit-api/internal/storage"
	"github.com/example/ribit-api/internal/tracking"
	"github.com/example/ribit-api/internal/waitlist"
)

func testNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

type fakeGateway struct {
	resp *models.PaymentIntentResponse
	err  error
}

func (f *fakeGateway) CreateIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResponse, error) {
	if _, err := payments.BuildIntentParams(req, testNow()); err != nil {
		return nil, err
	}
	return f.resp, f.err
}

type fakeProducer struct {
	reports []models.CoordinateReport
	err     error
}

func (f *fakeProducer) PublishSample(report models.CoordinateReport) error {
	if f.err != nil {
		return f.err
	}
	f.reports = append(f.reports, report)
	return nil
}

type failingSessions struct{}

func (failingSessions) SessionByToken(ctx context.Context, token string) (*models.TrackingSession, error) {
	return nil, errors.New("connection refused")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedStore() *storage.MemoryStore {
	store := storage.NewMemoryStore()
	store.PutSession(&models.TrackingSession{
		ID:        "sess-1",
		Token:     "abc123",
		IsActive:  true,
		CreatedAt: testNow().Add(-time.Hour),
		UpdatedAt: testNow().Add(-time.Minute),
		ExpiresAt: testNow().Add(time.Hour),
		Ride: &models.RideSnapshot{
			ID:            "ride-1",
			FromCity:      "Gainesville",
			ToCity:        "Orlando",
			DepartureDate: "2025-06-01",
			DepartureTime: "09:00:00",
		},
	})
	store.PutSession(&models.TrackingSession{
		ID:        "sess-2",
		Token:     "expired",
		IsActive:  true,
		CreatedAt: testNow().Add(-48 * time.Hour),
		UpdatedAt: testNow().Add(-25 * time.Hour),
		ExpiresAt: testNow().Add(-24 * time.Hour),
	})
	for i := 0; i < 3; i++ {
		_ = store.InsertCoordinate(context.Background(), "sess-1", models.CoordinateSample{
			Latitude:  29.6 + float64(i)*0.01,
			Longitude: -82.3,
			Timestamp: testNow().Add(-time.Duration(i) * time.Minute),
		})
	}
	return store
}

func newTestServer(t *testing.T, store *storage.MemoryStore, gateway PaymentGateway, producer SamplePublisher) *Server {
	t.Helper()
	assembler := &tracking.Assembler{
		Resolver:    tracking.NewResolver(store, testNow),
		Coordinates: store,
		Logger:      quietLogger(),
	}
	return NewServer(Deps{
		Logger:    quietLogger(),
		Assembler: assembler,
		Waitlist:  waitlist.NewService(store),
		Payments:  gateway,
		Producer:  producer,
	})
}

func doJSON(t *testing.T, srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestTrackingEndpointSuccess(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodGet, "/tracking/abc123", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected CORS header, got %q", got)
	}
	var rm models.TrackingReadModel
	if err := json.Unmarshal(w.Body.Bytes(), &rm); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if rm.Ride.From != "Gainesville" || rm.Ride.Time != "09:00" {
		t.Fatalf("unexpected ride: %+v", rm.Ride)
	}
	if len(rm.Coordinates) != 3 || rm.LastCoordinate == nil || *rm.LastCoordinate != rm.Coordinates[0] {
		t.Fatalf("unexpected coordinates: %+v", rm)
	}
	if !strings.Contains(w.Body.String(), `"last_coordinate"`) {
		t.Fatalf("expected snake_case wire keys: %s", w.Body.String())
	}
}

func TestTrackingEndpointNotFound(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodGet, "/tracking/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Tracking session not found or expired") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestTrackingEndpointExpired(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodGet, "/tracking/expired", nil)
	if w.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Tracking session has expired") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestTrackingEndpointBackendFailure(t *testing.T) {
	store := seedStore()
	assembler := &tracking.Assembler{
		Resolver:    tracking.NewResolver(failingSessions{}, testNow),
		Coordinates: store,
		Logger:      quietLogger(),
	}
	srv := NewServer(Deps{
		Logger:    quietLogger(),
		Assembler: assembler,
		Waitlist:  waitlist.NewService(store),
		Payments:  &fakeGateway{},
	})
	w := doJSON(t, srv, http.MethodGet, "/tracking/abc123", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Failed to fetch tracking session") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestTrackingOptionsCORS(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodOptions, "/tracking/abc123", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" ||
		w.Header().Get("Access-Control-Allow-Methods") != "GET, OPTIONS" ||
		!strings.Contains(w.Header().Get("Access-Control-Allow-Headers"), "Content-Type") {
		t.Fatalf("unexpected CORS headers: %v", w.Header())
	}
}

func TestWaitlistSignupAndDuplicate(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/waitlist", models.WaitlistSignup{Email: "frog@ufl.edu"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodPost, "/api/v1/waitlist", models.WaitlistSignup{Email: "frog@ufl.edu"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on duplicate, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already on our waitlist") {
		t.Fatalf("duplicate should be distinguishable: %s", w.Body.String())
	}
}

func TestWaitlistRejectsNonEdu(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/waitlist", models.WaitlistSignup{Email: "frog@gmail.com"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCreatePaymentIntent(t *testing.T) {
	gw := &fakeGateway{resp: &models.PaymentIntentResponse{ClientSecret: "pi_secret", PaymentIntentID: "pi_1", Amount: 1099, Currency: "usd"}}
	srv := newTestServer(t, seedStore(), gw, nil)

	w := doJSON(t, srv, http.MethodPost, "/api/v1/payments/intent",
		models.PaymentIntentRequest{Amount: 1099, Email: "frog@ufl.edu", Seats: 2})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"clientSecret":"pi_secret"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestCreatePaymentIntentAmountTooSmall(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/payments/intent",
		models.PaymentIntentRequest{Amount: 10, Email: "frog@ufl.edu"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "at least $0.50") {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}

func TestCreatePaymentIntentStripeError(t *testing.T) {
	gw := &fakeGateway{err: &stripe.Error{Msg: "Your card was declined."}}
	srv := newTestServer(t, seedStore(), gw, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/payments/intent",
		models.PaymentIntentRequest{Amount: 1099, Email: "frog@ufl.edu"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Your card was declined.") {
		t.Fatalf("expected gateway message surfaced: %s", w.Body.String())
	}
}

func TestCreatePaymentIntentServerError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("network down")}
	srv := newTestServer(t, seedStore(), gw, nil)
	w := doJSON(t, srv, http.MethodPost, "/api/v1/payments/intent",
		models.PaymentIntentRequest{Amount: 1099, Email: "frog@ufl.edu"})
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestReportLocationQueuesSample(t *testing.T) {
	producer := &fakeProducer{}
	srv := newTestServer(t, seedStore(), &fakeGateway{}, producer)
	w := doJSON(t, srv, http.MethodPost, "/internal/tracking/sess-1/locations",
		models.CoordinateSample{Latitude: 29.65, Longitude: -82.32})
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(producer.reports) != 1 || producer.reports[0].SessionID != "sess-1" {
		t.Fatalf("unexpected reports: %+v", producer.reports)
	}
	if producer.reports[0].Timestamp.IsZero() {
		t.Fatal("expected timestamp defaulted")
	}
}

func TestReportLocationRejectsOutOfRange(t *testing.T) {
	producer := &fakeProducer{}
	srv := newTestServer(t, seedStore(), &fakeGateway{}, producer)
	w := doJSON(t, srv, http.MethodPost, "/internal/tracking/sess-1/locations",
		models.CoordinateSample{Latitude: 123.0, Longitude: 0})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if len(producer.reports) != 0 {
		t.Fatal("sample should not be queued")
	}
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, seedStore(), &fakeGateway{}, nil)
	w := doJSON(t, srv, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
}
