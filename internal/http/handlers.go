package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	stripe "github.com/stripe/stripe-go/v74"

	"github.com/example/ribit-api/internal/models"
	"github.com/example/ribit-api/internal/observability"
	"github.com/example/ribit-api/internal/payments"
	"github.com/example/ribit-api/internal/storage"
	"github.com/example/ribit-api/internal/stream"
	"github.com/example/ribit-api/internal/tracking"
	"github.com/example/ribit-api/internal/waitlist"
)

// streamInterval is how often the websocket stream re-assembles and
// pushes the read model absent a fresh-sample hint.
const streamInterval = 15 * time.Second

// PaymentGateway creates hosted payment intents; *payments.StripeClient
// in production, fakes in tests.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req models.PaymentIntentRequest) (*models.PaymentIntentResponse, error)
}

// SamplePublisher queues driver-reported samples for the consumer.
type SamplePublisher interface {
	PublishSample(report models.CoordinateReport) error
}

// Deps carries everything the server needs, constructed once at startup
// and injected here rather than re-instantiated per module.
type Deps struct {
	Logger    *slog.Logger
	Assembler *tracking.Assembler
	Waitlist  *waitlist.Service
	Payments  PaymentGateway
	Producer  SamplePublisher
	Hub       *stream.Hub
	Version   string
}

type Server struct {
	logger    *slog.Logger
	assembler *tracking.Assembler
	waitlist  *waitlist.Service
	payments  PaymentGateway
	producer  SamplePublisher
	hub       *stream.Hub
	version   string
	mux       *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Hub == nil {
		d.Hub = stream.NewHub()
	}
	if d.Version == "" {
		d.Version = "1.0.0"
	}
	s := &Server{
		logger:    d.Logger,
		assembler: d.Assembler,
		waitlist:  d.Waitlist,
		payments:  d.Payments,
		producer:  d.Producer,
		hub:       d.Hub,
		version:   d.Version,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/tracking/{token}", s.handleTracking).Methods(http.MethodGet)
	s.mux.HandleFunc("/tracking/{token}", s.handleTrackingOptions).Methods(http.MethodOptions)
	s.mux.HandleFunc("/tracking", s.handleTracking).Methods(http.MethodGet)
	s.mux.HandleFunc("/tracking/{token}/ws", s.handleTrackingStream).Methods(http.MethodGet)
	s.mux.HandleFunc("/api/v1/payments/intent", s.handleCreatePaymentIntent).Methods(http.MethodPost)
	s.mux.HandleFunc("/api/v1/payments/intent", s.handlePaymentOptions).Methods(http.MethodOptions)
	s.mux.HandleFunc("/api/v1/waitlist", s.handleWaitlistSignup).Methods(http.MethodPost)
	s.mux.HandleFunc("/internal/tracking/{session_id}/locations", s.handleReportLocation).Methods(http.MethodPost)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleTracking(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	rm, err := s.assembler.TrackingData(r.Context(), token)
	if err != nil {
		s.writeTrackingError(w, err)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeJSON(w, http.StatusOK, rm)
}

func (s *Server) handleTrackingOptions(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	w.WriteHeader(http.StatusOK)
}

var streamUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true }, // tracking links are shared cross-origin
}

// handleTrackingStream is the subscription upgrade of the polling
// contract: same read-model payload, same error taxonomy, pushed on an
// interval or when the ingest path signals a fresh sample.
func (s *Server) handleTrackingStream(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	rm, err := s.assembler.TrackingData(r.Context(), token)
	if err != nil {
		s.writeTrackingError(w, err)
		return
	}
	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sessionID := rm.Session.ID
	sub := s.hub.Add(sessionID, conn)
	defer func() {
		s.hub.Remove(sessionID, sub)
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	if err := sub.Send(rm); err != nil {
		return
	}

	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-sub.Refresh():
		}
		rm, err := s.assembler.TrackingData(ctx, token)
		if err != nil {
			// terminal for this viewer: deliver the error shape once, then end
			_ = sub.Send(map[string]string{"error": trackingErrorMessage(err)})
			return
		}
		if err := sub.Send(rm); err != nil {
			return
		}
	}
}

type paymentError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (s *Server) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentIntentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, paymentError{Error: "invalid_request", Message: "request body must be valid JSON"})
		return
	}
	if req.Amount == 0 {
		req.Amount = 1099
	}
	resp, err := s.payments.CreateIntent(r.Context(), req)
	if err != nil {
		s.writePaymentError(w, err)
		return
	}
	observability.PaymentIntentsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writePaymentError(w http.ResponseWriter, err error) {
	var stripeErr *stripe.Error
	switch {
	case errors.Is(err, payments.ErrAmountTooSmall):
		observability.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, paymentError{Error: "Invalid amount", Message: "Amount must be at least $0.50"})
	case errors.Is(err, payments.ErrMissingEmail):
		observability.PaymentIntentsTotal.WithLabelValues("invalid").Inc()
		writeJSON(w, http.StatusBadRequest, paymentError{Error: "Missing email", Message: "Customer email is required"})
	case errors.As(err, &stripeErr):
		observability.PaymentIntentsTotal.WithLabelValues("stripe_error").Inc()
		writeJSON(w, http.StatusBadRequest, paymentError{Error: "stripe_error", Message: stripeErr.Msg})
	default:
		observability.PaymentIntentsTotal.WithLabelValues("error").Inc()
		s.logger.Error("payment intent creation failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, paymentError{Error: "server_error", Message: "An unexpected error occurred while processing your payment"})
	}
}

func (s *Server) handlePaymentOptions(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleWaitlistSignup(w http.ResponseWriter, r *http.Request) {
	var req models.WaitlistSignup
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.WaitlistSignupsTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	err := s.waitlist.Signup(r.Context(), req.Email)
	switch {
	case err == nil:
		observability.WaitlistSignupsTotal.WithLabelValues("ok").Inc()
		writeJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
	case errors.Is(err, storage.ErrDuplicateEmail):
		observability.WaitlistSignupsTotal.WithLabelValues("duplicate").Inc()
		writeError(w, http.StatusConflict, "This email is already on our waitlist!")
	case errors.Is(err, waitlist.ErrInvalidEmail), errors.Is(err, waitlist.ErrNotEduEmail):
		observability.WaitlistSignupsTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		observability.WaitlistSignupsTotal.WithLabelValues("error").Inc()
		s.logger.Error("waitlist signup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}

// handleReportLocation accepts a sample from the driver app, queues it for
// the persistence consumer and wakes any live stream viewers.
func (s *Server) handleReportLocation(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["session_id"]
	var sample models.CoordinateSample
	if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON")
		return
	}
	if sample.Latitude < -90 || sample.Latitude > 90 || sample.Longitude < -180 || sample.Longitude > 180 {
		writeError(w, http.StatusBadRequest, "coordinates out of range")
		return
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now().UTC()
	}
	report := models.CoordinateReport{
		SessionID: sessionID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Timestamp: sample.Timestamp,
	}
	if s.producer != nil {
		if err := s.producer.PublishSample(report); err != nil {
			s.logger.Error("sample publish failed", "session_id", sessionID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to queue location")
			return
		}
	}
	s.hub.Notify(sessionID)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"service":   "ribit-api",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   s.version,
	})
}

func (s *Server) writeTrackingError(w http.ResponseWriter, err error) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	writeError(w, trackingErrorStatus(err), trackingErrorMessage(err))
}

func trackingErrorStatus(err error) int {
	switch {
	case errors.Is(err, tracking.ErrMissingToken):
		return http.StatusBadRequest
	case errors.Is(err, tracking.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, tracking.ErrSessionExpired):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func trackingErrorMessage(err error) string {
	switch {
	case errors.Is(err, tracking.ErrMissingToken):
		return "Tracking token is required"
	case errors.Is(err, tracking.ErrSessionNotFound):
		return "Tracking session not found or expired"
	case errors.Is(err, tracking.ErrSessionExpired):
		return "Tracking session has expired"
	default:
		return "Failed to fetch tracking session"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
