package models

import "time"

// Waypoint is a named pickup or dropoff point on a ride. Coordinates are
// always float64 here; the store layer normalizes any string-typed values
// before they reach the rest of the system.
type Waypoint struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// RideSnapshot is the ride data denormalized onto a tracking session at
// read time. The ride itself lives in the trip backend; we only ever read it.
type RideSnapshot struct {
	ID            string
	FromCity      string
	ToCity        string
	DepartureDate string
	DepartureTime string // HH:MM:SS as stored
	Pickup        *Waypoint
	Dropoff       *Waypoint
}

// TrackingSession is a time-boxed, token-addressable capability granting
// read access to one ride's live location feed. Sessions are created and
// deactivated by the trip backend; this service never mutates them.
type TrackingSession struct {
	ID        string
	Token     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	Ride      *RideSnapshot
}

// CoordinateSample is one driver-reported position.
type CoordinateSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// CoordinateReport is the Kafka payload carrying one sample for a session.
type CoordinateReport struct {
	SessionID string    `json:"session_id"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

type SessionInfo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	LastUpdated time.Time `json:"last_updated"`
}

type RideInfo struct {
	From            string    `json:"from"`
	To              string    `json:"to"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	PickupLocation  *Waypoint `json:"pickup_location,omitempty"`
	DropoffLocation *Waypoint `json:"dropoff_location,omitempty"`
}

// TrackingReadModel is the assembled response served to polling clients.
// It is ephemeral and never persisted.
type TrackingReadModel struct {
	Session        SessionInfo        `json:"session"`
	Ride           RideInfo           `json:"ride"`
	Coordinates    []CoordinateSample `json:"coordinates"`
	LastCoordinate *CoordinateSample  `json:"last_coordinate,omitempty"`
}

// PaymentIntentRequest mirrors what the mobile app posts when booking seats.
type PaymentIntentRequest struct {
	Amount      int64  `json:"amount"` // minor units
	Currency    string `json:"currency"`
	Email       string `json:"email"`
	RideID      string `json:"ride_id"`
	Seats       int    `json:"seats"`
	Description string `json:"description"`
}

type PaymentIntentResponse struct {
	ClientSecret    string `json:"clientSecret"`
	PaymentIntentID string `json:"paymentIntentId"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}

type WaitlistSignup struct {
	Email string `json:"email"`
}
