package storage

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/example/ribit-api/internal/models"
)

// queryTimeout bounds every store round trip; the protocol itself does not
// prescribe one, but a hung backend must not pin a polling request forever.
const queryTimeout = 10 * time.Second

// uniqueViolation is the Postgres class 23 code for a unique constraint hit.
const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromDB wraps an existing handle; tests use this with a
// mock driver.
func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionByTokenSQL = `
SELECT s.id, s.session_token, s.is_active, s.created_at, s.updated_at, s.expires_at,
       r.id, r.departure_date::text, r.departure_time::text,
       fc.name, tc.name,
       pp.id, pp.name, pp.address, pp.latitude::text, pp.longitude::text,
       dp.id, dp.name, dp.address, dp.latitude::text, dp.longitude::text
FROM live_tracking_sessions s
LEFT JOIN rides r ON r.id = s.ride_id
LEFT JOIN cities fc ON fc.id = r.from_city_id
LEFT JOIN cities tc ON tc.id = r.to_city_id
LEFT JOIN city_points pp ON pp.id = r.pickup_location_id
LEFT JOIN city_points dp ON dp.id = r.dropoff_location_id
WHERE s.session_token = $1 AND s.is_active = TRUE`

// SessionByToken joins the session with its ride, city names and waypoints
// in a single round trip. Returns (nil, nil) when no active session matches.
func (p *PostgresStore) SessionByToken(ctx context.Context, token string) (*models.TrackingSession, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var (
		sess                         models.TrackingSession
		rideID, depDate, depTime     sql.NullString
		fromCity, toCity             sql.NullString
		puID, puName, puAddr         sql.NullString
		puLat, puLon                 sql.NullString
		doID, doName, doAddr         sql.NullString
		doLat, doLon                 sql.NullString
	)
	err := p.db.QueryRowContext(ctx, sessionByTokenSQL, token).Scan(
		&sess.ID, &sess.Token, &sess.IsActive, &sess.CreatedAt, &sess.UpdatedAt, &sess.ExpiresAt,
		&rideID, &depDate, &depTime,
		&fromCity, &toCity,
		&puID, &puName, &puAddr, &puLat, &puLon,
		&doID, &doName, &doAddr, &doLat, &doLon,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rideID.Valid {
		sess.Ride = &models.RideSnapshot{
			ID:            rideID.String,
			FromCity:      fromCity.String,
			ToCity:        toCity.String,
			DepartureDate: depDate.String,
			DepartureTime: depTime.String,
			Pickup:        waypointFromColumns(puID, puName, puAddr, puLat, puLon),
			Dropoff:       waypointFromColumns(doID, doName, doAddr, doLat, doLon),
		}
	}
	return &sess, nil
}

// waypointFromColumns normalizes the string-typed latitude/longitude the
// schema stores into float64 at this boundary; string-typed coordinates
// never travel past the store.
func waypointFromColumns(id, name, addr, lat, lon sql.NullString) *models.Waypoint {
	if !id.Valid {
		return nil
	}
	return &models.Waypoint{
		ID:        id.String,
		Name:      name.String,
		Address:   addr.String,
		Latitude:  parseCoord(lat.String),
		Longitude: parseCoord(lon.String),
	}
}

func parseCoord(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

const recentCoordinatesSQL = `
SELECT latitude, longitude, timestamp
FROM tracking_coordinates
WHERE session_id = $1
ORDER BY timestamp DESC
LIMIT $2`

func (p *PostgresStore) RecentCoordinates(ctx context.Context, sessionID string, limit int) ([]models.CoordinateSample, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, recentCoordinatesSQL, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.CoordinateSample, 0, limit)
	for rows.Next() {
		var c models.CoordinateSample
		if err := rows.Scan(&c.Latitude, &c.Longitude, &c.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresStore) InsertCoordinate(ctx context.Context, sessionID string, c models.CoordinateSample) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx,
		`INSERT INTO tracking_coordinates(session_id, latitude, longitude, timestamp) VALUES ($1, $2, $3, $4)`,
		sessionID, c.Latitude, c.Longitude, c.Timestamp)
	return err
}

func (p *PostgresStore) AddWaitlistSignup(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := p.db.ExecContext(ctx, `INSERT INTO waitlist_signup(email) VALUES ($1)`, email)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
		return ErrDuplicateEmail
	}
	return err
}
