package tracking

import (
	"context"
	"log/slog"
	"strings"

	"github.com/example/ribit-api/internal/models"
	"github.com/example/ribit-api/internal/observability"
)

// CoordinateWindow is the fixed trailing-window size for the route trail.
// It is a protocol constant, not caller-configurable, to keep responses
// small under frequent polling.
const CoordinateWindow = 10

// ReadModelCache is an optional read-through cache in front of the two
// store calls, keyed by token. A short TTL absorbs polling herds.
type ReadModelCache interface {
	GetReadModel(ctx context.Context, token string) (*models.TrackingReadModel, bool)
	SetReadModel(ctx context.Context, token string, rm *models.TrackingReadModel)
}

// Assembler merges session and coordinate data into the client-facing
// read model. Cache is optional; Logger may be nil in tests.
type Assembler struct {
	Resolver    *Resolver
	Coordinates CoordinateStore
	Cache       ReadModelCache
	Logger      *slog.Logger
}

// TrackingData resolves token and assembles the read model. Resolver
// errors propagate verbatim; a coordinate fetch failure is absorbed and
// the read proceeds with an empty trail, since the session and ride
// metadata matter more to the viewer than the live pin.
func (a *Assembler) TrackingData(ctx context.Context, token string) (*models.TrackingReadModel, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	if a.Cache != nil {
		// a cached model must never outlive its session: past expiry we
		// fall through so the resolver returns the terminal error
		if rm, ok := a.Cache.GetReadModel(ctx, token); ok && !a.Resolver.now().After(rm.Session.ExpiresAt) {
			observability.TrackingReadsTotal.WithLabelValues("cache_hit").Inc()
			return rm, nil
		}
	}
	sess, err := a.Resolver.ResolveSession(ctx, token)
	if err != nil {
		observability.TrackingReadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	coords, err := a.Coordinates.RecentCoordinates(ctx, sess.ID, CoordinateWindow)
	if err != nil {
		observability.CoordinateFetchFailures.Inc()
		if a.Logger != nil {
			a.Logger.Warn("coordinate fetch failed", "session_id", sess.ID, "error", err)
		}
		coords = nil
	}
	rm := assemble(sess, coords)
	if a.Cache != nil {
		a.Cache.SetReadModel(ctx, token, rm)
	}
	observability.TrackingReadsTotal.WithLabelValues("ok").Inc()
	return rm, nil
}

func assemble(sess *models.TrackingSession, coords []models.CoordinateSample) *models.TrackingReadModel {
	ride := models.RideInfo{From: "Unknown", To: "Unknown"}
	if r := sess.Ride; r != nil {
		if r.FromCity != "" {
			ride.From = r.FromCity
		}
		if r.ToCity != "" {
			ride.To = r.ToCity
		}
		ride.Date = r.DepartureDate
		ride.Time = truncateClock(r.DepartureTime)
		ride.PickupLocation = r.Pickup
		ride.DropoffLocation = r.Dropoff
	}
	if coords == nil {
		coords = []models.CoordinateSample{}
	}
	rm := &models.TrackingReadModel{
		Session: models.SessionInfo{
			ID:          sess.ID,
			CreatedAt:   sess.CreatedAt,
			ExpiresAt:   sess.ExpiresAt,
			LastUpdated: sess.UpdatedAt,
		},
		Ride:        ride,
		Coordinates: coords,
	}
	if len(coords) > 0 {
		first := coords[0]
		rm.LastCoordinate = &first
	}
	return rm
}

// truncateClock reduces a stored HH:MM:SS departure time to HH:MM.
func truncateClock(v string) string {
	if len(v) > 5 {
		return v[:5]
	}
	return v
}
