// Package client implements the viewer side of the tracking protocol: a
// polling loop over the public read endpoint with the loading/refreshing/
// error state machine the tracking page renders from.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/example/ribit-api/internal/models"
)

// DefaultInterval matches the server's freshness expectations; far larger
// than a round trip, so fetches normally never overlap.
const DefaultInterval = 30 * time.Second

type State int

const (
	StateIdle State = iota
	StateLoading
	StateSuccess
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Snapshot is the viewer-visible state. Data survives later errors: the
// last good model keeps rendering while Err takes precedence until a
// retry succeeds.
type Snapshot struct {
	State       State
	Refreshing  bool
	Data        *models.TrackingReadModel
	Err         error
	LastUpdated time.Time
}

// Fetcher retrieves the read model for a token; *HTTPFetcher in
// production, fakes in tests.
type Fetcher interface {
	TrackingData(ctx context.Context, token string) (*models.TrackingReadModel, error)
}

// Poller drives the fetch loop: one immediate load on Start, then
// interval-driven refreshes that keep the last good render, plus manual
// Refresh. Stopping (or cancelling the Start context) releases the timer;
// no orphaned ticks outlive a viewer.
type Poller struct {
	Fetcher  Fetcher
	Token    string
	Interval time.Duration
	Logger   *slog.Logger
	OnUpdate func(Snapshot)

	mu        sync.Mutex
	snap      Snapshot
	seq       uint64
	cancel    context.CancelFunc
	refreshCh chan struct{}
}

func (p *Poller) Start(ctx context.Context) error {
	if p.Fetcher == nil || p.Token == "" {
		return errors.New("poller needs a fetcher and a token")
	}
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return errors.New("poller already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.refreshCh = make(chan struct{}, 1)
	p.snap = Snapshot{State: StateIdle}
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	p.mu.Unlock()

	go p.run(ctx, interval)
	return nil
}

func (p *Poller) run(ctx context.Context, interval time.Duration) {
	p.fetch(ctx, false)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetch(ctx, true)
		case <-p.refreshCh:
			p.fetch(ctx, true)
		}
	}
}

// Stop cancels the loop and timer. Safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

// Refresh requests an immediate refetch with refresh semantics (the last
// good render stays up). Coalesces if one is already pending.
func (p *Poller) Refresh() {
	p.mu.Lock()
	ch := p.refreshCh
	p.mu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *Poller) fetch(ctx context.Context, refresh bool) {
	p.mu.Lock()
	p.seq++
	seq := p.seq
	if refresh {
		p.snap.Refreshing = true
	} else {
		p.snap.State = StateLoading
	}
	snap := p.snap
	p.mu.Unlock()
	p.notify(snap)

	data, err := p.Fetcher.TrackingData(ctx, p.Token)

	p.mu.Lock()
	if seq != p.seq {
		// a newer fetch finished first; this response is stale
		p.mu.Unlock()
		return
	}
	p.snap.Refreshing = false
	if err != nil {
		p.snap.State = StateError
		p.snap.Err = err
		if p.Logger != nil {
			p.Logger.Warn("tracking fetch failed", "error", err)
		}
	} else {
		p.snap.State = StateSuccess
		p.snap.Err = nil
		p.snap.Data = data
		p.snap.LastUpdated = time.Now()
	}
	snap = p.snap
	p.mu.Unlock()
	p.notify(snap)
}

func (p *Poller) notify(snap Snapshot) {
	if p.OnUpdate != nil {
		p.OnUpdate(snap)
	}
}

// HTTPFetcher calls GET {base}/tracking/{token} on the public API.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (f *HTTPFetcher) TrackingData(ctx context.Context, token string) (*models.TrackingReadModel, error) {
	u := f.BaseURL + "/tracking/" + url.PathEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
			return nil, errors.New(body.Error)
		}
		return nil, fmt.Errorf("tracking request failed with status %d", resp.StatusCode)
	}
	var rm models.TrackingReadModel
	if err := json.NewDecoder(resp.Body).Decode(&rm); err != nil {
		return nil, err
	}
	return &rm, nil
}
