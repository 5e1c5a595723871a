package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
)

// Planner resolves a route between two points.
type Planner interface {
	Plan(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error)
}

// PositionFeed is the feed surface the manager needs.
type PositionFeed interface {
	Feed
	Last() (position.Sample, bool)
	Current(ctx context.Context, opts position.Options) (position.Sample, error)
}

// VoiceControl is an Announcer that can be muted.
type VoiceControl interface {
	Announcer
	SetEnabled(enabled bool)
	Enabled() bool
}

// PathFollower is a position source that can be steered along a route,
// such as the demo simulator. A nil path parks it.
type PathFollower interface {
	SetPath(path []geo.Coordinate)
}

// StartRequest asks the manager to plan and start guidance. A nil Origin
// means the current position.
type StartRequest struct {
	Mode        route.Mode      `json:"mode"`
	Origin      *geo.Coordinate `json:"origin,omitempty"`
	Destination Destination     `json:"destination"`
}

// ManagerConfig wires a Manager. Follower and Clock are optional.
type ManagerConfig struct {
	Planner  Planner
	Feed     PositionFeed
	Voice    VoiceControl
	Follower PathFollower
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Manager owns the single navigation session of a device.
type Manager struct {
	planner  Planner
	feed     PositionFeed
	voice    VoiceControl
	follower PathFollower
	clock    func() time.Time
	logger   *zap.Logger

	// startMu serializes Start calls; mu guards the session pointer.
	startMu sync.Mutex
	mu      sync.Mutex
	session *Session

	listenersMu sync.RWMutex
	listeners   []Listener
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Manager{
		planner:  cfg.Planner,
		feed:     cfg.Feed,
		voice:    cfg.Voice,
		follower: cfg.Follower,
		clock:    cfg.Clock,
		logger:   cfg.Logger.Named("navigation"),
	}
}

// AddListener registers l for the events of every session.
func (m *Manager) AddListener(l Listener) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, l)
	m.listenersMu.Unlock()
}

// SessionEvent fans e out to the registered listeners.
func (m *Manager) SessionEvent(e Event) {
	if m.follower != nil && (e.Type == EventArrived || e.Type == EventStopped) {
		m.follower.SetPath(nil)
	}
	m.listenersMu.RLock()
	ls := m.listeners
	m.listenersMu.RUnlock()
	for _, l := range ls {
		l.SessionEvent(e)
	}
}

// Start plans a route and starts a fresh session along it.
func (m *Manager) Start(ctx context.Context, req StartRequest) (Snapshot, error) {
	if req.Destination.Coordinates == (geo.Coordinate{}) {
		return m.Snapshot(), fmt.Errorf("start navigation: %w", ErrNoDestination)
	}
	if !req.Destination.Coordinates.Valid() {
		return m.Snapshot(), fmt.Errorf("start navigation: destination %v: %w", req.Destination.Coordinates, geo.ErrInvalidCoordinate)
	}
	mode, err := route.ParseMode(string(req.Mode))
	if err != nil {
		return m.Snapshot(), fmt.Errorf("start navigation: %w", err)
	}
	m.startMu.Lock()
	defer m.startMu.Unlock()
	if m.active() {
		return m.Snapshot(), ErrAlreadyActive
	}

	origin, err := m.origin(ctx, req.Origin)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("start navigation: %w", err)
	}
	r, err := m.planner.Plan(ctx, mode, origin, req.Destination.Coordinates)
	if err != nil {
		return m.Snapshot(), fmt.Errorf("start navigation: %w", err)
	}

	s := NewSession(SessionConfig{
		Feed:      m.feed,
		Announcer: m.voice,
		Listener:  m,
		Clock:     m.clock,
		Logger:    m.logger,
	})
	if m.follower != nil {
		m.follower.SetPath(r.PathCoordinates)
	}

	// Listeners of EventStarted may read Snapshot, so the new session is
	// current before it starts. A failed start restores the previous one.
	m.mu.Lock()
	prev := m.session
	m.session = s
	m.mu.Unlock()

	snap, err := s.Start(r, req.Destination)
	if err != nil {
		m.mu.Lock()
		m.session = prev
		m.mu.Unlock()
		if m.follower != nil {
			m.follower.SetPath(nil)
		}
		return snap, err
	}
	return snap, nil
}

// Preview plans a route without starting guidance.
func (m *Manager) Preview(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error) {
	mode, err := route.ParseMode(string(mode))
	if err != nil {
		return nil, err
	}
	return m.planner.Plan(ctx, mode, origin, destination)
}

// Stop ends the active session, if any.
func (m *Manager) Stop() Snapshot {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return IdleSnapshot()
	}
	return s.Stop()
}

// Snapshot returns the state of the latest session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return IdleSnapshot()
	}
	return s.Snapshot()
}

// Route returns the latest session's route, or nil.
func (m *Manager) Route() *route.NormalizedRoute {
	return m.Snapshot().Route
}

func (m *Manager) SetVoiceEnabled(enabled bool) {
	if m.voice != nil {
		m.voice.SetEnabled(enabled)
	}
}

func (m *Manager) VoiceEnabled() bool {
	return m.voice != nil && m.voice.Enabled()
}

func (m *Manager) active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && m.session.State() == StateActive
}

func (m *Manager) origin(ctx context.Context, requested *geo.Coordinate) (geo.Coordinate, error) {
	if requested != nil {
		if !requested.Valid() {
			return geo.Coordinate{}, fmt.Errorf("origin %v: %w", *requested, geo.ErrInvalidCoordinate)
		}
		return *requested, nil
	}
	if m.feed == nil {
		return geo.Coordinate{}, position.ErrUnsupported
	}
	if last, ok := m.feed.Last(); ok && last.Age(m.clock()) <= position.CurrentOptions().MaxCachedAge {
		return last.Coordinate, nil
	}
	opts := position.CurrentOptions()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	s, err := m.feed.Current(ctx, opts)
	if errors.Is(err, context.DeadlineExceeded) {
		return geo.Coordinate{}, position.ErrTimeout
	}
	if err != nil {
		return geo.Coordinate{}, err
	}
	return s.Coordinate, nil
}
