package navigation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
)

// Feed is the position subscription a session holds while active.
type Feed interface {
	Watch(onSample func(position.Sample), onError func(error), opts position.Options) (position.Handle, error)
	Unwatch(h position.Handle) bool
}

// Announcer speaks guidance.
type Announcer interface {
	Announce(text string)
	CancelAll()
}

// SessionConfig wires a session's collaborators. Feed, Announcer and
// Listener may be nil.
type SessionConfig struct {
	Feed         Feed
	Announcer    Announcer
	Listener     Listener
	WatchOptions position.Options
	Clock        func() time.Time
	Logger       *zap.Logger
}

// Session is one navigation run: Idle, then Active, then Completed or
// Stopped. All mutations are serialized; effects (speech and events) run
// after the state lock is released, in the order they were produced.
type Session struct {
	id        string
	feed      Feed
	announcer Announcer
	listener  Listener
	watchOpts position.Options
	now       func() time.Time
	logger    *zap.Logger

	mu                sync.Mutex
	state             State
	route             *route.NormalizedRoute
	dest              Destination
	current           int
	lastAnnounced     int
	remainingDistance float64
	remainingTime     int
	startedAt         time.Time
	lastSample        *position.Sample
	lastErr           string
	handle            position.Handle
	feedAcquired      bool
	watching          bool

	// effectsMu keeps effect batches in production order across goroutines.
	effectsMu sync.Mutex
}

// effect is a deferred side effect collected under the state lock.
type effect func()

func NewSession(cfg SessionConfig) *Session {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.WatchOptions == (position.Options{}) {
		cfg.WatchOptions = position.WatchOptions()
	}
	id := uuid.NewString()
	return &Session{
		id:            id,
		feed:          cfg.Feed,
		announcer:     cfg.Announcer,
		listener:      cfg.Listener,
		watchOpts:     cfg.WatchOptions,
		now:           cfg.Clock,
		logger:        cfg.Logger.Named("session").With(zap.String("session_id", id)),
		lastAnnounced: -1,
	}
}

func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Start begins guidance along r. It is only valid from Idle.
func (s *Session) Start(r *route.NormalizedRoute, dest Destination) (Snapshot, error) {
	s.mu.Lock()
	switch {
	case s.state == StateActive:
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrAlreadyActive
	case s.state.Terminal():
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrSessionTerminal
	}
	if r == nil || len(r.Steps) == 0 {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrEmptyRoute
	}
	if err := r.Validate(); err != nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), fmt.Errorf("start navigation: %w", err)
	}
	if err := s.acquireFeedLocked(); err != nil {
		defer s.mu.Unlock()
		return s.snapshotLocked(), fmt.Errorf("start navigation: %w", err)
	}

	s.state = StateActive
	s.route = r
	s.dest = dest
	s.current = 0
	s.lastAnnounced = -1
	s.remainingDistance = r.TotalDistance
	s.remainingTime = r.TotalDuration
	s.startedAt = s.now()

	var effects []effect
	text := s.announceLocked(&effects, 0)
	s.emitLocked(&effects, Event{Type: EventStarted, Announcement: text})

	s.logger.Info("navigation started",
		zap.String("mode", string(r.Mode)),
		zap.Int("steps", len(r.Steps)),
		zap.Float64("distance_m", r.TotalDistance),
		zap.Int("duration_min", r.TotalDuration),
		zap.String("destination", dest.Name))

	snap := s.snapshotLocked()
	s.flush(effects)
	return snap, nil
}

// OnPositionUpdate advances the session with one sample. Outside Active it
// returns ErrNotActive without changing anything.
func (s *Session) OnPositionUpdate(sample position.Sample) (Snapshot, error) {
	s.mu.Lock()
	if s.state != StateActive {
		defer s.mu.Unlock()
		return s.snapshotLocked(), ErrNotActive
	}
	if !sample.Coordinate.Valid() {
		defer s.mu.Unlock()
		return s.snapshotLocked(), fmt.Errorf("position update: %w", position.ErrPositionUnavailable)
	}

	var effects []effect
	s.lastSample = &sample
	s.lastErr = ""

	toDestination := geo.DistanceMeters(sample.Coordinate, s.dest.Coordinates)
	if toDestination < ArrivalRadiusMeters {
		s.state = StateCompleted
		s.remainingDistance = toDestination
		s.remainingTime = 0
		s.releaseFeedLocked()

		text := arrivalAnnouncement(s.dest.Name)
		if s.announcer != nil {
			a := s.announcer
			effects = append(effects, func() { a.Announce(text) })
		}
		s.emitLocked(&effects, Event{Type: EventArrived, Announcement: text})
		s.logger.Info("arrived", zap.Float64("distance_m", toDestination))

		snap := s.snapshotLocked()
		s.flush(effects)
		return snap, nil
	}

	from := s.current
	if next, ok := s.nextStepLocked(sample.Coordinate); ok {
		s.current = next
		text := s.announceLocked(&effects, next)
		s.emitLocked(&effects, Event{Type: EventStepAdvanced, FromStep: from, Announcement: text})
		s.logger.Debug("step advanced", zap.Int("from", from), zap.Int("to", next))
	}

	s.remainingDistance = toDestination
	s.remainingTime = geo.TravelMinutes(toDestination, s.route.Mode.AverageSpeedKmh())
	s.emitLocked(&effects, Event{Type: EventUpdated})

	snap := s.snapshotLocked()
	s.flush(effects)
	return snap, nil
}

// OnPositionError records a feed failure. The state never changes.
func (s *Session) OnPositionError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	pe := position.Classify(err)
	s.lastErr = pe.Error()

	var effects []effect
	s.emitLocked(&effects, Event{Type: EventPositionError, Error: pe.Code.Message(), ErrorCode: pe.Code.String()})
	s.logger.Warn("position error", zap.Stringer("code", pe.Code), zap.Error(err))
	s.flush(effects)
}

// Stop ends an active session. It is a no-op in any other state.
func (s *Session) Stop() Snapshot {
	s.mu.Lock()
	if s.state != StateActive {
		defer s.mu.Unlock()
		return s.snapshotLocked()
	}
	s.state = StateStopped
	s.releaseFeedLocked()

	var effects []effect
	if s.announcer != nil {
		effects = append(effects, s.announcer.CancelAll)
	}
	s.emitLocked(&effects, Event{Type: EventStopped})
	s.logger.Info("navigation stopped", zap.Int("step", s.current))

	snap := s.snapshotLocked()
	s.flush(effects)
	return snap
}

// nextStepLocked decides whether the sample advances the current step.
// Steps with a maneuver point advance by proximity, except the last one.
// Steps without one advance by elapsed share of the route duration.
func (s *Session) nextStepLocked(at geo.Coordinate) (int, bool) {
	steps := s.route.Steps
	n := len(steps)
	step := steps[s.current]

	if step.Coordinates != nil {
		if s.current < n-1 && geo.DistanceMeters(at, *step.Coordinates) < StepAdvanceRadiusMeters {
			return s.current + 1, true
		}
		return s.current, false
	}

	total := s.route.TotalDuration
	if total <= 0 {
		total = s.route.StepDurationTotal()
	}
	if total <= 0 {
		return s.current, false
	}
	elapsed := s.now().Sub(s.startedAt)
	ratio := math.Min(float64(elapsed.Milliseconds())/float64(total*60000), 1)
	expected := int(math.Floor(ratio * float64(n)))
	if expected > s.current && expected < n {
		return expected, true
	}
	return s.current, false
}

// announceLocked queues speech for step i unless it was the last step
// announced. It returns the queued text.
func (s *Session) announceLocked(effects *[]effect, i int) string {
	if i == s.lastAnnounced {
		return ""
	}
	s.lastAnnounced = i
	text := s.route.Steps[i].Instruction
	if s.announcer != nil {
		a := s.announcer
		*effects = append(*effects, func() { a.Announce(text) })
	}
	return text
}

func (s *Session) emitLocked(effects *[]effect, e Event) {
	if s.listener == nil {
		return
	}
	e.SessionID = s.id
	e.At = s.now()
	e.Snapshot = s.snapshotLocked()
	l := s.listener
	*effects = append(*effects, func() { l.SessionEvent(e) })
}

// flush releases the state lock and runs effects in order.
func (s *Session) flush(effects []effect) {
	s.effectsMu.Lock()
	s.mu.Unlock()
	defer s.effectsMu.Unlock()
	for _, fn := range effects {
		fn()
	}
}

func (s *Session) acquireFeedLocked() error {
	if s.feedAcquired {
		return ErrFeedAlreadyAcquired
	}
	if s.feed == nil {
		s.feedAcquired = true
		return nil
	}
	h, err := s.feed.Watch(s.onSample, s.OnPositionError, s.watchOpts)
	if err != nil {
		return fmt.Errorf("watch position: %w", err)
	}
	s.handle = h
	s.feedAcquired = true
	s.watching = true
	return nil
}

func (s *Session) releaseFeedLocked() {
	if !s.watching {
		return
	}
	s.watching = false
	s.feed.Unwatch(s.handle)
}

func (s *Session) onSample(sample position.Sample) {
	if _, err := s.OnPositionUpdate(sample); err != nil && err != ErrNotActive {
		s.logger.Debug("position update rejected", zap.Error(err))
	}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:              s.id,
		State:                  s.state,
		IsActive:               s.state == StateActive,
		CurrentStepIndex:       s.current,
		RemainingDistance:      s.remainingDistance,
		RemainingTime:          s.remainingTime,
		Destination:            s.dest,
		LastAnnouncedStepIndex: s.lastAnnounced,
		StartedAt:              s.startedAt,
		LastPositionError:      s.lastErr,
		Route:                  s.route,
	}
	if s.lastSample != nil {
		ls := *s.lastSample
		snap.LastSample = &ls
	}
	if s.route != nil {
		snap.Mode = s.route.Mode
		snap.StepCount = len(s.route.Steps)
		snap.Estimated = s.route.Estimated
		snap.RemainingDistanceText = geo.FormatDistance(s.remainingDistance)
		snap.RemainingTimeText = geo.FormatDuration(s.remainingTime)
		cur := s.route.Steps[s.current]
		snap.CurrentStep = &cur
		if s.current+1 < len(s.route.Steps) {
			next := s.route.Steps[s.current+1]
			snap.NextStep = &next
		}
	}
	return snap
}

func arrivalAnnouncement(name string) string {
	if name == "" {
		return "목적지에 도착했습니다. 내비게이션을 종료합니다."
	}
	return "목적지 " + name + "에 도착했습니다. 내비게이션을 종료합니다."
}
