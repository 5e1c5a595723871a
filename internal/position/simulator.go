package position

import (
	"sync"
	"time"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// Simulator generates samples that move along a path at a fixed speed.
// With no path it reports the home position.
type Simulator struct {
	mu       sync.Mutex
	home     geo.Coordinate
	path     []geo.Coordinate
	cumul    []float64 // cumulative meters at each path vertex
	started  time.Time
	speedKmh float64
	interval time.Duration
	now      func() time.Time
	sleep    func(time.Duration)
}

// NewSimulator creates a simulator emitting one sample per interval.
func NewSimulator(home geo.Coordinate, speedKmh float64, interval time.Duration) *Simulator {
	if speedKmh <= 0 {
		speedKmh = 30
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Simulator{
		home:     home,
		speedKmh: speedKmh,
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

func (s *Simulator) Name() string   { return "Demo GPS (Simulated)" }
func (s *Simulator) Connect() error { return nil }
func (s *Simulator) Close() error   { return nil }

// SetPath restarts the walk at the first vertex of path. An empty path
// parks the simulator at its current position.
func (s *Simulator) SetPath(path []geo.Coordinate) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(path) == 0 {
		s.home = s.positionLocked()
		s.path = nil
		s.cumul = nil
		return
	}
	s.path = append([]geo.Coordinate(nil), path...)
	s.cumul = make([]float64, len(path))
	for i := 1; i < len(path); i++ {
		s.cumul[i] = s.cumul[i-1] + geo.DistanceMeters(path[i-1], path[i])
	}
	s.started = s.now()
}

// Read sleeps one interval and returns the current simulated position.
func (s *Simulator) Read() (*Sample, error) {
	s.sleep(s.interval)

	s.mu.Lock()
	defer s.mu.Unlock()
	return &Sample{
		Coordinate: s.positionLocked(),
		Accuracy:   ptr(5),
		Speed:      ptr(s.speedKmh),
		Timestamp:  s.now(),
	}, nil
}

func (s *Simulator) positionLocked() geo.Coordinate {
	if len(s.path) == 0 {
		return s.home
	}
	if len(s.path) == 1 {
		return s.path[0]
	}

	traveled := s.speedKmh / 3.6 * s.now().Sub(s.started).Seconds()
	last := len(s.path) - 1
	if traveled >= s.cumul[last] {
		return s.path[last]
	}
	for i := 1; i <= last; i++ {
		if traveled > s.cumul[i] {
			continue
		}
		seg := s.cumul[i] - s.cumul[i-1]
		if seg <= 0 {
			return s.path[i]
		}
		f := (traveled - s.cumul[i-1]) / seg
		a, b := s.path[i-1], s.path[i]
		return geo.Coordinate{
			Lat: a.Lat + (b.Lat-a.Lat)*f,
			Lng: a.Lng + (b.Lng-a.Lng)*f,
		}
	}
	return s.path[last]
}
