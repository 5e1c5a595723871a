// Package position delivers live location samples from a device source
// (serial GPS, browser push or simulator) to navigation sessions.
package position

import (
	"time"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// Source is the interface for position data sources.
type Source interface {
	Name() string
	Connect() error
	Close() error
	// Read blocks until a fix is available or a short read window passes.
	// It returns nil with no error when the window passed without a fix.
	Read() (*Sample, error)
}

// Sample is one location fix.
type Sample struct {
	Coordinate geo.Coordinate `json:"coordinate"`
	Accuracy   *float64       `json:"accuracy,omitempty"` // meters
	Speed      *float64       `json:"speed,omitempty"`    // km/h
	Heading    *float64       `json:"heading,omitempty"`  // degrees true
	Timestamp  time.Time      `json:"timestamp"`
}

// Age reports how old the sample is at now.
func (s Sample) Age(now time.Time) time.Duration {
	if s.Timestamp.IsZero() {
		return 0
	}
	return now.Sub(s.Timestamp)
}

func ptr(v float64) *float64 { return &v }
