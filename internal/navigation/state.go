// Package navigation runs turn-by-turn guidance over a normalized route and
// a live position feed.
package navigation

import (
	"errors"
	"fmt"
	"time"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
)

// Fixed thresholds. They are not configurable.
const (
	ArrivalRadiusMeters     = 100.0
	StepAdvanceRadiusMeters = 50.0
)

var (
	ErrAlreadyActive       = errors.New("navigation is already active")
	ErrSessionTerminal     = errors.New("navigation session has ended")
	ErrNotActive           = errors.New("navigation is not active")
	ErrFeedAlreadyAcquired = errors.New("position feed already acquired for this session")
	ErrEmptyRoute          = errors.New("route has no steps")
	// ErrNoDestination matches geo.ErrInvalidCoordinate: an omitted
	// destination decodes to 0,0.
	ErrNoDestination = fmt.Errorf("destination is required: %w", geo.ErrInvalidCoordinate)
)

// State is the session lifecycle. Completed and Stopped are terminal.
type State int

const (
	StateIdle State = iota
	StateActive
	StateCompleted
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, v := range []State{StateIdle, StateActive, StateCompleted, StateStopped} {
		if v.String() == string(b) {
			*s = v
			return nil
		}
	}
	return fmt.Errorf("unknown navigation state %q", b)
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateStopped }

// Destination is where the session ends.
type Destination struct {
	Name        string         `json:"name"`
	Coordinates geo.Coordinate `json:"coordinates"`
}

// Snapshot is a read-only copy of the session state for rendering.
type Snapshot struct {
	SessionID              string           `json:"sessionId,omitempty"`
	State                  State            `json:"state"`
	IsActive               bool             `json:"isActive"`
	Mode                   route.Mode       `json:"mode,omitempty"`
	CurrentStepIndex       int              `json:"currentStepIndex"`
	CurrentStep            *route.Step      `json:"currentStep,omitempty"`
	NextStep               *route.Step      `json:"nextStep,omitempty"`
	StepCount              int              `json:"stepCount"`
	RemainingDistance      float64          `json:"remainingDistance"` // meters
	RemainingTime          int              `json:"remainingTime"`     // minutes
	RemainingDistanceText  string           `json:"remainingDistanceText,omitempty"`
	RemainingTimeText      string           `json:"remainingTimeText,omitempty"`
	Destination            Destination      `json:"destination"`
	LastAnnouncedStepIndex int              `json:"lastAnnouncedStepIndex"`
	StartedAt              time.Time        `json:"startedAt,omitzero"`
	LastSample             *position.Sample `json:"lastSample,omitempty"`
	LastPositionError      string           `json:"lastPositionError,omitempty"`
	Estimated              bool             `json:"estimated,omitempty"`

	Route *route.NormalizedRoute `json:"-"`
}

// IdleSnapshot is the state before any session starts.
func IdleSnapshot() Snapshot {
	return Snapshot{State: StateIdle, LastAnnouncedStepIndex: -1}
}
