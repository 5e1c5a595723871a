package route

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// Mode is the travel mode a route was planned for.
type Mode string

const (
	ModeWalking Mode = "walking"
	ModeTransit Mode = "transit"
	ModeDriving Mode = "driving"
)

// Average speeds used for remaining-time and straight-line estimates (km/h).
const (
	walkingSpeedKmh = 4.8
	drivingSpeedKmh = 30
	transitSpeedKmh = 25
)

// ErrUnknownMode is wrapped by ParseMode for unsupported modes.
var ErrUnknownMode = errors.New("invalid travel mode")

// ParseMode converts a string to a Mode, returning an error if unknown.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case ModeWalking, ModeTransit, ModeDriving:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// AverageSpeedKmh returns the fixed heuristic speed for the mode.
func (m Mode) AverageSpeedKmh() float64 {
	switch m {
	case ModeWalking:
		return walkingSpeedKmh
	case ModeTransit:
		return transitSpeedKmh
	default:
		return drivingSpeedKmh
	}
}

func (m Mode) String() string { return string(m) }

// Direction is the simplified maneuver shown next to a step.
type Direction string

const (
	DirectionStraight Direction = "straight"
	DirectionLeft     Direction = "left"
	DirectionRight    Direction = "right"
	DirectionUTurn    Direction = "u-turn"
)

// Step is one guidance instruction. Steps are immutable once normalized.
type Step struct {
	Index           int             `json:"index"`
	Instruction     string          `json:"instruction"`
	Distance        float64         `json:"distance"`        // meters to the next maneuver
	DurationMinutes int             `json:"durationMinutes"` // whole minutes
	Direction       Direction       `json:"direction"`
	StreetName      string          `json:"streetName,omitempty"`
	Coordinates     *geo.Coordinate `json:"coordinates,omitempty"` // maneuver point
	GuideType       int             `json:"guideType,omitempty"`
	TransportType   string          `json:"transportType,omitempty"`
}

// HasManeuverPoint reports whether the step carries a maneuver coordinate.
func (s Step) HasManeuverPoint() bool { return s.Coordinates != nil }

// Diagnostics counts what normalization saw. Observability only.
type Diagnostics struct {
	SectionCount           int `json:"sectionCount"`
	RoadCount              int `json:"roadCount"`
	CoordinateCount        int `json:"coordinateCount"`
	InvalidCoordinateCount int `json:"invalidCoordinateCount"`
}

// TransitInfo summarizes the legs of a transit route.
type TransitInfo struct {
	BusCount    int `json:"busCount"`
	SubwayCount int `json:"subwayCount"`
	WalkTime    int `json:"walkTime"`    // minutes
	TransitTime int `json:"transitTime"` // minutes
}

// NormalizedRoute is the provider-agnostic route consumed by navigation.
type NormalizedRoute struct {
	Mode            Mode             `json:"mode"`
	Provider        string           `json:"provider,omitempty"`
	TotalDistance   float64          `json:"totalDistance"` // meters
	TotalDuration   int              `json:"totalDuration"` // minutes
	Fare            *int             `json:"fare,omitempty"`
	TaxiFare        *int             `json:"taxiFare,omitempty"`
	Steps           []Step           `json:"steps"`
	PathCoordinates []geo.Coordinate `json:"pathCoordinates"`
	TransitInfo     *TransitInfo     `json:"transitInfo,omitempty"`
	Diagnostics     Diagnostics      `json:"diagnostics"`
	Estimated       bool             `json:"estimated,omitempty"`
}

// StepDurationTotal sums the per-step durations in minutes.
func (r *NormalizedRoute) StepDurationTotal() int {
	total := 0
	for _, s := range r.Steps {
		total += s.DurationMinutes
	}
	return total
}

// Validate checks the invariants the navigation session relies on.
func (r *NormalizedRoute) Validate() error {
	if r == nil {
		return fmt.Errorf("route is nil")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("route has no steps")
	}
	if r.TotalDistance < 0 || r.TotalDuration < 0 {
		return fmt.Errorf("route totals must be non-negative (distance=%v duration=%d)", r.TotalDistance, r.TotalDuration)
	}
	return nil
}
