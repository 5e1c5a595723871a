package route

import (
	"fmt"
	"strings"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// pathFallbackThreshold is the path length below which maneuver points
// are appended to the path.
const pathFallbackThreshold = 5

// Adapter turns a provider response for one mode into a NormalizedRoute.
type Adapter interface {
	Mode() Mode
	Normalize(resp *Response) (*NormalizedRoute, error)
}

// Driving normalizes car directions.
type Driving struct{}

// Walking normalizes pedestrian directions.
type Walking struct{}

// Transit normalizes public transit directions.
type Transit struct{}

func (Driving) Mode() Mode { return ModeDriving }
func (Walking) Mode() Mode { return ModeWalking }
func (Transit) Mode() Mode { return ModeTransit }

func (a Driving) Normalize(resp *Response) (*NormalizedRoute, error) {
	return normalize(a.Mode(), resp, guideStep, drivingFare)
}

func (a Walking) Normalize(resp *Response) (*NormalizedRoute, error) {
	return normalize(a.Mode(), resp, guideStep, nil)
}

func (a Transit) Normalize(resp *Response) (*NormalizedRoute, error) {
	return normalize(a.Mode(), resp, transitStep, transitSummary)
}

// AdapterFor returns the adapter for mode. Unknown modes normalize as driving.
func AdapterFor(mode Mode) Adapter {
	switch mode {
	case ModeWalking:
		return Walking{}
	case ModeTransit:
		return Transit{}
	default:
		return Driving{}
	}
}

// Normalize converts resp with the adapter registered for mode.
func Normalize(mode Mode, resp *Response) (*NormalizedRoute, error) {
	return AdapterFor(mode).Normalize(resp)
}

type stepFunc func(sec *Section, g *Guide) Step
type summaryFunc func(r *Route, out *NormalizedRoute)

func normalize(mode Mode, resp *Response, buildStep stepFunc, summarize summaryFunc) (*NormalizedRoute, error) {
	if resp == nil || len(resp.Routes) == 0 {
		return nil, &RouteNotFoundError{Mode: mode}
	}
	r := &resp.Routes[0]
	if r.ResultCode != 0 {
		return nil, &RouteNotFoundError{Mode: mode, ResultCode: r.ResultCode, ResultMsg: r.ResultMsg}
	}

	out := &NormalizedRoute{
		Mode:            mode,
		TotalDistance:   nonNegative(r.Summary.Distance),
		TotalDuration:   geo.MinutesFromSeconds(r.Summary.Duration),
		Steps:           []Step{},
		PathCoordinates: []geo.Coordinate{},
	}
	out.Diagnostics.SectionCount = len(r.Sections)

	for si := range r.Sections {
		sec := &r.Sections[si]
		for gi := range sec.Guides {
			out.Steps = append(out.Steps, buildStep(sec, &sec.Guides[gi]))
		}
		for ri := range sec.Roads {
			out.Diagnostics.RoadCount++
			coords, invalid := decodeVertexes(sec.Roads[ri].Vertexes)
			out.PathCoordinates = append(out.PathCoordinates, coords...)
			out.Diagnostics.InvalidCoordinateCount += invalid
		}
	}

	if len(out.PathCoordinates) < pathFallbackThreshold {
		for _, s := range out.Steps {
			if s.Coordinates != nil {
				out.PathCoordinates = append(out.PathCoordinates, *s.Coordinates)
			}
		}
	}
	out.Diagnostics.CoordinateCount = len(out.PathCoordinates)

	if len(out.Steps) == 0 {
		out.Steps = FallbackSteps(out.TotalDistance, out.TotalDuration)
	}
	for i := range out.Steps {
		out.Steps[i].Index = i
	}

	if summarize != nil {
		summarize(r, out)
	}
	return out, nil
}

// decodeVertexes reads a flat lng,lat,lng,lat... array. Invalid pairs and a
// trailing unpaired value are counted and skipped.
func decodeVertexes(v []float64) ([]geo.Coordinate, int) {
	coords := make([]geo.Coordinate, 0, len(v)/2)
	invalid := 0
	for i := 0; i+1 < len(v); i += 2 {
		c := geo.Coordinate{Lat: v[i+1], Lng: v[i]}
		if !c.Valid() {
			invalid++
			continue
		}
		coords = append(coords, c)
	}
	if len(v)%2 == 1 {
		invalid++
	}
	return coords, invalid
}

// guideStep builds a step from a driving or walking guide.
func guideStep(_ *Section, g *Guide) Step {
	instruction := strings.TrimSpace(g.Guidance)
	if instruction == "" {
		instruction = GuideInstruction(g.Type, g.Name)
	}
	return Step{
		Instruction:     instruction,
		Distance:        nonNegative(g.Distance),
		DurationMinutes: geo.MinutesFromSeconds(g.Duration),
		Direction:       GuideDirection(g.Type),
		StreetName:      strings.TrimSpace(g.Name),
		Coordinates:     maneuverPoint(g),
		GuideType:       g.Type,
	}
}

// transitStep prefers provider guidance, then a synthesized boarding
// instruction, then the maneuver template.
func transitStep(sec *Section, g *Guide) Step {
	transportType := ""
	if sec.Transport != nil {
		transportType = strings.ToUpper(strings.TrimSpace(sec.Transport.Type))
	}
	s := guideStep(sec, g)
	s.TransportType = transportType
	if strings.TrimSpace(g.Guidance) == "" {
		if boarding := boardingInstruction(transportType, g); boarding != "" {
			s.Instruction = boarding
		}
	}
	return s
}

func maneuverPoint(g *Guide) *geo.Coordinate {
	if g.X == nil || g.Y == nil {
		return nil
	}
	c := geo.Coordinate{Lat: *g.Y, Lng: *g.X}
	if !c.Valid() {
		return nil
	}
	return &c
}

// FallbackSteps synthesizes start, head-to-destination and arrival steps for
// routes the provider returned without guides.
func FallbackSteps(totalDistance float64, totalDuration int) []Step {
	steps := []Step{{
		Instruction: "내비게이션을 시작합니다",
		Direction:   DirectionStraight,
	}}
	if totalDistance > 0 {
		steps = append(steps, Step{
			Instruction:     fmt.Sprintf("목적지로 향하세요 (%s)", geo.FormatDistance(totalDistance)),
			Distance:        totalDistance,
			DurationMinutes: totalDuration,
			Direction:       DirectionStraight,
		})
	}
	steps = append(steps, Step{
		Instruction: "목적지에 도착했습니다",
		Direction:   DirectionStraight,
	})
	return steps
}

func drivingFare(r *Route, out *NormalizedRoute) {
	if r.Summary.Fare == nil {
		return
	}
	if r.Summary.Fare.Toll != nil {
		toll := *r.Summary.Fare.Toll
		out.Fare = &toll
	}
	if r.Summary.Fare.Taxi != nil {
		taxi := *r.Summary.Fare.Taxi
		out.TaxiFare = &taxi
	}
}

func transitSummary(r *Route, out *NormalizedRoute) {
	if r.Summary.Fare != nil && r.Summary.Fare.Regular != nil {
		fare := r.Summary.Fare.Regular.TotalFare
		out.Fare = &fare
	}

	info := &TransitInfo{}
	var walkSeconds, rideSeconds float64
	hasWalk := false
	for i := range r.Sections {
		sec := &r.Sections[i]
		if sec.Transport == nil {
			continue
		}
		switch strings.ToUpper(sec.Transport.Type) {
		case "BUS":
			info.BusCount++
			rideSeconds += sec.Duration
		case "SUBWAY":
			info.SubwayCount++
			rideSeconds += sec.Duration
		case "WALK":
			hasWalk = true
			walkSeconds += sec.Duration
		default:
			rideSeconds += sec.Duration
		}
	}
	if hasWalk {
		info.WalkTime = geo.MinutesFromSeconds(walkSeconds)
		info.TransitTime = geo.MinutesFromSeconds(rideSeconds)
	} else {
		info.WalkTime = int(float64(out.TotalDuration)*0.3 + 0.5)
		info.TransitTime = out.TotalDuration - info.WalkTime
	}
	out.TransitInfo = info
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
