package route

import (
	"math"

	"github.com/shaunagostinho/navcore/internal/geo"
)

// Straight-line estimate constants for transit fares and minimum durations.
const (
	transitBaseFare       = 1370
	transitFarePerKm      = 100
	minWalkingMinutes     = 1
	minTransitMinutes     = 5
	transitWalkMinPerKm   = 5
	transitBoardingMargin = 5
)

// Estimate builds a degraded straight-line route between origin and
// destination, used when the routing provider cannot be reached.
func Estimate(mode Mode, origin, destination geo.Coordinate) *NormalizedRoute {
	distance := geo.DistanceMeters(origin, destination)
	duration := geo.TravelMinutes(distance, mode.AverageSpeedKmh())
	km := distance / 1000

	out := &NormalizedRoute{
		Mode:            mode,
		Provider:        "estimate",
		TotalDistance:   distance,
		PathCoordinates: []geo.Coordinate{origin, destination},
		Estimated:       true,
	}

	switch mode {
	case ModeWalking:
		duration = max(duration, minWalkingMinutes)
	case ModeTransit:
		duration = max(duration, minTransitMinutes)
		fare := transitBaseFare + int(math.Floor(km))*transitFarePerKm
		out.Fare = &fare
		out.TransitInfo = &TransitInfo{
			BusCount:    1,
			WalkTime:    int(math.Round(km * transitWalkMinPerKm)),
			TransitTime: max(duration-transitBoardingMargin, 1),
		}
	}
	out.TotalDuration = duration
	out.Steps = FallbackSteps(distance, duration)
	for i := range out.Steps {
		out.Steps[i].Index = i
	}
	out.Diagnostics.CoordinateCount = len(out.PathCoordinates)
	return out
}
