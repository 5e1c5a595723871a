package gmaps

import (
	"html"
	"strings"

	"googlemaps.github.io/maps"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

// Convert normalizes the first Google route. Steps come from every leg in
// order; the path is the concatenation of step polylines, or the overview
// polyline when the steps carry none.
func Convert(mode route.Mode, routes []maps.Route) (*route.NormalizedRoute, error) {
	if len(routes) == 0 {
		return nil, &route.RouteNotFoundError{Mode: mode}
	}
	rt := routes[0]

	out := &route.NormalizedRoute{
		Mode:            mode,
		Steps:           []route.Step{},
		PathCoordinates: []geo.Coordinate{},
	}
	out.Diagnostics.SectionCount = len(rt.Legs)

	var seconds float64
	for _, leg := range rt.Legs {
		if leg == nil {
			continue
		}
		out.TotalDistance += float64(leg.Distance.Meters)
		seconds += leg.Duration.Seconds()

		for _, st := range leg.Steps {
			if st == nil {
				continue
			}
			out.Diagnostics.RoadCount++
			out.Steps = append(out.Steps, convertStep(st))

			pts, err := st.Polyline.Decode()
			if err != nil {
				out.Diagnostics.InvalidCoordinateCount++
				continue
			}
			appendPoints(out, pts)
		}
	}
	out.TotalDuration = geo.MinutesFromSeconds(seconds)

	if len(out.PathCoordinates) == 0 && rt.OverviewPolyline.Points != "" {
		pts, err := rt.OverviewPolyline.Decode()
		if err == nil {
			appendPoints(out, pts)
		} else {
			out.Diagnostics.InvalidCoordinateCount++
		}
	}
	out.Diagnostics.CoordinateCount = len(out.PathCoordinates)

	if len(out.Steps) == 0 {
		out.Steps = route.FallbackSteps(out.TotalDistance, out.TotalDuration)
	}
	for i := range out.Steps {
		out.Steps[i].Index = i
	}

	if rt.Fare != nil && mode == route.ModeTransit {
		fare := int(rt.Fare.Value)
		out.Fare = &fare
	}
	return out, nil
}

func convertStep(st *maps.Step) route.Step {
	instruction := stripHTML(st.HTMLInstructions)
	if td := st.TransitDetails; td != nil && td.DepartureStop.Name != "" && td.ArrivalStop.Name != "" {
		line := td.Line.ShortName
		if line == "" {
			line = td.Line.Name
		}
		if strings.EqualFold(td.Line.Vehicle.Type, "SUBWAY") {
			instruction = td.DepartureStop.Name + "에서 " + line + " 지하철 탑승 → " + td.ArrivalStop.Name + " 하차"
		} else if line != "" {
			instruction = td.DepartureStop.Name + "에서 " + line + "번 버스 탑승 → " + td.ArrivalStop.Name + " 하차"
		}
	}
	if instruction == "" {
		instruction = route.GuideInstruction(0, "")
	}

	s := route.Step{
		Instruction:     instruction,
		Distance:        float64(st.Distance.Meters),
		DurationMinutes: geo.MinutesFromSeconds(st.Duration.Seconds()),
		Direction:       instructionDirection(instruction),
		TransportType:   strings.ToUpper(st.TravelMode),
	}
	start := geo.Coordinate{Lat: st.StartLocation.Lat, Lng: st.StartLocation.Lng}
	if start.Valid() && (start != geo.Coordinate{}) {
		s.Coordinates = &start
	}
	return s
}

func appendPoints(out *route.NormalizedRoute, pts []maps.LatLng) {
	for _, p := range pts {
		c := geo.Coordinate{Lat: p.Lat, Lng: p.Lng}
		if !c.Valid() {
			out.Diagnostics.InvalidCoordinateCount++
			continue
		}
		if n := len(out.PathCoordinates); n > 0 && out.PathCoordinates[n-1] == c {
			continue
		}
		out.PathCoordinates = append(out.PathCoordinates, c)
	}
}

// instructionDirection classifies a plain-text Google instruction. The
// Directions response carries no maneuver code, so Korean and English turn
// phrases are matched instead. U-turns win over left/right.
func instructionDirection(text string) route.Direction {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "유턴"), strings.Contains(t, "u-turn"), strings.Contains(t, "u턴"):
		return route.DirectionUTurn
	case strings.Contains(t, "좌회전"), strings.Contains(t, "왼쪽"), strings.Contains(t, "turn left"),
		strings.Contains(t, "slight left"), strings.Contains(t, "sharp left"), strings.Contains(t, "keep left"):
		return route.DirectionLeft
	case strings.Contains(t, "우회전"), strings.Contains(t, "오른쪽"), strings.Contains(t, "turn right"),
		strings.Contains(t, "slight right"), strings.Contains(t, "sharp right"), strings.Contains(t, "keep right"):
		return route.DirectionRight
	default:
		return route.DirectionStraight
	}
}

// stripHTML drops tags from Google's html_instructions.
func stripHTML(s string) string {
	out := make([]rune, 0, len(s))
	inTag := false
	for _, r := range s {
		if r == '<' {
			inTag = true
			continue
		}
		if r == '>' {
			inTag = false
			out = append(out, ' ')
			continue
		}
		if !inTag {
			out = append(out, r)
		}
	}
	return strings.Join(strings.Fields(html.UnescapeString(string(out))), " ")
}
