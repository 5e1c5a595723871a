package gmaps

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

func sampleRoutes() []maps.Route {
	first := []maps.LatLng{{Lat: 37.566, Lng: 126.978}, {Lat: 37.560, Lng: 126.985}}
	second := []maps.LatLng{{Lat: 37.560, Lng: 126.985}, {Lat: 37.540, Lng: 127.0}, {Lat: 37.498, Lng: 127.028}}

	return []maps.Route{{
		Summary: "세종대로",
		Legs: []*maps.Leg{{
			Distance: maps.Distance{Meters: 8800},
			Duration: 25 * time.Minute,
			Steps: []*maps.Step{
				{
					HTMLInstructions: "<b>세종대로</b>를 따라 남쪽으로 이동",
					Distance:         maps.Distance{Meters: 900},
					Duration:         3 * time.Minute,
					StartLocation:    maps.LatLng{Lat: 37.566, Lng: 126.978},
					EndLocation:      maps.LatLng{Lat: 37.560, Lng: 126.985},
					Polyline:         maps.Polyline{Points: maps.Encode(first)},
					TravelMode:       "DRIVING",
				},
				{
					HTMLInstructions: "<b>좌회전</b> 후 &amp; 강남대로 진입",
					Distance:         maps.Distance{Meters: 7900},
					Duration:         22 * time.Minute,
					StartLocation:    maps.LatLng{Lat: 37.560, Lng: 126.985},
					EndLocation:      maps.LatLng{Lat: 37.498, Lng: 127.028},
					Polyline:         maps.Polyline{Points: maps.Encode(second)},
					TravelMode:       "DRIVING",
				},
			},
		}},
	}}
}

func TestConvert(t *testing.T) {
	r, err := Convert(route.ModeDriving, sampleRoutes())
	require.NoError(t, err)

	assert.Equal(t, 8800.0, r.TotalDistance)
	assert.Equal(t, 25, r.TotalDuration)
	require.Len(t, r.Steps, 2)
	assert.Equal(t, "세종대로 를 따라 남쪽으로 이동", r.Steps[0].Instruction)
	assert.Equal(t, route.DirectionStraight, r.Steps[0].Direction)
	assert.Equal(t, "좌회전 후 & 강남대로 진입", r.Steps[1].Instruction)
	assert.Equal(t, route.DirectionLeft, r.Steps[1].Direction)
	assert.Equal(t, 22, r.Steps[1].DurationMinutes)
	require.NotNil(t, r.Steps[1].Coordinates)
	assert.InDelta(t, 37.560, r.Steps[1].Coordinates.Lat, 1e-9)
	assert.Equal(t, 1, r.Steps[1].Index)

	// The shared vertex between consecutive polylines appears once.
	require.Len(t, r.PathCoordinates, 4)
	assert.InDelta(t, 127.028, r.PathCoordinates[3].Lng, 1e-5)
	assert.Equal(t, 4, r.Diagnostics.CoordinateCount)
	assert.Equal(t, 2, r.Diagnostics.RoadCount)
}

func TestConvertOverviewAndFallbacks(t *testing.T) {
	path := []maps.LatLng{{Lat: 37.5, Lng: 127.0}, {Lat: 37.51, Lng: 127.01}}
	routes := []maps.Route{{
		OverviewPolyline: maps.Polyline{Points: maps.Encode(path)},
		Legs:             []*maps.Leg{{Distance: maps.Distance{Meters: 1500}, Duration: 20 * time.Minute}},
		Fare:             &maps.Fare{Currency: "KRW", Value: 1500},
	}}

	r, err := Convert(route.ModeTransit, routes)
	require.NoError(t, err)
	assert.Len(t, r.PathCoordinates, 2)
	require.Len(t, r.Steps, 3)
	assert.Equal(t, "목적지로 향하세요 (1.5km)", r.Steps[1].Instruction)
	require.NotNil(t, r.Fare)
	assert.Equal(t, 1500, *r.Fare)

	_, err = Convert(route.ModeDriving, nil)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestTransitBoardingInstruction(t *testing.T) {
	st := &maps.Step{
		HTMLInstructions: "버스 146",
		TravelMode:       "TRANSIT",
		TransitDetails: &maps.TransitDetails{
			DepartureStop: maps.TransitStop{Name: "강남역"},
			ArrivalStop:   maps.TransitStop{Name: "역삼역"},
			Line:          maps.TransitLine{ShortName: "146", Vehicle: maps.TransitLineVehicle{Type: "BUS"}},
		},
	}
	assert.Equal(t, "강남역에서 146번 버스 탑승 → 역삼역 하차", convertStep(st).Instruction)

	st.TransitDetails.Line = maps.TransitLine{Name: "2호선", Vehicle: maps.TransitLineVehicle{Type: "SUBWAY"}}
	assert.Equal(t, "강남역에서 2호선 지하철 탑승 → 역삼역 하차", convertStep(st).Instruction)
	assert.Equal(t, "TRANSIT", convertStep(st).TransportType)
}

func TestInstructionDirection(t *testing.T) {
	cases := map[string]route.Direction{
		"유턴 후 세종대로":                  route.DirectionUTurn,
		"Make a U-turn at Main St":     route.DirectionUTurn,
		"강남대로 방면으로 좌회전":              route.DirectionLeft,
		"Turn left onto Teheran-ro":    route.DirectionLeft,
		"Keep left at the fork":        route.DirectionLeft,
		"오른쪽 방향으로 계속":                route.DirectionRight,
		"Turn slight right toward I-5": route.DirectionRight,
		"세종대로를 따라 남쪽으로 이동":           route.DirectionStraight,
		"Head north on Sejong-daero":   route.DirectionStraight,
		"":                             route.DirectionStraight,
	}
	for text, want := range cases {
		assert.Equal(t, want, instructionDirection(text), text)
	}
}

func TestConvertDirectionFromHTML(t *testing.T) {
	st := &maps.Step{HTMLInstructions: "<b>Turn <wbr/>right</b> onto Gangnam-daero"}
	assert.Equal(t, route.DirectionRight, convertStep(st).Direction)
}

type fakeDirections struct {
	req    *maps.DirectionsRequest
	routes []maps.Route
	err    error
}

func (f *fakeDirections) Directions(_ context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error) {
	f.req = r
	return f.routes, nil, f.err
}

func TestClientRoute(t *testing.T) {
	fake := &fakeDirections{routes: sampleRoutes()}
	c := &Client{api: fake, language: "ko", logger: zap.NewNop()}

	r, err := c.Route(context.Background(), route.ModeWalking,
		geo.Coordinate{Lat: 37.566, Lng: 126.978}, geo.Coordinate{Lat: 37.498, Lng: 127.028})
	require.NoError(t, err)
	assert.Equal(t, "google", r.Provider)
	assert.Equal(t, route.ModeWalking, r.Mode)

	require.NotNil(t, fake.req)
	assert.Equal(t, maps.TravelModeWalking, fake.req.Mode)
	assert.Equal(t, "37.566000,126.978000", fake.req.Origin)
	assert.Equal(t, "ko", fake.req.Language)
}

func TestClientRouteErrors(t *testing.T) {
	c := &Client{api: &fakeDirections{err: errors.New("maps: ZERO_RESULTS - ")}, logger: zap.NewNop()}
	_, err := c.Route(context.Background(), route.ModeTransit, geo.Coordinate{}, geo.Coordinate{Lat: 1})
	assert.ErrorIs(t, err, route.ErrRouteNotFound)

	c.api = &fakeDirections{err: errors.New("maps: OVER_QUERY_LIMIT - ")}
	_, err = c.Route(context.Background(), route.ModeTransit, geo.Coordinate{}, geo.Coordinate{Lat: 1})
	require.Error(t, err)
	assert.NotErrorIs(t, err, route.ErrRouteNotFound)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New("  ", "", nil)
	assert.ErrorIs(t, err, ErrAPIKeyNotSet)

	c, err := New("AIza-test", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "google", c.Name())
}
