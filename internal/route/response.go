package route

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Response is a deserialized Kakao Mobility directions response. Driving,
// walking and transit share this shape; fields a mode does not use stay zero.
type Response struct {
	TransID string  `json:"trans_id,omitempty"`
	Routes  []Route `json:"routes"`
}

// Route is one alternative in the provider's route list.
type Route struct {
	ResultCode int       `json:"result_code"`
	ResultMsg  string    `json:"result_msg"`
	Summary    Summary   `json:"summary"`
	Sections   []Section `json:"sections"`
}

// Point is a provider x (lng) / y (lat) pair.
type Point struct {
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

// Summary carries route totals. Duration is in seconds.
type Summary struct {
	Origin      Point   `json:"origin"`
	Destination Point   `json:"destination"`
	Distance    float64 `json:"distance"`
	Duration    float64 `json:"duration"`
	Fare        *Fare   `json:"fare,omitempty"`
}

// Fare is {taxi, toll} for driving and {regular} for transit.
type Fare struct {
	Taxi    *int         `json:"taxi,omitempty"`
	Toll    *int         `json:"toll,omitempty"`
	Regular *RegularFare `json:"regular,omitempty"`
}

// RegularFare is the transit fare. The provider sends either a bare number
// or an object with totalFare.
type RegularFare struct {
	TotalFare int `json:"totalFare"`
}

func (f *RegularFare) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}
	if data[0] != '{' {
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("decode regular fare: %w", err)
		}
		f.TotalFare = int(n)
		return nil
	}
	var obj struct {
		TotalFare float64 `json:"totalFare"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("decode regular fare: %w", err)
	}
	f.TotalFare = int(obj.TotalFare)
	return nil
}

// Section is a contiguous part of a route grouping guides and road geometry.
type Section struct {
	Distance  float64    `json:"distance"`
	Duration  float64    `json:"duration"`
	Bound     *Bound     `json:"bound,omitempty"`
	Transport *Transport `json:"transport,omitempty"`
	Roads     []Road     `json:"roads,omitempty"`
	Guides    []Guide    `json:"guides,omitempty"`
}

type Bound struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Transport describes the vehicle of a transit section (BUS, SUBWAY, WALK).
type Transport struct {
	Type string  `json:"type"`
	Name string  `json:"name,omitempty"`
	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
}

// Road is one drivable/walkable segment. Vertexes alternate lng, lat.
type Road struct {
	Name         string    `json:"name"`
	Distance     float64   `json:"distance"`
	Duration     float64   `json:"duration"`
	TrafficSpeed float64   `json:"traffic_speed"`
	TrafficState int       `json:"traffic_state"`
	Vertexes     []float64 `json:"vertexes"`
}

// Guide is a maneuver instruction tied to a point.
type Guide struct {
	Name              string   `json:"name"`
	X                 *float64 `json:"x,omitempty"`
	Y                 *float64 `json:"y,omitempty"`
	Distance          float64  `json:"distance"`
	Duration          float64  `json:"duration"`
	Type              int      `json:"type"`
	Guidance          string   `json:"guidance"`
	RoadIndex         *int     `json:"road_index,omitempty"`
	Vehicle           *Vehicle `json:"vehicle,omitempty"`
	DepartureStopName string   `json:"departure_stop_name,omitempty"`
	ArrivalStopName   string   `json:"arrival_stop_name,omitempty"`
}

type Vehicle struct {
	Name string `json:"name"`
}

// Decode parses a raw provider body.
func Decode(body []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode directions response: %w", err)
	}
	return &resp, nil
}
