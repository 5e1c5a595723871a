package position

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/navcore/internal/geo"
)

const nmeaStream = `$GPGSV,3,1,11,03,03,111,00,04,15,270,00,06,01,010,00,13,06,292,00*74
$GPRMC,123519.00,A,3733.9600,N,12658.6800,E,0.5,54.7,140326,,,A*6F
$GPGGA,123519.00,3733.9600,N,12658.6800,E,1,08,0.9,38.0,M,18.0,M,,*5F
$GPRMC,123520.00,V,,,,,,,140326,,,N*78
$GPGGA,123520.00,,,,,0,00,99.99,,,,,,*61
$GNRMC,123521.00,A,3329.8800,S,07038.9600,W,10.0,180.0,140326,,,A*00
$GNRMC,123521.00,A,3329.8800,S,07038.9600,W,10.0,180.0,140326,,,A*7B
$GNGGA,123521.00,3329.8800,S,07038.9600,W,1,10,1.2,520.0,M,,M,,*68
`

func TestNMEARead(t *testing.T) {
	n := NewNMEA(NMEAConfig{PortPath: "/dev/null"}, nil)
	_, err := n.Read()
	assert.ErrorIs(t, err, ErrPositionUnavailable, "read before connect")

	n.attach(io.NopCloser(strings.NewReader(nmeaStream)))

	s, err := n.Read()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.InDelta(t, 37.566, s.Coordinate.Lat, 1e-9)
	assert.InDelta(t, 126.978, s.Coordinate.Lng, 1e-9)
	require.NotNil(t, s.Accuracy)
	assert.InDelta(t, 4.5, *s.Accuracy, 1e-9)
	assert.InDelta(t, 0.5*1.852, *s.Speed, 1e-9)
	assert.Equal(t, time.Date(2026, 3, 14, 12, 35, 19, 0, time.UTC), s.Timestamp)

	_, err = n.Read()
	assert.ErrorIs(t, err, ErrPositionUnavailable, "void RMC")

	// The sentence with a bad checksum is skipped.
	s, err = n.Read()
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.InDelta(t, -33.498, s.Coordinate.Lat, 1e-9)
	assert.InDelta(t, -70.649333, s.Coordinate.Lng, 1e-6)
	assert.InDelta(t, 6.0, *s.Accuracy, 1e-9)

	s, err = n.Read()
	assert.NoError(t, err)
	assert.Nil(t, s, "stream exhausted")

	assert.NoError(t, n.Close())
	assert.NoError(t, n.Close())
}

func TestNMEAHelpers(t *testing.T) {
	assert.True(t, validateNMEAChecksum("$GPRMC,123520.00,V,,,,,,,140326,,,N*78"))
	assert.False(t, validateNMEAChecksum("$GPRMC,123520.00,V,,,,,,,140326,,,N*79"))
	assert.False(t, validateNMEAChecksum("$GPRMC,123520.00"))

	assert.InDelta(t, 37.566, parseNMEACoord("3733.9600", "N"), 1e-9)
	assert.InDelta(t, -126.978, parseNMEACoord("12658.6800", "W"), 1e-9)
	assert.False(t, geo.Coordinate{Lat: parseNMEACoord("", "N")}.Valid())

	assert.Equal(t, time.Date(2026, 3, 14, 12, 35, 19, 500_000_000, time.UTC), parseNMEATime("140326", "123519.50"))
	assert.True(t, parseNMEATime("", "123519").IsZero())
}

func TestPushSource(t *testing.T) {
	p := NewPushSource()
	p.window = 10 * time.Millisecond
	require.NoError(t, p.Connect())

	s, err := p.Read()
	assert.NoError(t, err)
	assert.Nil(t, s)

	p.Push(Sample{Coordinate: geo.Coordinate{Lat: 37.5, Lng: 127}})
	p.PushError(PermissionDenied, "User denied Geolocation")
	p.PushError(Code(42), "")

	s, err = p.Read()
	require.NoError(t, err)
	assert.Equal(t, 37.5, s.Coordinate.Lat)

	_, err = p.Read()
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Contains(t, err.Error(), "User denied Geolocation")

	_, err = p.Read()
	assert.ErrorIs(t, err, ErrPositionUnavailable)
}

func TestPushSourceDropsOldestWhenFull(t *testing.T) {
	p := NewPushSource()
	p.window = 10 * time.Millisecond
	for i := 0; i < 20; i++ {
		p.Push(Sample{Coordinate: geo.Coordinate{Lat: float64(i), Lng: 0}})
	}
	s, err := p.Read()
	require.NoError(t, err)
	assert.Equal(t, 4.0, s.Coordinate.Lat)
}

func TestSimulatorFollowsPath(t *testing.T) {
	home := geo.Coordinate{Lat: 37.5, Lng: 127.0}
	sim := NewSimulator(home, 36, time.Second) // 10 m/s
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	sim.now = func() time.Time { return now }
	sim.sleep = func(time.Duration) {}

	s, err := sim.Read()
	require.NoError(t, err)
	assert.Equal(t, home, s.Coordinate)

	a := geo.Coordinate{Lat: 37.5, Lng: 127.0}
	b := geo.Coordinate{Lat: 37.501, Lng: 127.0}
	segment := geo.DistanceMeters(a, b)
	sim.SetPath([]geo.Coordinate{a, b})

	now = now.Add(time.Duration(segment / 2 / 10 * float64(time.Second)))
	s, err = sim.Read()
	require.NoError(t, err)
	assert.InDelta(t, 37.5005, s.Coordinate.Lat, 1e-6)
	assert.Equal(t, now, s.Timestamp)

	now = now.Add(time.Hour)
	s, _ = sim.Read()
	assert.Equal(t, b, s.Coordinate)

	sim.SetPath(nil)
	now = now.Add(time.Hour)
	s, _ = sim.Read()
	assert.Equal(t, b, s.Coordinate, "parked at the last position")
}
