package logger

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/navigation"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
)

func readTrips(t *testing.T, dir string) [][][]string {
	t.Helper()
	files, err := filepath.Glob(filepath.Join(dir, "trip_*.csv"))
	require.NoError(t, err)
	var out [][][]string
	for _, name := range files {
		f, err := os.Open(name)
		require.NoError(t, err)
		rows, err := csv.NewReader(f).ReadAll()
		f.Close()
		require.NoError(t, err)
		out = append(out, rows)
	}
	return out
}

func event(typ navigation.EventType, state navigation.State) navigation.Event {
	acc := 8.0
	step := route.Step{Index: 0, Instruction: "출발합니다"}
	return navigation.Event{
		Type:      typ,
		SessionID: "s-1",
		Snapshot: navigation.Snapshot{
			State:             state,
			Mode:              route.ModeWalking,
			CurrentStep:       &step,
			StepCount:         2,
			RemainingDistance: 512.4,
			RemainingTime:     6,
			Destination:       navigation.Destination{Name: "서울역"},
			LastSample: &position.Sample{
				Coordinate: geo.Coordinate{Lat: 37.5547, Lng: 126.9707},
				Accuracy:   &acc,
			},
		},
	}
}

func TestRecordsTrip(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(Config{Enabled: true, Path: dir, IntervalMs: 1000}, nil)
	l.now = func() time.Time { return clock }

	l.SessionEvent(event(navigation.EventStarted, navigation.StateActive))
	clock = clock.Add(200 * time.Millisecond)
	l.SessionEvent(event(navigation.EventUpdated, navigation.StateActive)) // throttled
	clock = clock.Add(time.Second)
	l.SessionEvent(event(navigation.EventUpdated, navigation.StateActive))
	clock = clock.Add(100 * time.Millisecond)
	l.SessionEvent(event(navigation.EventArrived, navigation.StateCompleted))

	trips := readTrips(t, dir)
	require.Len(t, trips, 1)
	rows := trips[0]
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeader, rows[0])
	assert.Equal(t, "started", rows[1][2])
	assert.Equal(t, "updated", rows[2][2])
	assert.Equal(t, "arrived", rows[3][2])
	assert.Equal(t, "completed", rows[3][3])
	assert.Equal(t, "37.554700", rows[1][10])
	assert.Equal(t, "8.0", rows[1][12])
	assert.Equal(t, "", rows[1][13])
	assert.Equal(t, "512", rows[1][8])

	assert.Nil(t, l.file, "terminal events close the trip file")
}

func TestNewTripRotates(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	l := New(Config{Enabled: true, Path: dir}, nil)
	l.now = func() time.Time { return clock }

	l.SessionEvent(event(navigation.EventStarted, navigation.StateActive))
	clock = clock.Add(time.Minute)
	l.SessionEvent(event(navigation.EventStarted, navigation.StateActive))
	l.Close()

	assert.Len(t, readTrips(t, dir), 2)
}

func TestDisabled(t *testing.T) {
	dir := t.TempDir()
	l := New(Config{Path: dir}, nil)
	assert.False(t, l.IsEnabled())
	l.SessionEvent(event(navigation.EventStarted, navigation.StateActive))
	assert.Empty(t, readTrips(t, dir))

	l.SetEnabled(true)
	l.SessionEvent(event(navigation.EventStarted, navigation.StateActive))
	l.SetEnabled(false)
	assert.Nil(t, l.file)
	assert.Len(t, readTrips(t, dir), 1)
}

func TestDefaults(t *testing.T) {
	l := New(Config{}, nil)
	assert.Equal(t, defaultDir, l.dir)
	assert.Equal(t, time.Second, l.interval)
}
