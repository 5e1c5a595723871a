package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/navigation"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
	"github.com/shaunagostinho/navcore/internal/voice"
)

type stubPlanner struct {
	err error
}

func (p *stubPlanner) Plan(_ context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error) {
	if p.err != nil {
		return nil, p.err
	}
	r := route.Estimate(mode, origin, destination)
	r.Steps[0].Coordinates = &geo.Coordinate{Lat: origin.Lat, Lng: origin.Lng}
	return r, nil
}

type testEnv struct {
	srv    *Server
	http   *httptest.Server
	nav    *navigation.Manager
	push   *position.PushSource
	cancel context.CancelFunc
}

func newTestEnv(t *testing.T, planner navigation.Planner) *testEnv {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	push := position.NewPushSource()
	require.NoError(t, push.Connect())
	feed := position.NewFeed(push, nil)
	go func() { _ = feed.Run(ctx) }()

	cfg := DefaultConfig()
	cfg.path = t.TempDir() + "/config.yaml"

	srv := New(Options{Config: cfg, Feed: feed, Push: push})
	announcer := voice.NewAnnouncer(srv, true, nil)
	nav := navigation.NewManager(navigation.ManagerConfig{Planner: planner, Feed: feed, Voice: announcer})
	nav.AddListener(srv)
	srv.SetNavigator(nav)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		cancel()
	})
	return &testEnv{srv: srv, http: hs, nav: nav, push: push, cancel: cancel}
}

func (e *testEnv) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(e.http.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

const startJSON = `{"mode":"walking","origin":{"lat":37.5665,"lng":126.978},"destination":{"name":"서울역","lat":37.5547,"lng":126.9707}}`

func TestStartStopOverHTTP(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})

	resp := env.post(t, "/api/navigation/start", startJSON)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decodeJSON[map[string]any](t, resp)
	assert.Equal(t, "active", snap["state"])
	assert.Equal(t, "walking", snap["mode"])

	resp = env.post(t, "/api/navigation/start", startJSON)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_active", decodeJSON[ErrorBody](t, resp).Code)

	get, err := http.Get(env.http.URL + "/api/navigation")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, "active", decodeJSON[map[string]any](t, get)["state"])

	resp = env.post(t, "/api/navigation/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "stopped", decodeJSON[map[string]any](t, resp)["state"])
}

func TestStartErrors(t *testing.T) {
	notFound := &route.RouteNotFoundError{Mode: route.ModeDriving, ResultCode: 104}
	env := newTestEnv(t, &stubPlanner{err: notFound})

	resp := env.post(t, "/api/navigation/start", startJSON)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "route_not_found", decodeJSON[ErrorBody](t, resp).Code)

	resp = env.post(t, "/api/navigation/start", `{"mode":"flying","origin":{"lat":1,"lng":1},"destination":{"lat":1,"lng":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_mode", decodeJSON[ErrorBody](t, resp).Code)

	resp = env.post(t, "/api/navigation/start", `{"destination":{"lat":95,"lng":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_coordinate", decodeJSON[ErrorBody](t, resp).Code)

	resp = env.post(t, "/api/navigation/start", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_coordinate", decodeJSON[ErrorBody](t, resp).Code)
	assert.False(t, env.nav.Snapshot().IsActive)

	resp = env.post(t, "/api/navigation/start", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRouteGeoJSON(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})

	resp, err := http.Get(env.http.URL + "/api/navigation/route")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	env.post(t, "/api/navigation/start", startJSON)
	resp, err = http.Get(env.http.URL + "/api/navigation/route")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/geo+json", resp.Header.Get("Content-Type"))

	fc := decodeJSON[struct {
		Type     string    `json:"type"`
		BBox     []float64 `json:"bbox"`
		Features []struct {
			Geometry struct {
				Type string `json:"type"`
			} `json:"geometry"`
		} `json:"features"`
	}](t, resp)
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.BBox, 4)
	require.NotEmpty(t, fc.Features)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	resp := env.post(t, "/api/route/preview", `{"mode":"driving","origin":{"lat":37.5665,"lng":126.978},"destination":{"lat":37.5547,"lng":126.9707}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	r := decodeJSON[route.NormalizedRoute](t, resp)
	assert.Equal(t, route.ModeDriving, r.Mode)
	assert.True(t, r.Estimated)
	assert.Equal(t, navigation.StateIdle, env.nav.Snapshot().State)
}

func TestVoiceToggle(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	resp := env.post(t, "/api/voice", `{"enabled":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, decodeJSON[VoiceBody](t, resp).Enabled)
	assert.False(t, env.nav.VoiceEnabled())
	assert.False(t, env.srv.cfg.VoiceEnabled())
}

func TestConfigAPI(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	env.srv.cfg.Routing.KakaoAPIKey = "secret-key"

	resp, err := http.Get(env.http.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "secret-key")
	assert.Contains(t, buf.String(), `"provider":"kakao"`)

	post := env.post(t, "/api/config", `{"voice":{"enabled":false},"routing":{"priority":"TIME"}}`)
	require.Equal(t, http.StatusOK, post.StatusCode)
	assert.Equal(t, "TIME", env.srv.cfg.Routing.Priority)
	assert.Equal(t, "secret-key", env.srv.cfg.Routing.KakaoAPIKey)
	assert.False(t, env.nav.VoiceEnabled())

	req, err := http.NewRequest(http.MethodDelete, env.http.URL+"/api/config", nil)
	require.NoError(t, err)
	del, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, del.StatusCode)
}

func dialWS(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads frames until match returns true or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(Frame) bool) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f Frame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func TestWebSocketSession(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	conn := dialWS(t, env)

	initial := readUntil(t, conn, func(f Frame) bool { return f.Snapshot != nil })
	assert.Equal(t, navigation.StateIdle, initial.Snapshot.State)
	require.NotNil(t, initial.Voice)
	assert.True(t, initial.Voice.Enabled)

	env.post(t, "/api/navigation/start", startJSON)
	speak := readUntil(t, conn, func(f Frame) bool { return f.Speak != nil })
	assert.Equal(t, voice.Lang, speak.Speak.Lang)
	assert.NotEmpty(t, speak.Speak.Text)

	// The browser reports a position next to the destination.
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "position", "lat": 37.5548, "lng": 126.9707, "accuracy": 5, "timestamp": time.Now().UnixMilli(),
	}))
	arrived := readUntil(t, conn, func(f Frame) bool {
		return f.Event != nil && f.Event.Type == navigation.EventArrived
	})
	assert.Equal(t, navigation.StateCompleted, arrived.Event.Snapshot.State)
	assert.Contains(t, arrived.Event.Announcement, "서울역")
}

func TestWebSocketPositionError(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	stop, err := env.srv.mirrorFeed()
	require.NoError(t, err)
	defer stop()

	conn := dialWS(t, env)
	readUntil(t, conn, func(f Frame) bool { return f.Snapshot != nil })

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "positionError", "code": 2, "message": "Position unavailable"}))
	f := readUntil(t, conn, func(f Frame) bool { return f.PositionError != nil })
	assert.Equal(t, position.PositionUnavailable.String(), f.PositionError.Code)
	assert.Equal(t, position.PositionUnavailable.Message(), f.PositionError.Message)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "position", "lat": 37.5, "lng": 127.0, "speed": 10}))
	f = readUntil(t, conn, func(f Frame) bool { return f.Position != nil })
	require.NotNil(t, f.Position.Speed)
	assert.InDelta(t, 36, *f.Position.Speed, 1e-9)
}

func TestRunShutsDown(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	env.srv.cfg.Server.ListenAddr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.srv.Run(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestSpeakerFrames(t *testing.T) {
	env := newTestEnv(t, &stubPlanner{})
	conn := dialWS(t, env)
	readUntil(t, conn, func(f Frame) bool { return f.Snapshot != nil })

	require.Eventually(t, func() bool { return env.srv.clientCount() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, env.srv.CancelAll())
	f := readUntil(t, conn, func(f Frame) bool { return f.SpeakCancel })
	assert.NotZero(t, f.Stamp)
}
