// Package server exposes the navigation engine over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/navigation"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
	"github.com/shaunagostinho/navcore/internal/voice"
)

const maxRequestBytes = 64 << 10

// Navigator is the navigation surface the server drives.
type Navigator interface {
	Start(ctx context.Context, req navigation.StartRequest) (navigation.Snapshot, error)
	Stop() navigation.Snapshot
	Snapshot() navigation.Snapshot
	Route() *route.NormalizedRoute
	Preview(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error)
	SetVoiceEnabled(enabled bool)
	VoiceEnabled() bool
}

// PositionWatcher is the feed the server mirrors to clients.
type PositionWatcher interface {
	Watch(onSample func(position.Sample), onError func(error), opts position.Options) (position.Handle, error)
	Unwatch(h position.Handle) bool
}

// Options wires a Server. Push receives browser geolocation and may be nil
// when another source is configured.
type Options struct {
	Config    *Config
	Navigator Navigator
	Feed      PositionWatcher
	Push      *position.PushSource
	WebFS     fs.FS
	Logger    *zap.Logger
}

// Server serves the API and broadcasts navigation frames to WebSocket
// clients. It is a voice.Speaker and a navigation.Listener.
type Server struct {
	cfg    *Config
	nav    Navigator
	feed   PositionWatcher
	push   *position.PushSource
	webFS  fs.FS
	logger *zap.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Snapshot      *navigation.Snapshot `json:"snapshot,omitempty"`
	Event         *navigation.Event    `json:"event,omitempty"`
	Speak         *voice.Utterance     `json:"speak,omitempty"`
	SpeakCancel   bool                 `json:"speakCancel,omitempty"`
	Position      *position.Sample     `json:"position,omitempty"`
	PositionError *ErrorBody           `json:"positionError,omitempty"`
	Voice         *VoiceBody           `json:"voice,omitempty"`
	Stamp         int64                `json:"stamp"` // Unix ms
}

// ErrorBody is the error shape for API responses and position errors.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type VoiceBody struct {
	Enabled bool `json:"enabled"`
}

// inbound is a message from a client.
type inbound struct {
	Type      string   `json:"type"` // "position" or "positionError"
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Accuracy  *float64 `json:"accuracy"`
	Speed     *float64 `json:"speed"` // m/s as reported by the browser
	Heading   *float64 `json:"heading"`
	Timestamp int64    `json:"timestamp"` // Unix ms
	Code      int      `json:"code"`
	Message   string   `json:"message"`
}

// New creates a new Server.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Config == nil {
		opts.Config = DefaultConfig()
	}
	return &Server{
		cfg:     opts.Config,
		nav:     opts.Navigator,
		feed:    opts.Feed,
		push:    opts.Push,
		webFS:   opts.WebFS,
		logger:  opts.Logger.Named("server"),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetNavigator attaches the navigator once it exists. The navigator speaks
// through the server, so it is built after New. Call before Run.
func (s *Server) SetNavigator(nav Navigator) {
	s.nav = nav
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Serve embedded web files
	if s.webFS != nil {
		mux.Handle("/", http.FileServer(http.FS(s.webFS)))
	}

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// Navigation API
	mux.HandleFunc("POST /api/navigation/start", s.handleStart)
	mux.HandleFunc("POST /api/navigation/stop", s.handleStop)
	mux.HandleFunc("GET /api/navigation", s.handleSnapshot)
	mux.HandleFunc("GET /api/navigation/route", s.handleRoute)
	mux.HandleFunc("POST /api/route/preview", s.handlePreview)
	mux.HandleFunc("POST /api/voice", s.handleVoice)

	// Config API
	mux.HandleFunc("/api/config", s.handleConfig)

	return mux
}

// Run starts the HTTP server and mirrors the position feed to clients
// until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if stop, err := s.mirrorFeed(); err != nil {
		s.logger.Warn("position mirror disabled", zap.Error(err))
	} else {
		defer stop()
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	s.logger.Info("listening", zap.String("addr", s.cfg.Server.ListenAddr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// mirrorFeed broadcasts every sample and error of the feed. A permission
// denial ends the mirror along with the feed's watch.
func (s *Server) mirrorFeed() (stop func(), err error) {
	if s.feed == nil {
		return func() {}, nil
	}
	h, err := s.feed.Watch(s.broadcastSample, s.broadcastPositionError, position.Options{HighAccuracy: true})
	if err != nil {
		return nil, err
	}
	return func() { s.feed.Unwatch(h) }, nil
}

// Speak sends an utterance to every client for browser speech synthesis.
func (s *Server) Speak(u voice.Utterance) error {
	s.broadcast(Frame{Speak: &u, Stamp: time.Now().UnixMilli()})
	return nil
}

// CancelAll asks every client to flush its speech queue.
func (s *Server) CancelAll() error {
	s.broadcast(Frame{SpeakCancel: true, Stamp: time.Now().UnixMilli()})
	return nil
}

// SessionEvent broadcasts a navigation event with its snapshot.
func (s *Server) SessionEvent(e navigation.Event) {
	s.broadcast(Frame{Event: &e, Stamp: time.Now().UnixMilli()})
}

func (s *Server) broadcastSample(sample position.Sample) {
	s.broadcast(Frame{Position: &sample, Stamp: time.Now().UnixMilli()})
}

func (s *Server) broadcastPositionError(err error) {
	pe := position.Classify(err)
	s.broadcast(Frame{
		PositionError: &ErrorBody{Code: pe.Code.String(), Message: pe.Code.Message()},
		Stamp:         time.Now().UnixMilli(),
	})
}

func (s *Server) clientCount() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", zap.Error(err))
		return
	}
	conn.SetReadLimit(maxRequestBytes)

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	// Send the current state before joining the broadcast set.
	snap := s.nav.Snapshot()
	initial := Frame{
		Snapshot: &snap,
		Voice:    &VoiceBody{Enabled: s.nav.VoiceEnabled()},
		Stamp:    time.Now().UnixMilli(),
	}
	if data, err := json.Marshal(initial); err == nil {
		client.send <- data
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	s.logger.Info("ws client connected", zap.Int("clients", s.clientCount()))

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			s.clientsMu.Unlock()
			close(client.send)
			s.logger.Info("ws client disconnected", zap.Int("clients", s.clientCount()))
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				break
			}
			s.handleInbound(data)
		}
	}()
}

func (s *Server) handleInbound(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("ignoring malformed ws message", zap.Error(err))
		return
	}
	if s.push == nil {
		return
	}

	switch msg.Type {
	case "position":
		sample := position.Sample{
			Coordinate: geo.Coordinate{Lat: msg.Lat, Lng: msg.Lng},
			Accuracy:   msg.Accuracy,
			Heading:    msg.Heading,
			Timestamp:  time.UnixMilli(msg.Timestamp),
		}
		if msg.Timestamp == 0 {
			sample.Timestamp = time.Now()
		}
		if msg.Speed != nil {
			kph := *msg.Speed * 3.6
			sample.Speed = &kph
		}
		s.push.Push(sample)
	case "positionError":
		s.push.PushError(position.Code(msg.Code), msg.Message)
	default:
		s.logger.Debug("ignoring ws message", zap.String("type", msg.Type))
	}
}

type startBody struct {
	Mode        string          `json:"mode"`
	Origin      *geo.Coordinate `json:"origin"`
	Destination struct {
		Name string  `json:"name"`
		Lat  float64 `json:"lat"`
		Lng  float64 `json:"lng"`
	} `json:"destination"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var body startBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Mode == "" {
		body.Mode = s.defaultMode()
	}
	req := navigation.StartRequest{
		Mode:   route.Mode(body.Mode),
		Origin: body.Origin,
		Destination: navigation.Destination{
			Name:        body.Destination.Name,
			Coordinates: geo.Coordinate{Lat: body.Destination.Lat, Lng: body.Destination.Lng},
		},
	}
	snap, err := s.nav.Start(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.nav.Stop())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.nav.Snapshot())
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	rt := s.nav.Route()
	if rt == nil {
		writeJSON(w, http.StatusNotFound, ErrorBody{Code: "no_route", Message: "no active route"})
		return
	}
	fc := rt.FeatureCollection()
	if b, ok := rt.Bounds(); ok {
		fc.BBox = []float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		http.Error(w, err.Error(), 500)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.Write(data)
}

type previewBody struct {
	Mode        string         `json:"mode"`
	Origin      geo.Coordinate `json:"origin"`
	Destination geo.Coordinate `json:"destination"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var body previewBody
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Mode == "" {
		body.Mode = s.defaultMode()
	}
	rt, err := s.nav.Preview(r.Context(), route.Mode(body.Mode), body.Origin, body.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	var body VoiceBody
	if !decodeBody(w, r, &body) {
		return
	}
	s.nav.SetVoiceEnabled(body.Enabled)
	s.cfg.SetVoiceEnabled(body.Enabled)
	state := VoiceBody{Enabled: s.nav.VoiceEnabled()}
	s.broadcast(Frame{Voice: &state, Stamp: time.Now().UnixMilli()})
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			s.logger.Warn("config save failed", zap.Error(err))
		}
		// Voice is the one setting applied live.
		if on := s.cfg.VoiceEnabled(); on != s.nav.VoiceEnabled() {
			s.nav.SetVoiceEnabled(on)
			s.broadcast(Frame{Voice: &VoiceBody{Enabled: on}, Stamp: time.Now().UnixMilli()})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func (s *Server) defaultMode() string {
	s.cfg.mu.RLock()
	defer s.cfg.mu.RUnlock()
	return s.cfg.Routing.DefaultMode
}

// writeError maps navigation and routing failures to HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, code := http.StatusBadGateway, "route_failed"
	var pe *position.Error
	switch {
	case errors.Is(err, route.ErrRouteNotFound):
		status, code = http.StatusNotFound, "route_not_found"
	case errors.Is(err, navigation.ErrAlreadyActive):
		status, code = http.StatusConflict, "already_active"
	case errors.Is(err, route.ErrUnknownMode):
		status, code = http.StatusBadRequest, "invalid_mode"
	case errors.As(err, &pe):
		status, code = http.StatusServiceUnavailable, pe.Code.String()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, geo.ErrInvalidCoordinate):
		status, code = http.StatusBadRequest, "invalid_coordinate"
	}
	if status >= 500 {
		s.logger.Warn("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, ErrorBody{Code: code, Message: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorBody{Code: "bad_request", Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("marshal frame", zap.Error(err))
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
