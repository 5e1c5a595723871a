// Package kakao is a client for the Kakao Mobility directions APIs.
package kakao

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

// DefaultBaseURL is the production directions endpoint.
const DefaultBaseURL = "https://apis-navi.kakaomobility.com"

const maxBodyBytes = 8 << 20

// Config configures a Client.
type Config struct {
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
	Priority string
}

// Client fetches directions and normalizes them. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	apiKey   string
	baseURL  string
	priority string
	backoff  time.Duration
	logger   *zap.Logger
}

// New creates a client. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Priority == "" {
		cfg.Priority = "RECOMMEND"
	}
	return &Client{
		http:     &http.Client{Timeout: cfg.Timeout},
		apiKey:   strings.TrimSpace(cfg.APIKey),
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		priority: cfg.Priority,
		backoff:  initialBackoff,
		logger:   logger.Named("kakao"),
	}
}

// Name identifies the provider on normalized routes.
func (c *Client) Name() string { return "kakao" }

// KeyConfigured reports whether a non-placeholder API key is set.
func (c *Client) KeyConfigured() bool {
	return c.apiKey != "" && c.apiKey != placeholderAPIKey
}

// Route fetches and normalizes directions for mode.
func (c *Client) Route(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error) {
	resp, err := c.Directions(ctx, mode, origin, destination)
	if err != nil {
		return nil, err
	}
	r, err := route.Normalize(mode, resp)
	if err != nil {
		return nil, err
	}
	r.Provider = c.Name()
	c.logger.Info("route normalized",
		zap.String("mode", string(mode)),
		zap.Int("steps", len(r.Steps)),
		zap.Int("coordinates", r.Diagnostics.CoordinateCount),
		zap.Int("invalid_coordinates", r.Diagnostics.InvalidCoordinateCount),
		zap.Float64("distance_m", r.TotalDistance),
		zap.Int("duration_min", r.TotalDuration))
	return r, nil
}

// Directions returns the raw provider response for mode.
func (c *Client) Directions(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.Response, error) {
	if !c.KeyConfigured() {
		return nil, ErrAPIKeyNotSet
	}
	if !origin.Valid() || !destination.Valid() {
		return nil, fmt.Errorf("directions %s: invalid coordinates %v -> %v", mode, origin, destination)
	}

	var (
		op      string
		makeReq func() (*http.Request, error)
	)
	switch mode {
	case route.ModeWalking:
		op = "walking directions"
		body, err := json.Marshal(pointRequest{
			Origin:      pointFrom(origin),
			Destination: pointFrom(destination),
			Priority:    c.priority,
		})
		if err != nil {
			return nil, fmt.Errorf("encode walking request: %w", err)
		}
		makeReq = func() (*http.Request, error) {
			return c.newRequest(ctx, http.MethodPost, c.baseURL+"/v1/waypoints/directions", body)
		}
	case route.ModeTransit:
		op = "transit directions"
		body, err := json.Marshal(pointRequest{
			Origin:      pointFrom(origin),
			Destination: pointFrom(destination),
			Priority:    c.priority,
			Lang:        "ko",
		})
		if err != nil {
			return nil, fmt.Errorf("encode transit request: %w", err)
		}
		makeReq = func() (*http.Request, error) {
			return c.newRequest(ctx, http.MethodPost, c.baseURL+"/v1/directions/transit", body)
		}
	default:
		op = "driving directions"
		q := url.Values{}
		q.Set("origin", origin.ProviderString())
		q.Set("destination", destination.ProviderString())
		q.Set("priority", c.priority)
		q.Set("car_fuel", "GASOLINE")
		q.Set("car_hipass", "false")
		q.Set("alternatives", "false")
		q.Set("road_details", "true")
		q.Set("summary", "false")
		u := c.baseURL + "/v1/directions?" + q.Encode()
		makeReq = func() (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, u, nil)
		}
	}

	start := time.Now()
	raw, err := c.doWithRetry(ctx, op, makeReq)
	if err != nil {
		c.logger.Warn("directions request failed", zap.String("op", op), zap.Error(err))
		return nil, err
	}
	c.logger.Debug("directions response",
		zap.String("op", op), zap.Int("bytes", len(raw)), zap.Duration("took", time.Since(start)))

	resp, err := route.Decode(raw)
	if err != nil {
		return nil, &TransportError{Op: op, Err: err}
	}
	return resp, nil
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type pointRequest struct {
	Origin      point  `json:"origin"`
	Destination point  `json:"destination"`
	Priority    string `json:"priority"`
	Lang        string `json:"lang,omitempty"`
}

func pointFrom(c geo.Coordinate) point { return point{X: c.Lng, Y: c.Lat} }
