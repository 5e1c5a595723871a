// Package gmaps adapts Google Directions results to normalized routes.
package gmaps

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

// ErrAPIKeyNotSet is returned by New when no key is configured.
var ErrAPIKeyNotSet = errors.New("google maps api key is not set")

// directionsAPI is the subset of *maps.Client used here.
type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// Client wraps the Google Maps API client.
type Client struct {
	api      directionsAPI
	language string
	logger   *zap.Logger
}

// New creates a client. baseURL is optional and only used to point at a
// test server.
func New(apiKey, baseURL string, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}

	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}
	c, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return &Client{api: c, language: "ko", logger: logger.Named("gmaps")}, nil
}

func (c *Client) Name() string { return "google" }

// Route fetches directions for mode and normalizes the first route.
func (c *Client) Route(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error) {
	req := &maps.DirectionsRequest{
		Origin:      origin.String(),
		Destination: destination.String(),
		Mode:        travelMode(mode),
		Language:    c.language,
		Units:       maps.UnitsMetric,
	}

	routes, _, err := c.api.Directions(ctx, req)
	if err != nil {
		if isNotFound(err) {
			return nil, &route.RouteNotFoundError{Mode: mode, ResultMsg: err.Error()}
		}
		c.logger.Warn("directions request failed", zap.String("mode", string(mode)), zap.Error(err))
		return nil, fmt.Errorf("google directions: %w", err)
	}

	r, err := Convert(mode, routes)
	if err != nil {
		return nil, err
	}
	r.Provider = c.Name()
	c.logger.Info("route normalized",
		zap.String("mode", string(mode)),
		zap.Int("steps", len(r.Steps)),
		zap.Int("coordinates", r.Diagnostics.CoordinateCount))
	return r, nil
}

func travelMode(mode route.Mode) maps.Mode {
	switch mode {
	case route.ModeWalking:
		return maps.TravelModeWalking
	case route.ModeTransit:
		return maps.TravelModeTransit
	default:
		return maps.TravelModeDriving
	}
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ZERO_RESULTS") || strings.Contains(msg, "NOT_FOUND")
}
