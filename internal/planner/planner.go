// Package planner resolves routes through a cache, a routing provider and
// the straight-line estimate, in that order.
package planner

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/route"
)

// Provider fetches a normalized route from a routing service.
type Provider interface {
	Name() string
	Route(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error)
}

// Cache stores provider routes.
type Cache interface {
	Get(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, bool, error)
	Put(ctx context.Context, origin, destination geo.Coordinate, r *route.NormalizedRoute) error
}

// Planner is safe for concurrent use.
type Planner struct {
	provider Provider
	cache    Cache
	logger   *zap.Logger
}

// New creates a planner. provider and cache may be nil; without a provider
// every plan is an estimate.
func New(provider Provider, cache Cache, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{provider: provider, cache: cache, logger: logger.Named("planner")}
}

// Plan returns a route from origin to destination. A RouteNotFoundError from
// the provider is returned as is; any other provider failure degrades to
// route.Estimate.
func (p *Planner) Plan(ctx context.Context, mode route.Mode, origin, destination geo.Coordinate) (*route.NormalizedRoute, error) {
	if !origin.Valid() {
		return nil, fmt.Errorf("plan %s: origin %v: %w", mode, origin, geo.ErrInvalidCoordinate)
	}
	if !destination.Valid() {
		return nil, fmt.Errorf("plan %s: destination %v: %w", mode, destination, geo.ErrInvalidCoordinate)
	}

	if p.cache != nil {
		r, ok, err := p.cache.Get(ctx, mode, origin, destination)
		switch {
		case err != nil:
			p.logger.Warn("route cache get failed", zap.Error(err))
		case ok:
			p.logger.Debug("route cache hit", zap.String("mode", string(mode)))
			return r, nil
		}
	}

	if p.provider == nil {
		p.logger.Info("no routing provider configured, using estimate", zap.String("mode", string(mode)))
		return route.Estimate(mode, origin, destination), nil
	}

	r, err := p.provider.Route(ctx, mode, origin, destination)
	if err != nil {
		if errors.Is(err, route.ErrRouteNotFound) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("plan %s: %w", mode, ctxErr)
		}
		p.logger.Warn("routing provider failed, using straight-line estimate",
			zap.String("provider", p.provider.Name()),
			zap.String("mode", string(mode)),
			zap.Error(err))
		return route.Estimate(mode, origin, destination), nil
	}

	if p.cache != nil {
		if err := p.cache.Put(ctx, origin, destination, r); err != nil {
			p.logger.Warn("route cache put failed", zap.Error(err))
		}
	}
	return r, nil
}
