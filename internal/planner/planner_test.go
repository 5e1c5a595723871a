package planner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/kakao"
	"github.com/shaunagostinho/navcore/internal/route"
	"github.com/shaunagostinho/navcore/internal/routecache"
)

var (
	origin      = geo.Coordinate{Lat: 37.566, Lng: 126.978}
	destination = geo.Coordinate{Lat: 37.498, Lng: 127.028}
)

type stubProvider struct {
	calls int
	r     *route.NormalizedRoute
	err   error
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Route(_ context.Context, mode route.Mode, _, _ geo.Coordinate) (*route.NormalizedRoute, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	r := *s.r
	r.Mode = mode
	return &r, nil
}

func providerRoute() *route.NormalizedRoute {
	return &route.NormalizedRoute{
		Provider:      "stub",
		TotalDistance: 8800,
		TotalDuration: 25,
		Steps:         []route.Step{{Instruction: "출발지"}, {Index: 1, Instruction: "목적지"}},
	}
}

func redisCache(t *testing.T) *routecache.RedisCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return routecache.NewRedisCache(client, time.Minute)
}

func TestPlanUsesCache(t *testing.T) {
	prov := &stubProvider{r: providerRoute()}
	p := New(prov, redisCache(t), nil)
	ctx := context.Background()

	first, err := p.Plan(ctx, route.ModeDriving, origin, destination)
	require.NoError(t, err)
	assert.False(t, first.Estimated)

	second, err := p.Plan(ctx, route.ModeDriving, origin, destination)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, prov.calls)

	_, err = p.Plan(ctx, route.ModeWalking, origin, destination)
	require.NoError(t, err)
	assert.Equal(t, 2, prov.calls)
}

func TestPlanRouteNotFoundIsFatal(t *testing.T) {
	prov := &stubProvider{err: &route.RouteNotFoundError{Mode: route.ModeTransit}}
	p := New(prov, nil, nil)

	_, err := p.Plan(context.Background(), route.ModeTransit, origin, destination)
	assert.ErrorIs(t, err, route.ErrRouteNotFound)
}

func TestPlanTransportErrorFallsBackToEstimate(t *testing.T) {
	for _, provErr := range []error{
		&kakao.TransportError{Op: "transit directions", StatusCode: 503},
		kakao.ErrAPIKeyNotSet,
		errors.New("dial tcp: connection refused"),
	} {
		cache := redisCache(t)
		p := New(&stubProvider{err: provErr}, cache, nil)

		r, err := p.Plan(context.Background(), route.ModeTransit, origin, destination)
		require.NoError(t, err)
		assert.True(t, r.Estimated)
		assert.Equal(t, route.ModeTransit, r.Mode)
		assert.Equal(t, geo.DistanceMeters(origin, destination), r.TotalDistance)

		_, ok, err := cache.Get(context.Background(), route.ModeTransit, origin, destination)
		require.NoError(t, err)
		assert.False(t, ok, "estimates must not be cached")
	}
}

func TestPlanWithoutProvider(t *testing.T) {
	r, err := New(nil, nil, nil).Plan(context.Background(), route.ModeWalking, origin, destination)
	require.NoError(t, err)
	assert.True(t, r.Estimated)
}

func TestPlanCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := New(&stubProvider{err: context.Canceled}, nil, nil)

	_, err := p.Plan(ctx, route.ModeDriving, origin, destination)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPlanRejectsInvalidCoordinates(t *testing.T) {
	p := New(&stubProvider{r: providerRoute()}, nil, nil)
	_, err := p.Plan(context.Background(), route.ModeDriving, geo.Coordinate{Lat: 100}, destination)
	assert.Error(t, err)
}
