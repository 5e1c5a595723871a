package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/kr/pretty"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shaunagostinho/navcore/internal/events"
	"github.com/shaunagostinho/navcore/internal/geo"
	"github.com/shaunagostinho/navcore/internal/gmaps"
	"github.com/shaunagostinho/navcore/internal/kakao"
	triplog "github.com/shaunagostinho/navcore/internal/logger"
	"github.com/shaunagostinho/navcore/internal/navigation"
	"github.com/shaunagostinho/navcore/internal/planner"
	"github.com/shaunagostinho/navcore/internal/position"
	"github.com/shaunagostinho/navcore/internal/route"
	"github.com/shaunagostinho/navcore/internal/routecache"
	"github.com/shaunagostinho/navcore/internal/server"
	"github.com/shaunagostinho/navcore/internal/voice"
	"github.com/shaunagostinho/navcore/web"
)

func main() {
	configPath := flag.String("config", "/etc/navcore/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run with a simulated GPS that follows the active route")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	planMode := flag.String("plan", "", "Plan one route (walking, transit, driving), print it and exit")
	from := flag.String("from", "", "Origin for -plan as lat,lng")
	to := flag.String("to", "", "Destination for -plan as lat,lng")
	flag.Parse()

	// Config logs go to a bootstrap logger until APP_ENV is known.
	boot, _ := zap.NewDevelopment()
	cfg := server.LoadConfig(*configPath, boot)
	boot.Sync()

	log, err := newLogger(cfg.Server.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if *demo {
		cfg.GPS.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plan, closeCache := buildPlanner(ctx, cfg, log)
	defer closeCache()

	if *planMode != "" {
		if err := runPlan(ctx, plan, *planMode, *from, *to); err != nil {
			log.Error("plan failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	log.Info("navcore starting", zap.String("env", cfg.Server.Env))

	// Position source
	var (
		source   position.Source
		push     *position.PushSource
		follower navigation.PathFollower
	)
	switch cfg.GPS.Type {
	case "nmea":
		source = position.NewNMEA(position.NMEAConfig{
			PortPath: cfg.GPS.PortPath,
			BaudRate: cfg.GPS.BaudRate,
		}, log)
	case "demo":
		sim := position.NewSimulator(geo.Coordinate{Lat: cfg.GPS.DemoLat, Lng: cfg.GPS.DemoLng}, cfg.GPS.DemoSpeed, time.Second)
		source, follower = sim, sim
	case "disabled":
	default:
		push = position.NewPushSource()
		source = push
	}
	feed := position.NewFeed(source, log)

	srv := server.New(server.Options{
		Config: cfg,
		Feed:   feed,
		Push:   push,
		WebFS:  web.FS,
		Logger: log,
	})
	announcer := voice.NewAnnouncer(voice.Multi{srv, voice.NewLogSpeaker(log.Named("voice"))}, cfg.Voice.Enabled, log)

	nav := navigation.NewManager(navigation.ManagerConfig{
		Planner:  plan,
		Feed:     feed,
		Voice:    announcer,
		Follower: follower,
		Logger:   log,
	})
	srv.SetNavigator(nav)
	nav.AddListener(srv)

	trips := triplog.New(triplog.Config{
		Enabled:    cfg.Logging.Enabled,
		Path:       cfg.Logging.Path,
		IntervalMs: cfg.Logging.Interval,
	}, log)
	defer trips.Close()
	nav.AddListener(trips)

	g, ctx := errgroup.WithContext(ctx)

	if len(cfg.Events.Brokers) > 0 {
		pub, err := events.NewPublisher(events.Config{
			Brokers:     cfg.Events.Brokers,
			Topic:       cfg.Events.Topic,
			SkipUpdates: cfg.Events.SkipUpdates,
		}, log)
		if err != nil {
			log.Warn("event publishing disabled", zap.Error(err))
		} else {
			nav.AddListener(pub)
			g.Go(func() error { return pub.Run(ctx) })
		}
	}

	if source != nil {
		// Connect in the background; the server works while the source retries.
		g.Go(func() error {
			connectWithRetry(ctx, log, source, 10)
			return nil
		})
		g.Go(func() error { return feed.Run(ctx) })
		defer source.Close()
	}

	g.Go(func() error {
		defer nav.Stop()
		return srv.Run(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("navcore exited", zap.Error(err))
		os.Exit(1)
	}
	log.Info("navcore stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	var (
		l   *zap.Logger
		err error
	)
	if env == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return nil, err
	}
	return l.Named("navcore"), nil
}

// buildPlanner wires the configured provider and the optional Redis cache.
// Without a usable provider every plan falls back to the straight-line
// estimate.
func buildPlanner(ctx context.Context, cfg *server.Config, log *zap.Logger) (*planner.Planner, func()) {
	var provider planner.Provider
	switch cfg.Routing.Provider {
	case "kakao":
		c := kakao.New(kakao.Config{
			APIKey:   cfg.Routing.KakaoAPIKey,
			BaseURL:  cfg.Routing.KakaoBaseURL,
			Timeout:  time.Duration(cfg.Routing.TimeoutMs) * time.Millisecond,
			Priority: cfg.Routing.Priority,
		}, log)
		if c.KeyConfigured() {
			provider = c
		} else {
			log.Warn("KAKAO_MOBILITY_API_KEY is not set, routes will be estimated")
		}
	case "google":
		c, err := gmaps.New(cfg.Routing.GoogleAPIKey, cfg.Routing.GoogleBaseURL, log)
		if err != nil {
			log.Warn("google routing unavailable, routes will be estimated", zap.Error(err))
		} else {
			provider = c
		}
	case "estimate":
	default:
		log.Warn("unknown routing provider, routes will be estimated", zap.String("provider", cfg.Routing.Provider))
	}

	closeCache := func() {}
	var cache planner.Cache
	if addr := cfg.Cache.RedisAddr; addr != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		rc, client, err := routecache.Dial(dialCtx, addr, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
		cancel()
		if err != nil {
			log.Warn("route cache disabled", zap.Error(err))
		} else {
			cache = rc
			closeCache = func() { client.Close() }
			log.Info("route cache enabled", zap.String("addr", addr))
		}
	}

	return planner.New(provider, cache, log), closeCache
}

func runPlan(ctx context.Context, p *planner.Planner, modeArg, fromArg, toArg string) error {
	mode, err := route.ParseMode(modeArg)
	if err != nil {
		return err
	}
	origin, err := parseCoordinate(fromArg)
	if err != nil {
		return fmt.Errorf("-from: %w", err)
	}
	destination, err := parseCoordinate(toArg)
	if err != nil {
		return fmt.Errorf("-to: %w", err)
	}
	r, err := p.Plan(ctx, mode, origin, destination)
	if err != nil {
		return err
	}
	pretty.Println(r)
	fmt.Printf("%s, %s\n", geo.FormatDistance(r.TotalDistance), geo.FormatDuration(r.TotalDuration))
	return nil
}

func parseCoordinate(s string) (geo.Coordinate, error) {
	lat, lng, ok := strings.Cut(s, ",")
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("want lat,lng, got %q", s)
	}
	var c geo.Coordinate
	var err error
	if c.Lat, err = strconv.ParseFloat(strings.TrimSpace(lat), 64); err != nil {
		return geo.Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	if c.Lng, err = strconv.ParseFloat(strings.TrimSpace(lng), 64); err != nil {
		return geo.Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("%v: %w", c, geo.ErrInvalidCoordinate)
	}
	return c, nil
}

// connectable is satisfied by every position.Source.
type connectable interface {
	Name() string
	Connect() error
}

// connectWithRetry attempts to connect with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
func connectWithRetry(ctx context.Context, log *zap.Logger, c connectable, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0
	log = log.With(zap.String("source", c.Name()))

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.Connect(); err != nil {
			attempt++
			if attempt <= maxAttempts {
				log.Warn("connect failed",
					zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts),
					zap.Duration("retry_in", delay), zap.Error(err))
			} else {
				log.Warn("connect failed",
					zap.Int("attempt", attempt), zap.Duration("retry_in", delay), zap.Error(err))
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}

			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
		} else {
			log.Info("connected", zap.Int("attempt", attempt+1))
			return
		}
	}
}
