package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/oceanportal/workbench/internal/adapter/raster"
	"github.com/oceanportal/workbench/internal/adapter/vector"
	"github.com/oceanportal/workbench/internal/core/config"
	"github.com/oceanportal/workbench/internal/core/health"
	"github.com/oceanportal/workbench/internal/core/httpclient"
	"github.com/oceanportal/workbench/internal/core/model"
	"github.com/oceanportal/workbench/internal/core/observability"
	"github.com/oceanportal/workbench/internal/core/router"
	"github.com/oceanportal/workbench/internal/core/server"
	"github.com/oceanportal/workbench/internal/feedcache"
	"github.com/oceanportal/workbench/internal/logger"
	"github.com/oceanportal/workbench/internal/mapsurface"
	"github.com/oceanportal/workbench/internal/portal"
	"github.com/oceanportal/workbench/internal/prefs"
	"github.com/oceanportal/workbench/internal/reconcile"
	"github.com/oceanportal/workbench/internal/redisstore"
	"github.com/oceanportal/workbench/internal/session"
	"github.com/oceanportal/workbench/internal/store"
	"github.com/oceanportal/workbench/internal/viewport"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   strings.ToLower(os.Getenv("LOG_CONSOLE")) == "true",
		Component: "workbench",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	observability.ExposeBuildInfo(Version)
	appLog.Info("starting workbench",
		"addr", cfg.Addr,
		"version", Version,
		"portal", cfg.PortalAPIURL)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outbound := httpclient.NewOutbound()
	probe := httpclient.NewProbe()

	sessions, err := session.NewManager(cfg.SessionSecret, cfg.Env, appLog)
	if err != nil {
		appLog.Error("session setup failed", "err", err)
		return 1
	}

	st := store.New()
	st.SetBaseMap(model.BaseMap{URL: cfg.DefaultBaseMapURL, Option: cfg.DefaultBaseMapOption})

	surface := mapsurface.NewSession(1280, 720, model.Viewport{
		Center: model.LatLng{Lat: -18.0, Lng: 178.0},
		Zoom:   4,
	})
	surface.FinishLoad()

	rasters := raster.New(appLog, outbound, probe, cfg.TileRetryLimit, cfg.TileRetryDelay)
	vectors := vector.New(appLog, outbound,
		float64(cfg.ClusterRadiusPx), float64(cfg.ClusterRadiusBuoyPx), cfg.DisableClusteringZoom)

	checks := map[string]health.Check{}

	var prefStore *prefs.Store
	if cfg.RedisAddr != "" {
		cli, err := redisstore.New(ctx, cfg.RedisAddr, redisstore.WithDialTimeout(cfg.CacheOpTimeout))
		if err != nil {
			// Redis is an enhancement, not a dependency: preferences and
			// feed caching degrade away when it is absent.
			appLog.Warn("redis unavailable, preferences and feed cache disabled", "err", err)
		} else {
			defer func() { _ = cli.Close() }()
			prefStore = prefs.New(cli, cfg.CacheOpTimeout)
			fc := feedcache.New(cli, appLog, cfg.FeedCellRes, cfg.FeedTTLDefault, cfg.FeedTTLOvr)
			vectors.UseCache(fc)
			checks["redis"] = func(ctx context.Context) error {
				_, err := cli.Get(ctx, "readyz-probe")
				return err
			}

			if cfg.Invalidation.Enabled && cfg.Invalidation.Driver == "kafka" {
				consumer, err := feedcache.NewConsumer(feedcache.ConsumerConfig{
					Brokers: strings.Split(cfg.Invalidation.Brokers, ","),
					Topic:   cfg.Invalidation.Topic,
					GroupID: cfg.Invalidation.GroupID,
				}, appLog, fc)
				if err != nil {
					appLog.Error("invalidation consumer setup failed", "err", err)
					return 1
				}
				go func() {
					if err := consumer.Start(ctx); err != nil {
						appLog.Error("invalidation consumer exited", "err", err)
					}
				}()
			}
		}
	}

	view := viewport.New(appLog, st, surface, cfg.ViewportMaxAttempts, cfg.BoundsEpsilonDeg)
	view.Start(ctx)

	notices := router.NewNotices(32)
	rec := reconcile.New(appLog, st, surface, rasters, vectors, view, reconcile.OverlayURLs{
		EEZ:       cfg.OverlayEEZURL,
		Coastline: cfg.OverlayCoastlineURL,
		PlaceName: cfg.OverlayPlaceNameURL,
	})
	rec.OnWarning = func(msg string) { notices.Push("warning", msg) }
	rec.OnPopup = func(p raster.Popup) {
		notices.Push("info", p.Name+": "+p.Value)
	}
	go rec.Run(ctx)

	api := &router.API{
		Logger:   appLog,
		Store:    st,
		Surface:  surface,
		View:     view,
		Vectors:  vectors,
		Portal:   portal.NewClient(cfg.PortalAPIURL, outbound, appLog),
		Sessions: sessions,
		Prefs:    prefStore,
		Notices:  notices,
	}

	if err := server.Run(ctx, cfg, appLog, api, checks); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
