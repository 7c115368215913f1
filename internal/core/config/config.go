package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type InvalidationCfg struct {
	Enabled bool
	Driver  string
	Topic   string
	Brokers string
	GroupID string
}

type Config struct {
	Addr     string
	LogLevel string
	Env      string

	// Upstream portal REST API root (token, account, widget, layer metadata).
	PortalAPIURL string

	RedisAddr      string
	CacheOpTimeout time.Duration
	FeedTTLDefault time.Duration
	FeedTTLOvr     map[string]time.Duration
	FeedCellRes    int

	SessionSecret string

	TileRetryLimit int
	TileRetryDelay time.Duration

	ClusterRadiusPx       int
	ClusterRadiusBuoyPx   int
	DisableClusteringZoom float64

	ViewportMaxAttempts int
	BoundsEpsilonDeg    float64

	OverlayEEZURL        string
	OverlayCoastlineURL  string
	OverlayPlaceNameURL  string
	DefaultBaseMapURL    string
	DefaultBaseMapOption string

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	feedTTL := getduration("FEED_TTL_DEFAULT", 5*time.Minute)

	return Config{
		Addr:     getenv("ADDR", ":8090"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Env:      getenv("APP_ENV", "development"),

		PortalAPIURL: getenv("PORTAL_API_URL", "https://ocean-middleware.spc.int/middleware/api"),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		CacheOpTimeout: getduration("CACHE_OP_TIMEOUT", 250*time.Millisecond),
		FeedTTLDefault: feedTTL,
		FeedTTLOvr:     parseDurationMap(getenv("FEED_TTL_OVERRIDES", "")),
		FeedCellRes:    getint("FEED_CELL_RES", 4),

		SessionSecret: getenv("SESSION_SECRET", ""),

		TileRetryLimit: getint("TILE_RETRY_LIMIT", 3),
		TileRetryDelay: getduration("TILE_RETRY_DELAY", 3*time.Second),

		ClusterRadiusPx:       getint("CLUSTER_RADIUS_PX", 35),
		ClusterRadiusBuoyPx:   getint("CLUSTER_RADIUS_BUOY_PX", 30),
		DisableClusteringZoom: getfloat("CLUSTER_DISABLE_ZOOM", 14),

		ViewportMaxAttempts: getint("VIEWPORT_MAX_ATTEMPTS", 15),
		BoundsEpsilonDeg:    getfloat("BOUNDS_EPSILON_DEG", 0.01),

		OverlayEEZURL:        getenv("OVERLAY_EEZ_URL", "https://ocean-plotter.spc.int/plotter/cache/eez/{z}/{x}/{y}.png"),
		OverlayCoastlineURL:  getenv("OVERLAY_COASTLINE_URL", "https://ocean-plotter.spc.int/plotter/cache/coastline/{z}/{x}/{y}.png"),
		OverlayPlaceNameURL:  getenv("OVERLAY_PLACENAMES_URL", "https://ocean-plotter.spc.int/plotter/cache/pacnames/{z}/{x}/{y}.png"),
		DefaultBaseMapURL:    getenv("BASEMAP_URL", "https://ocean-plotter.spc.int/plotter/cache/basemap/{z}/{x}/{y}.png"),
		DefaultBaseMapOption: getenv("BASEMAP_OPTION", "bing"),

		Invalidation: InvalidationCfg{
			Enabled: strings.ToLower(getenv("INVALIDATION_ENABLED", "false")) == "true",
			Driver:  getenv("INVALIDATION_DRIVER", "none"),
			Topic:   getenv("KAFKA_TOPIC", "feed-invalidation"),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			GroupID: getenv("KAFKA_GROUP_ID", "feed-invalidator"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "layer=5m,other=30s" into map
func parseDurationMap(s string) map[string]time.Duration {
	out := map[string]time.Duration{}
	s = strings.TrimSpace(s)
	if s == "" {
		return out
	}
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		k := strings.TrimSpace(kv[0])
		v := strings.TrimSpace(kv[1])
		if k == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err == nil {
			out[k] = d
		}
	}
	return out
}
