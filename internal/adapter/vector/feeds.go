// Package vector adapts point-feed descriptors (wave buoys, tide gauges and
// WFS features) into clustered marker renderers, and turns marker clicks
// into coordinate selections for the detail panel.
package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/oceanportal/workbench/internal/core/model"
)

const defaultDataLimit = 100

// Station is one parsed feed point before normalisation and clustering.
type Station struct {
	Lat         float64
	Lng         float64
	StationID   string
	DisplayName string
	Owner       string
	Active      bool
	TypeID      int
	DataLimit   int
}

// fetchFeed returns the layer's stations, consulting the feed cache when
// one is configured. Fresh bodies are cached together with the stations'
// positions so spatial invalidation can find them later.
func (a *Adapter) fetchFeed(ctx context.Context, d model.LayerDescriptor) ([]Station, error) {
	if a.cache != nil {
		if body, err := a.cache.Get(ctx, d); err == nil && body != nil {
			return parseFeed(d.Kind, body)
		} else if err != nil {
			a.logger.Warn("feed cache read failed", "layer_id", d.ID, "err", err)
		}
	}

	body, err := a.fetchBody(ctx, d.URL)
	if err != nil {
		return nil, err
	}
	stations, err := parseFeed(d.Kind, body)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		points := make([]model.LatLng, 0, len(stations))
		for _, s := range stations {
			points = append(points, model.LatLng{Lat: s.Lat, Lng: s.Lng})
		}
		if err := a.cache.Put(ctx, d, body, points); err != nil {
			a.logger.Warn("feed cache write failed", "layer_id", d.ID, "err", err)
		}
	}
	return stations, nil
}

func (a *Adapter) fetchBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("vector feed: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vector feed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vector feed: upstream status %d for %s", resp.StatusCode, url)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("vector feed: %w", err)
	}
	return body, nil
}

func parseFeed(kind model.LayerKind, body []byte) ([]Station, error) {
	switch kind {
	case model.VectorBuoy:
		return parseBuoyFeed(body)
	case model.VectorTide, model.VectorWFS:
		return parseGeoJSONFeed(body)
	default:
		return nil, fmt.Errorf("vector feed: unsupported kind %s", kind)
	}
}

type buoyRecord struct {
	Longitude   float64 `json:"longitude"`
	Latitude    float64 `json:"latitude"`
	StationID   string  `json:"station_id"`
	DisplayName string  `json:"display_name"`
	IsActive    bool    `json:"is_active"`
	Owner       string  `json:"owner"`
	TypeID      int     `json:"type_id"`
	TypeValue   string  `json:"type_value"`
	DataLimit   int     `json:"data_limit"`
}

func parseBuoyFeed(body []byte) ([]Station, error) {
	var records []buoyRecord
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("buoy feed: %w", err)
	}
	out := make([]Station, 0, len(records))
	for _, r := range records {
		limit := r.DataLimit
		if limit <= 0 {
			limit = defaultDataLimit
		}
		out = append(out, Station{
			Lat:         r.Latitude,
			Lng:         r.Longitude,
			StationID:   r.StationID,
			DisplayName: r.DisplayName,
			Owner:       r.Owner,
			Active:      r.IsActive,
			TypeID:      r.TypeID,
			DataLimit:   limit,
		})
	}
	return out, nil
}

// parseGeoJSONFeed reads tide-gauge and WFS feature collections. Only point
// geometries become markers; other geometry types are skipped quietly since
// WFS sources routinely mix in polygons we do not render.
func parseGeoJSONFeed(body []byte) ([]Station, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, fmt.Errorf("geojson feed: %w", err)
	}
	var out []Station
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			continue
		}
		s := Station{
			Lng:       pt.Lon(),
			Lat:       pt.Lat(),
			Active:    true,
			DataLimit: defaultDataLimit,
		}
		s.StationID = propString(f.Properties, "station_id", "id", "name")
		s.DisplayName = propString(f.Properties, "location", "display_name", "name")
		s.Owner = propString(f.Properties, "country_na", "owner")
		if s.DisplayName == "" {
			s.DisplayName = s.StationID
		}
		out = append(out, s)
	}
	return out, nil
}

func propString(props geojson.Properties, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(props.MustString(k, "")); v != "" {
			return v
		}
	}
	return ""
}
